package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/eventpay/payment-events/internal/model"
)

var (
	ErrEndpointOpen = fmt.Errorf("endpoint breaker open")
	ErrNoAcquire    = fmt.Errorf("endpoint not acquired")
)

// DeliveryError is a non-2xx response from a subscriber endpoint. It
// exposes the status so the retry classifier can decide without string
// matching.
type DeliveryError struct {
	URL        string
	StatusCode int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: url=%s status=%d", e.URL, e.StatusCode)
}

func (e *DeliveryError) HTTPStatus() int { return e.StatusCode }

// Sender delivers notification envelopes to subscriber endpoints. Each
// endpoint gets its own micro circuit breaker so one dead subscriber does
// not stall deliveries to the rest.
type Sender struct {
	client        *http.Client
	failThreshold int
	openFor       time.Duration

	mu       sync.Mutex
	breakers map[string]*EndpointBreaker
}

func NewSender(timeout time.Duration, failThreshold int, openFor time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	if openFor <= 0 {
		openFor = 15 * time.Second
	}
	return &Sender{
		client:        &http.Client{Timeout: timeout},
		failThreshold: failThreshold,
		openFor:       openFor,
		breakers:      make(map[string]*EndpointBreaker),
	}
}

func (s *Sender) breakerFor(url string) *EndpointBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	br, ok := s.breakers[url]
	if !ok {
		br = NewEndpointBreaker(url, s.failThreshold, s.openFor)
		s.breakers[url] = br
	}
	return br
}

// Deliver posts the envelope to one subscriber, signed with its secret.
func (s *Sender) Deliver(ctx context.Context, sub model.Subscriber, n model.Notification) error {
	br := s.breakerFor(sub.URL)
	if !br.Ready() {
		return fmt.Errorf("%w: %s", ErrEndpointOpen, br.URL())
	}
	if !br.TryAcquire() {
		return fmt.Errorf("%w: %s", ErrNoAcquire, br.URL())
	}

	if err := s.post(ctx, sub, n); err != nil {
		br.OnFailure()
		return err
	}
	br.OnSuccess()
	return nil
}

func (s *Sender) post(ctx context.Context, sub model.Subscriber, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Payev-Signature", Sign(sub.Secret, body))

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return &DeliveryError{URL: sub.URL, StatusCode: res.StatusCode}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret, the scheme
// subscribers verify against.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
