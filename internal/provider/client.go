package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eventpay/payment-events/internal/model"
)

// ErrEventNotFound means the provider no longer knows the event id. During a
// dead-letter pass this is terminal: the record will not be retried again.
var ErrEventNotFound = errors.New("provider event not found")

// Symbolic error codes surfaced by the provider API.
const (
	CodeRateLimit        = "rate_limit_exceeded"
	CodeLockTimeout      = "lock_timeout"
	CodeIdempotencyInUse = "idempotency_key_in_use"
	CodeQuotaExceeded    = "quota_exceeded"
)

// APIError is a provider-surfaced failure carrying the HTTP status and the
// provider's symbolic code, so callers can classify without string matching.
type APIError struct {
	StatusCode        int    `json:"status"`
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
}

// EventFetcher re-fetches the authoritative event by id. Used only by the
// dead-letter retry worker to re-validate before re-driving the processor.
type EventFetcher interface {
	FetchEvent(ctx context.Context, eventID string) (model.ProviderEvent, error)
}

// HTTPClient fetches events from the provider's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) FetchEvent(ctx context.Context, eventID string) (model.ProviderEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events/"+eventID, nil)
	if err != nil {
		return model.ProviderEvent{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return model.ProviderEvent{}, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return model.ProviderEvent{}, ErrEventNotFound
	}
	if res.StatusCode/100 != 2 {
		return model.ProviderEvent{}, decodeAPIError(res)
	}

	var ev model.ProviderEvent
	if err := json.NewDecoder(res.Body).Decode(&ev); err != nil {
		return model.ProviderEvent{}, fmt.Errorf("decode event %s: %w", eventID, err)
	}
	if ev.ID == "" {
		ev.ID = eventID
	}
	return ev, nil
}

func decodeAPIError(res *http.Response) error {
	apiErr := &APIError{StatusCode: res.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	// body may not be JSON on gateway-level failures
	var wrapper struct {
		Error APIError `json:"error"`
	}
	if json.Unmarshal(body, &wrapper) == nil && wrapper.Error.Message != "" {
		apiErr.Code = wrapper.Error.Code
		apiErr.Message = wrapper.Error.Message
		apiErr.RetryAfterSeconds = wrapper.Error.RetryAfterSeconds
	} else {
		apiErr.Message = http.StatusText(res.StatusCode)
	}
	return apiErr
}
