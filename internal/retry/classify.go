package retry

import (
	"context"
	"errors"
	"net"

	"github.com/eventpay/payment-events/internal/provider"
)

type ErrorType string

const (
	Transient ErrorType = "transient"
	Permanent ErrorType = "permanent"
)

// Classification is the normalized shape of a provider failure, consumed by
// plain conditionals instead of ad-hoc catch/rethrow chains.
type Classification struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Name       string
}

// Classify maps any error to exactly one classification. It is total and
// never panics; an unrecognized shape is assumed recoverable rather than
// fatal, so the default is transient.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Type: Transient, Message: "unknown error"}
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		c := Classification{
			Message:    apiErr.Message,
			StatusCode: apiErr.StatusCode,
			Name:       apiErr.Code,
		}
		// symbolic codes take precedence over the status code
		switch apiErr.Code {
		case provider.CodeRateLimit, provider.CodeLockTimeout:
			c.Type = Transient
			return c
		case provider.CodeIdempotencyInUse:
			// benign race on a duplicate in-flight request
			c.Type = Transient
			return c
		case provider.CodeQuotaExceeded:
			c.Type = Permanent
			return c
		}
		switch {
		case apiErr.StatusCode >= 500, apiErr.StatusCode == 429:
			c.Type = Transient
		case apiErr.StatusCode >= 400:
			c.Type = Permanent
		default:
			c.Type = Transient
		}
		return c
	}

	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) {
		c := Classification{Message: err.Error(), StatusCode: sc.HTTPStatus()}
		switch {
		case c.StatusCode >= 500, c.StatusCode == 429:
			c.Type = Transient
		case c.StatusCode >= 400:
			c.Type = Permanent
		default:
			c.Type = Transient
		}
		return c
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Type: Transient, Message: "request timed out", Name: "timeout"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		msg := "network error"
		if netErr.Timeout() {
			msg = "network timeout"
		}
		return Classification{Type: Transient, Message: msg, Name: "network_error"}
	}

	return Classification{Type: Transient, Message: err.Error()}
}
