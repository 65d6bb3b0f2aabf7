package facades

import (
	"errors"
	"fmt"
	"net/http"
)

// Classified provider failures. Handlers and the retry predicate branch on
// these with errors.Is; the raw status stays available via ProviderError.
var (
	// ErrMissingAPIKey means the service was started without provider
	// credentials. Operator configuration error, never retried.
	ErrMissingAPIKey = errors.New("openexchangerates API key is not configured")

	// ErrUnauthorized means the provider rejected the configured credentials.
	ErrUnauthorized = errors.New("unauthorized access to openexchangerates")

	// ErrRateLimited means the provider is throttling this app id.
	ErrRateLimited = errors.New("openexchangerates rate limit exceeded")

	// ErrUnavailable covers provider 5xx responses.
	ErrUnavailable = errors.New("openexchangerates temporarily unavailable")

	// ErrMalformedResponse means the provider answered with an
	// unparseable or incomplete body.
	ErrMalformedResponse = errors.New("malformed openexchangerates response")
)

// ProviderError is a non-2xx provider response. It unwraps to the matching
// sentinel above and exposes the status for the retry predicate.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openexchangerates: HTTP %d", e.Status)
	}
	return fmt.Sprintf("openexchangerates: HTTP %d: %s", e.Status, e.Message)
}

// HTTPStatus implements retry.HTTPStatuser.
func (e *ProviderError) HTTPStatus() int { return e.Status }

func (e *ProviderError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status >= 500:
		return ErrUnavailable
	default:
		return nil
	}
}
