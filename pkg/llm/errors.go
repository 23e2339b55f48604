package llm

import (
	"net/http"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// ErrorFromStatus converts an HTTP-level provider failure into a framework
// error with the right code and recoverability. Rate limiting and server
// side failures are recoverable (retry may succeed); auth and other client
// errors are not.
func ErrorFromStatus(provider string, status int, detail string) *errors.FrameworkError {
	if detail == "" {
		detail = http.StatusText(status)
	}

	var err *errors.FrameworkError
	switch {
	case status == http.StatusTooManyRequests:
		err = errors.Newf(errors.CodeRateLimit, "%s: rate limited: %s", provider, detail).
			WithRecoverable(true)
	case status >= 500:
		err = errors.Newf(errors.CodeProvider, "%s: server error (%d): %s", provider, status, detail).
			WithRecoverable(true)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		err = errors.Newf(errors.CodeProvider, "%s: authentication failed (%d): %s", provider, status, detail).
			WithRecoverable(false)
	default:
		err = errors.Newf(errors.CodeProvider, "%s: request rejected (%d): %s", provider, status, detail).
			WithRecoverable(false)
	}
	return err.
		WithContext("provider", provider).
		WithContext("http_status", status)
}

// TransportError wraps a network-level failure (dial, TLS, read) where no
// HTTP status exists. Transient by assumption, so recoverable.
func TransportError(provider string, err error) *errors.FrameworkError {
	return errors.Newf(errors.CodeProvider, "%s: transport error: %v", provider, err).
		WithRecoverable(true).
		WithContext("provider", provider)
}
