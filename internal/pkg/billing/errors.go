package billing

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidSignature is returned when a webhook signature does not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMissingSignatureHeaders is returned when a signed envelope lacks one of its headers.
	ErrMissingSignatureHeaders = errors.New("missing webhook signature headers")

	// ErrSecretNotConfigured is returned when verification is attempted without a secret.
	ErrSecretNotConfigured = errors.New("webhook secret not configured")

	// ErrMalformedPayload is returned when a verified payload cannot be parsed.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrNotApplicable marks an actionable event that carries no way to find its user.
	ErrNotApplicable = errors.New("webhook event not applicable")

	// ErrUnresolvedUser is returned when no local user matches the event.
	ErrUnresolvedUser = errors.New("webhook event user could not be resolved")

	// ErrTransientStore wraps store and identity provider failures that the
	// provider should retry.
	ErrTransientStore = errors.New("transient store failure")

	// ErrProviderTimeout is returned when an outbound provider call times out.
	ErrProviderTimeout = errors.New("billing provider timeout")

	// ErrProviderAPI is returned when a provider API answers with an error.
	ErrProviderAPI = errors.New("billing provider API error")

	// ErrUserNotFound is returned by user directories when an email has no account.
	ErrUserNotFound = errors.New("user not found")
)

// StatusForError maps the webhook error taxonomy to the HTTP status sent back
// to the provider. Dropped events are acknowledged so they are not retried.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrMissingSignatureHeaders),
		errors.Is(err, ErrSecretNotConfigured),
		errors.Is(err, ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotApplicable), errors.Is(err, ErrUnresolvedUser):
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKind is a short label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrMissingSignatureHeaders):
		return "auth_failed"
	case errors.Is(err, ErrSecretNotConfigured):
		return "secret_missing"
	case errors.Is(err, ErrMalformedPayload):
		return "invalid_payload"
	case errors.Is(err, ErrNotApplicable):
		return "not_applicable"
	case errors.Is(err, ErrUnresolvedUser):
		return "unresolved_user"
	case errors.Is(err, ErrProviderTimeout):
		return "provider_timeout"
	case errors.Is(err, ErrProviderAPI):
		return "provider_api"
	case errors.Is(err, ErrTransientStore):
		return "store_failure"
	default:
		return "processing_error"
	}
}
