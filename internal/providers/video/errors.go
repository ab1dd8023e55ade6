package video

import "fmt"

// ErrorKind classifies a provider failure so the job lifecycle manager can
// decide retry-ability without parsing vendor messages.
type ErrorKind string

const (
	// ErrorKindAuth means the credential was rejected. Not retryable; the user
	// must reconnect the provider.
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindPayload means the provider rejected the request content. Not
	// retryable without changing the input.
	ErrorKindPayload ErrorKind = "payload"
	// ErrorKindRateLimited means the provider throttled us. Retryable.
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindUpstream covers provider-side failures. Retryable.
	ErrorKindUpstream ErrorKind = "upstream"
)

// Error is the typed failure every adapter returns instead of a bare error.
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Provider, e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
}

// Retryable reports whether the execution substrate may redeliver the step.
func (e *Error) Retryable() bool {
	return e.Kind == ErrorKindRateLimited || e.Kind == ErrorKindUpstream
}

// classifyStatus maps an HTTP status to the error taxonomy shared by all
// adapters.
func classifyStatus(provider string, status int, message string) *Error {
	kind := ErrorKindUpstream
	switch {
	case status == 401 || status == 403:
		kind = ErrorKindAuth
	case status == 429:
		kind = ErrorKindRateLimited
	case status >= 400 && status < 500:
		kind = ErrorKindPayload
	}
	return &Error{Provider: provider, Kind: kind, StatusCode: status, Message: message}
}
