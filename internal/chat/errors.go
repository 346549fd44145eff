package chat

import (
	"errors"

	"roomchat/internal/repositories"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConflict         = errors.New("conflict")
)

// Error is a failure reported back to the originating connection only.
// Kind is one of the sentinel errors above; Message is what the client sees.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// storeFailure classifies a repository error. A missing message becomes
// ErrNotFound, anything else ErrStoreUnavailable with the given client message.
func storeFailure(message string, err error) *Error {
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return &Error{Kind: ErrNotFound, Message: "Message not found", Err: err}
	}
	return &Error{Kind: ErrStoreUnavailable, Message: message, Err: err}
}

// UserMessage returns the text to put in an error event for err.
func UserMessage(err error) string {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Message
	}
	return "Internal server error"
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "store_error"
	}
}
