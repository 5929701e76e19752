// Package apierr is the client's single error representation. Every failure
// that reaches a caller (local validation, HTTP status, transport failure,
// user cancellation) is expressed as an *Error carrying a Kind and a message
// fit for display. Callers match kinds with errors.Is against the sentinels.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindAntiForgery Kind = "anti_forgery"
	KindNetwork     Kind = "network"
	KindServer      Kind = "server"
	KindCancelled   Kind = "cancelled"
	// KindUnknown covers local failures that fit none of the above
	// (unreadable file, broken config).
	KindUnknown Kind = "unknown"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrAntiForgery  = errors.New("anti-forgery token rejected")
	ErrUnavailable  = errors.New("server unavailable")
	ErrServer       = errors.New("server error")
	ErrCancelled    = errors.New("cancelled")
)

const (
	GenericMessage   = "An unexpected error occurred."
	NetworkMessage   = "Network error. Please check your connection."
	CancelledMessage = "Upload cancelled."
)

var sentinels = map[Kind]error{
	KindValidation:  ErrValidation,
	KindAuth:        ErrUnauthorized,
	KindAntiForgery: ErrAntiForgery,
	KindNetwork:     ErrUnavailable,
	KindServer:      ErrServer,
	KindCancelled:   ErrCancelled,
}

type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 when no response was received
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Cancelled(cause error) *Error {
	return &Error{Kind: KindCancelled, Message: CancelledMessage, Err: cause}
}

func Network(cause error) *Error {
	return &Error{Kind: KindNetwork, Message: NetworkMessage, Err: cause}
}

// Normalize converts any error into an *Error. Existing *Error values are
// returned unchanged; context cancellation becomes KindCancelled, transport
// failures KindNetwork, everything else KindUnknown with the original text.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return Cancelled(err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return Network(err)
	}

	msg := err.Error()
	if msg == "" {
		msg = GenericMessage
	}
	return &Error{Kind: KindUnknown, Message: msg, Err: err}
}

// Describe returns the (kind, message) pair the interface should display.
func Describe(err error) (Kind, string) {
	if err == nil {
		return "", ""
	}
	e := Normalize(err)
	return e.Kind, e.Message
}
