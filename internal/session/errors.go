package session

import (
	"errors"

	"storefront/internal/identity"
)

// Kind classifies transition failures.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthServer
	KindNetwork
	KindStaleSession
	KindTokenMissing
	KindBusy
	KindInternal
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrAuthServer   = errors.New("identity service rejected the request")
	ErrNetwork      = errors.New("identity service unreachable")
	ErrStaleSession = errors.New("stale session")
	ErrTokenMissing = errors.New("token missing")
	ErrBusy         = errors.New("another session operation is in progress")
	ErrInternal     = errors.New("internal error")
)

// Messages surfaced to the shopper.
const (
	MsgGeneric      = "Something went wrong. Please try again."
	MsgNetwork      = "Unable to reach the server. Please check your connection and try again."
	MsgStaleSession = "Your session has expired. Please log in again."
	MsgTokenMissing = "Verification token missing. Please register or log in again."
	MsgBusy         = "Please wait for the current request to finish."
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindAuthServer:
		return ErrAuthServer
	case KindNetwork:
		return ErrNetwork
	case KindStaleSession:
		return ErrStaleSession
	case KindTokenMissing:
		return ErrTokenMissing
	case KindBusy:
		return ErrBusy
	default:
		return ErrInternal
	}
}

func (k Kind) String() string {
	return k.sentinel().Error()
}

// Error is returned by every failed transition. Message is safe to show to
// the shopper and is also recorded in State.Error.
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending input for validation failures.
	Field string
	// Status is the HTTP status for identity service rejections.
	Status int
	Err    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// classify converts an identity client failure into a session error.
func classify(err error) *Error {
	var sessErr *Error
	if errors.As(err, &sessErr) {
		return sessErr
	}
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = MsgGeneric
		}
		return &Error{Kind: KindAuthServer, Message: msg, Status: apiErr.Status, Err: err}
	}
	if errors.Is(err, identity.ErrNetwork) {
		return &Error{Kind: KindNetwork, Message: MsgNetwork, Err: err}
	}
	return &Error{Kind: KindInternal, Message: MsgGeneric, Err: err}
}
