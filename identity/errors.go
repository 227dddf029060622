package identity

import (
	"context"
	"errors"
	"net"
)

// ErrorKind is the closed set of provider failure categories.
type ErrorKind int

const (
	// KindUnknown is any failure an adapter could not classify.
	KindUnknown ErrorKind = iota
	// KindUsernameExists rejects a registration for a taken username.
	KindUsernameExists
	// KindInvalidParameter rejects malformed or policy-violating input.
	KindInvalidParameter
	// KindNotAuthorized rejects wrong credentials.
	KindNotAuthorized
	// KindUserNotFound rejects an unknown account.
	KindUserNotFound
	// KindTooManyRequests signals provider throttling.
	KindTooManyRequests
	// KindNotConfirmed rejects a sign-in for an unconfirmed account.
	KindNotConfirmed
	// KindAlreadyAuthenticated rejects a sign-in while a session exists.
	KindAlreadyAuthenticated
	// KindCodeMismatch rejects a wrong confirmation code.
	KindCodeMismatch
	// KindExpiredCode rejects an expired confirmation code.
	KindExpiredCode
	// KindNoSession reports that no current session exists.
	KindNoSession
	// KindUnavailable covers network and transport failures.
	KindUnavailable
)

var kindNames = [...]string{
	KindUnknown:              "unknown",
	KindUsernameExists:       "username_exists",
	KindInvalidParameter:     "invalid_parameter",
	KindNotAuthorized:        "not_authorized",
	KindUserNotFound:         "user_not_found",
	KindTooManyRequests:      "too_many_requests",
	KindNotConfirmed:         "not_confirmed",
	KindAlreadyAuthenticated: "already_authenticated",
	KindCodeMismatch:         "code_mismatch",
	KindExpiredCode:          "expired_code",
	KindNoSession:            "no_session",
	KindUnavailable:          "unavailable",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Error is the structured failure returned by adapters.
type Error struct {
	Op      string
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError builds an *Error for op.
func NewError(op string, kind ErrorKind, message string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	msg := "identity " + e.Op + ": " + e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// KindOf classifies err. Context cancellation and network errors are
// KindUnavailable; unstructured errors are KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnavailable
	}
	return KindUnknown
}
