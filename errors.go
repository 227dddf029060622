package authsync

import (
	"errors"

	"github.com/MrEthical07/authsync/identity"
)

var (
	// ErrNotReady is returned by flow operations while bootstrap is still loading.
	ErrNotReady = errors.New("engine not ready")
	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine closed")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("engine already started")
	// ErrFlowBusy rejects a submission while another one is in flight.
	ErrFlowBusy = errors.New("auth flow busy")
	// ErrFlowClosed is returned when the flow was closed while its call ran.
	ErrFlowClosed = errors.New("auth flow closed")
	// ErrNoPendingRegistration rejects confirmation steps without a pending sign-up.
	ErrNoPendingRegistration = errors.New("no pending registration")
)

// Error classes. Every *FlowError matches exactly one of them with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrProviderRejection   = errors.New("provider rejected request")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrInvariantViolation  = errors.New("provider reported success without session tokens")
)

// ErrorClass is the top-level failure category of a flow operation.
type ErrorClass int

const (
	ClassValidation ErrorClass = iota + 1
	ClassProviderRejection
	ClassProviderUnavailable
	ClassInvariantViolation
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassProviderRejection:
		return "provider_rejection"
	case ClassProviderUnavailable:
		return "provider_unavailable"
	case ClassInvariantViolation:
		return "invariant_violation"
	}
	return "unknown"
}

func (c ErrorClass) sentinel() error {
	switch c {
	case ClassValidation:
		return ErrValidation
	case ClassProviderRejection:
		return ErrProviderRejection
	case ClassProviderUnavailable:
		return ErrProviderUnavailable
	case ClassInvariantViolation:
		return ErrInvariantViolation
	}
	return nil
}

// FlowError is the failure of one AuthFlow operation. Message is the text shown
// to the user.
type FlowError struct {
	Op      string
	Class   ErrorClass
	Kind    identity.ErrorKind
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	msg := "authsync " + e.Op + ": " + e.Class.String()
	if e.Kind != identity.KindUnknown {
		msg += " (" + e.Kind.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the class sentinel and the provider cause.
func (e *FlowError) Unwrap() []error {
	out := make([]error, 0, 2)
	if s := e.Class.sentinel(); s != nil {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// classOf maps a provider error to its class. Unknown kinds without a transport
// cause count as rejections.
func classOf(err error) ErrorClass {
	if identity.KindOf(err) == identity.KindUnavailable {
		return ClassProviderUnavailable
	}
	var ie *identity.Error
	if errors.As(err, &ie) {
		return ClassProviderRejection
	}
	return ClassProviderUnavailable
}
