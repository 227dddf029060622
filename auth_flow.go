package authsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authsync/identity"
	"github.com/MrEthical07/authsync/internal/flows"
)

const (
	opSignUp        = "SignUp"
	opConfirmSignUp = "ConfirmSignUp"
	opResendCode    = "ResendConfirmationCode"
	opSignIn        = "SignIn"
)

// AuthFlow drives one sign-in / sign-up screen. Create one per screen
// instance with [Engine.NewAuthFlow] and Close it when the screen goes away.
//
// Only one submission runs at a time; a concurrent one fails with ErrFlowBusy
// before reaching the provider. After Close, results of calls still in flight
// are discarded and ErrFlowClosed is returned.
type AuthFlow struct {
	e *Engine

	busy   atomic.Bool
	closed atomic.Bool

	mu      sync.Mutex
	state   FlowState
	pending *PendingRegistration
	form    Form
}

// NewAuthFlow returns a flow in FlowSignIn.
func (e *Engine) NewAuthFlow() *AuthFlow {
	return &AuthFlow{e: e, state: FlowSignIn}
}

// Busy reports whether a submission is in flight. While it is, further
// submissions fail with ErrFlowBusy.
func (f *AuthFlow) Busy() bool {
	return f.busy.Load()
}

// State returns the screen the flow is on.
func (f *AuthFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending returns the registration awaiting confirmation, if any.
func (f *AuthFlow) Pending() (PendingRegistration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return PendingRegistration{}, false
	}
	return *f.pending, true
}

// Form returns a copy of the form fields as last set by a submission.
func (f *AuthFlow) Form() Form {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// Close marks the screen as gone.
func (f *AuthFlow) Close() {
	f.closed.Store(true)
}

// ShowSignUp switches from the sign-in form to the sign-up form.
func (f *AuthFlow) ShowSignUp() Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FlowSignIn {
		f.state = FlowSignUp
	}
	return Outcome{State: f.state}
}

// CancelSignUp discards the sign-up form and returns to sign-in.
func (f *AuthFlow) CancelSignUp() Outcome {
	return f.reset()
}

// CancelConfirmation discards the pending registration and returns to sign-in.
func (f *AuthFlow) CancelConfirmation() Outcome {
	return f.reset()
}

// ResumeConfirmation enters the confirmation state for an account registered
// earlier, so ConfirmSignUp and ResendConfirmationCode can target it. A blank
// username leaves the flow unchanged.
func (f *AuthFlow) ResumeConfirmation(username string) Outcome {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return f.outcome(f.e.config.Messages.ResendUsernameRequired)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = &PendingRegistration{Username: username}
	f.form = Form{Username: username}
	f.state = FlowAwaitingConfirmation
	return Outcome{State: f.state}
}

func (f *AuthFlow) reset() Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form = Form{}
	f.pending = nil
	f.state = FlowSignIn
	return Outcome{State: f.state}
}

// SubmitSignUp registers a new account. All fields are required after
// trimming; username and email are sent lower-cased and the trimmed original
// username becomes the nickname.
func (f *AuthFlow) SubmitSignUp(ctx context.Context, email, username, password string) (Outcome, error) {
	if err := f.begin(); err != nil {
		return f.outcome(""), err
	}
	defer f.end()

	msgs := f.e.config.Messages
	f.setForm(Form{Email: strings.TrimSpace(email), Username: strings.TrimSpace(username)})

	in, ok := flows.NormalizeSignUp(email, username, password)
	if !ok {
		return f.reject(opSignUp, ClassValidation, identity.KindUnknown, msgs.SignUpFieldsRequired, nil)
	}

	res, err := f.e.provider.SignUp(ctx, in)
	if f.closed.Load() {
		return f.outcome(""), ErrFlowClosed
	}

	switch flows.ClassifySignUp(res, err) {
	case flows.SignUpNeedsConfirmation:
		f.e.metricInc(MetricSignUpConfirmRequired)
		f.mu.Lock()
		f.pending = &PendingRegistration{Username: in.Username}
		f.state = FlowAwaitingConfirmation
		f.mu.Unlock()
		return f.outcome(msgs.SignUpConfirmationSent), nil

	case flows.SignUpCompleted:
		f.e.metricInc(MetricSignUpSuccess)
		return f.outcome(msgs.SignUpComplete), nil
	}

	f.e.metricInc(MetricSignUpFailure)
	kind := identity.KindOf(err)
	msg := msgs.SignUpFailed
	switch kind {
	case identity.KindUsernameExists:
		msg = msgs.UsernameExists
	case identity.KindInvalidParameter:
		msg = msgs.InvalidParameters
	}
	return f.reject(opSignUp, classOf(err), kind, msg, err)
}

// ConfirmSignUp submits the confirmation code of the pending registration. On
// success the flow returns to sign-in.
func (f *AuthFlow) ConfirmSignUp(ctx context.Context, code string) (Outcome, error) {
	if err := f.begin(); err != nil {
		return f.outcome(""), err
	}
	defer f.end()

	msgs := f.e.config.Messages
	pending, hasPending := f.Pending()
	code, ok := flows.NormalizeCode(code)
	f.mu.Lock()
	f.form.Code = code
	f.mu.Unlock()
	if !hasPending {
		return f.reject(opConfirmSignUp, ClassValidation, identity.KindUnknown, msgs.CodeRequired, ErrNoPendingRegistration)
	}
	if !ok {
		return f.reject(opConfirmSignUp, ClassValidation, identity.KindUnknown, msgs.CodeRequired, nil)
	}

	err := f.e.provider.ConfirmSignUp(ctx, pending.Username, code)
	if f.closed.Load() {
		return f.outcome(""), ErrFlowClosed
	}
	if err != nil {
		f.e.metricInc(MetricConfirmFailure)
		return f.reject(opConfirmSignUp, classOf(err), identity.KindOf(err), msgs.InvalidCode, err)
	}

	f.e.metricInc(MetricConfirmSuccess)
	f.mu.Lock()
	f.pending = nil
	f.form.Code = ""
	f.state = FlowSignIn
	f.mu.Unlock()
	return f.outcome(msgs.ConfirmSuccess), nil
}

// ResendConfirmationCode asks the provider to send the code of the pending
// registration again. The flow state does not change.
func (f *AuthFlow) ResendConfirmationCode(ctx context.Context) (Outcome, error) {
	if err := f.begin(); err != nil {
		return f.outcome(""), err
	}
	defer f.end()

	msgs := f.e.config.Messages
	pending, ok := f.Pending()
	if !ok {
		return f.reject(opResendCode, ClassValidation, identity.KindUnknown, msgs.ResendUsernameRequired, ErrNoPendingRegistration)
	}

	err := f.e.provider.ResendSignUpCode(ctx, pending.Username)
	if f.closed.Load() {
		return f.outcome(""), ErrFlowClosed
	}
	if err != nil {
		f.e.metricInc(MetricResendFailure)
		return f.reject(opResendCode, classOf(err), identity.KindOf(err), msgs.ResendFailed, err)
	}
	f.e.metricInc(MetricResendSuccess)
	return f.outcome(msgs.CodeResent), nil
}

// SubmitSignIn signs in and, on success, writes the provider session to the
// store. The stored username is the one the provider reports, not the one
// typed. An already-active provider session takes the same path.
func (f *AuthFlow) SubmitSignIn(ctx context.Context, username, password string) (Outcome, error) {
	if err := f.begin(); err != nil {
		return f.outcome(""), err
	}
	defer f.end()

	msgs := f.e.config.Messages
	f.setForm(Form{Username: strings.TrimSpace(username)})

	in, ok := flows.NormalizeSignIn(username, password)
	if !ok {
		return f.reject(opSignIn, ClassValidation, identity.KindUnknown, msgs.SignInFieldsRequired, nil)
	}

	res, err := f.e.provider.SignIn(ctx, in)
	if f.closed.Load() {
		return f.outcome(""), ErrFlowClosed
	}

	switch flows.ClassifySignIn(res, err) {
	case flows.SignInSignedIn:
		success := msgs.SignInSuccess
		if err != nil {
			success = msgs.AlreadyAuthenticated
		}
		return f.completeSignIn(ctx, success)

	case flows.SignInNeedsConfirmation:
		f.e.metricInc(MetricSignInConfirmRequired)
		f.mu.Lock()
		f.pending = &PendingRegistration{Username: in.Username}
		f.state = FlowAwaitingConfirmation
		f.mu.Unlock()
		if err != nil {
			return f.reject(opSignIn, classOf(err), identity.KindNotConfirmed, msgs.NotConfirmed, err)
		}
		return f.outcome(msgs.SignInConfirmFirst), nil

	case flows.SignInUnsupportedStep:
		f.e.metricInc(MetricSignInFailure)
		return f.reject(opSignIn, ClassProviderRejection, identity.KindUnknown, msgs.SignInFailed, nil)
	}

	f.e.metricInc(MetricSignInFailure)
	kind := identity.KindOf(err)
	class := classOf(err)
	msg := msgs.SignInFailed
	switch kind {
	case identity.KindNotAuthorized:
		msg = msgs.NotAuthorized
	case identity.KindUserNotFound:
		msg = msgs.UserNotFound
	case identity.KindTooManyRequests:
		msg = msgs.TooManyRequests
	default:
		if class == ClassProviderUnavailable {
			msg = msgs.ProviderUnavailable
		}
	}
	return f.reject(opSignIn, class, kind, msg, err)
}

func (f *AuthFlow) completeSignIn(ctx context.Context, success string) (Outcome, error) {
	msgs := f.e.config.Messages
	res := f.e.resolveSession(ctx)
	if f.closed.Load() {
		return f.outcome(""), ErrFlowClosed
	}
	if !res.OK() {
		f.e.metricInc(MetricSignInTokensMissing)
		if res.Failure == flows.ResolveFailureProvider {
			return f.reject(opSignIn, ClassProviderUnavailable, identity.KindOf(res.Err), msgs.TokensUnavailable, res.Err)
		}
		return f.reject(opSignIn, ClassInvariantViolation, identity.KindUnknown, msgs.TokensUnavailable, nil)
	}
	if f.closed.Load() {
		return f.outcome(""), ErrFlowClosed
	}
	if err := f.e.applyResolved(res); err != nil {
		if errors.Is(err, ErrEngineClosed) {
			return f.outcome(""), ErrEngineClosed
		}
		return f.reject(opSignIn, ClassInvariantViolation, identity.KindUnknown, msgs.TokensUnavailable, err)
	}

	f.e.metricInc(MetricSignInSuccess)
	f.e.log.Info("signed in", "op", opSignIn, "username", res.Username)
	f.mu.Lock()
	f.pending = nil
	f.state = FlowSignIn
	f.mu.Unlock()
	out := f.outcome(success)
	out.Route = RouteApp
	return out, nil
}

func (f *AuthFlow) begin() error {
	if f.closed.Load() {
		return ErrFlowClosed
	}
	if err := f.e.checkReady(); err != nil {
		return err
	}
	if !f.busy.CompareAndSwap(false, true) {
		f.e.metricInc(MetricFlowBusy)
		return ErrFlowBusy
	}
	return nil
}

func (f *AuthFlow) end() {
	f.busy.Store(false)
}

func (f *AuthFlow) setForm(form Form) {
	f.mu.Lock()
	f.form = form
	f.mu.Unlock()
}

func (f *AuthFlow) outcome(msg string) Outcome {
	return Outcome{State: f.State(), Message: msg}
}

func (f *AuthFlow) reject(op string, class ErrorClass, kind identity.ErrorKind, msg string, cause error) (Outcome, error) {
	if class == ClassValidation {
		f.e.metricInc(MetricValidationRejected)
	} else {
		f.e.log.Info("auth flow failed",
			"op", op,
			"kind", kind.String(),
			"class", class.String(),
		)
		ev := DiagnosticEvent{
			EventType: diagFlowFailure,
			Op:        op,
			Username:  f.Form().Username,
			Kind:      kind.String(),
			Class:     class.String(),
		}
		if cause != nil {
			ev.Error = cause.Error()
		}
		f.e.diagnose(context.Background(), ev)
	}
	return f.outcome(msg), &FlowError{
		Op:      op,
		Class:   class,
		Kind:    kind,
		Message: msg,
		Err:     cause,
	}
}
