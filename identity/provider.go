package identity

import "context"

// SignUpStep names what the provider expects after a sign-up call.
type SignUpStep int

const (
	// SignUpDone means the account is usable.
	SignUpDone SignUpStep = iota
	// SignUpConfirm means a confirmation code was sent and must be submitted.
	SignUpConfirm
)

// SignInStep names what the provider expects after a sign-in call.
type SignInStep int

const (
	// SignInDone means the sign-in completed.
	SignInDone SignInStep = iota
	// SignInConfirmSignUp means the account must be confirmed first.
	SignInConfirmSignUp
	// SignInOther is any continuation this client does not drive
	// (MFA challenges, new-password prompts).
	SignInOther
)

// SignUpInput carries already-normalized registration values.
type SignUpInput struct {
	Username string
	Password string
	Email    string
	Nickname string
}

// SignUpResult is the provider's answer to a registration.
type SignUpResult struct {
	Complete bool
	NextStep SignUpStep
	UserID   string
}

// SignInInput carries already-normalized credentials.
type SignInInput struct {
	Username string
	Password string
}

// SignInResult is the provider's answer to a sign-in.
type SignInResult struct {
	SignedIn bool
	NextStep SignInStep
}

// CurrentUser identifies the identity behind the provider's current session.
type CurrentUser struct {
	Username string
	UserID   string
}

// Tokens are the credentials of a provider session. Either field may be empty
// when the provider omitted it.
type Tokens struct {
	AccessToken string
	IDToken     string
}

// AuthSession is the provider's view of the current session. Tokens is nil when
// no session exists.
type AuthSession struct {
	Tokens *Tokens
}

// Complete reports whether both tokens are present.
func (s AuthSession) Complete() bool {
	return s.Tokens != nil && s.Tokens.AccessToken != "" && s.Tokens.IDToken != ""
}

// Provider is the identity provider client consumed by the session engine.
//
// Implementations must be safe for concurrent use. Failures are returned as
// *Error values so callers can switch on [ErrorKind].
type Provider interface {
	SignUp(ctx context.Context, in SignUpInput) (SignUpResult, error)
	ConfirmSignUp(ctx context.Context, username, code string) error
	ResendSignUpCode(ctx context.Context, username string) error
	SignIn(ctx context.Context, in SignInInput) (SignInResult, error)
	SignOut(ctx context.Context) error
	GetCurrentUser(ctx context.Context) (CurrentUser, error)
	FetchAuthSession(ctx context.Context) (AuthSession, error)

	// Subscribe registers fn for lifecycle events and returns the handle that
	// removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
}
