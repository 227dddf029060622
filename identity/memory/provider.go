package memory

import (
	"context"
	"crypto/rand"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authsync/identity"
	"github.com/MrEthical07/authsync/internal"
	"github.com/MrEthical07/authsync/jwt"
)

// Op names a provider operation for failure injection and call counting.
type Op string

const (
	OpSignUp           Op = "signUp"
	OpConfirmSignUp    Op = "confirmSignUp"
	OpResendSignUpCode Op = "resendSignUpCode"
	OpSignIn           Op = "signIn"
	OpSignOut          Op = "signOut"
	OpGetCurrentUser   Op = "getCurrentUser"
	OpFetchAuthSession Op = "fetchAuthSession"
)

const (
	codeDigits        = 6
	defaultCodeTTL    = 24 * time.Hour
	defaultTokenTTL   = time.Hour
	minPasswordLength = 8
)

// TokenMinter produces the tokens of a new session.
type TokenMinter func(subject string, profile jwt.Profile) (identity.Tokens, error)

type account struct {
	id        string
	username  string
	password  string
	email     string
	nickname  string
	confirmed bool
	code      string
	codeSent  time.Time
}

type current struct {
	user   identity.CurrentUser
	tokens identity.Tokens
}

// Provider implements identity.Provider in memory. It is safe for concurrent use.
type Provider struct {
	hub identity.Hub

	mu       sync.Mutex
	accounts map[string]*account
	session  *current
	failures map[Op]error
	calls    map[Op]int

	autoConfirm    bool
	confirmAsStep  bool
	withholdTokens bool
	codeTTL        time.Duration
	codeSink       func(username, code string)
	mint           TokenMinter
	now            func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithAutoConfirm makes sign-ups complete without a confirmation code.
func WithAutoConfirm() Option {
	return func(p *Provider) { p.autoConfirm = true }
}

// WithConfirmStep makes sign-in of an unconfirmed account answer with the
// confirm-sign-up next step instead of a not-confirmed error.
func WithConfirmStep() Option {
	return func(p *Provider) { p.confirmAsStep = true }
}

// WithCodeSink receives every confirmation code that would have been delivered.
func WithCodeSink(fn func(username, code string)) Option {
	return func(p *Provider) { p.codeSink = fn }
}

// WithCodeTTL sets how long confirmation codes stay valid.
func WithCodeTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.codeTTL = ttl
		}
	}
}

// WithTokenManager mints session tokens with m.
func WithTokenManager(m *jwt.Manager) Option {
	return func(p *Provider) { p.mint = jwtMinter(m) }
}

// WithTokenMinter replaces token minting entirely.
func WithTokenMinter(fn TokenMinter) Option {
	return func(p *Provider) {
		if fn != nil {
			p.mint = fn
		}
	}
}

// WithClock overrides the time source used for code expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// New returns an empty provider. Without WithTokenManager or WithTokenMinter it
// signs HS256 tokens with a random key.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		accounts: make(map[string]*account),
		failures: make(map[Op]error),
		calls:    make(map[Op]int),
		codeTTL:  defaultCodeTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.mint == nil {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		m, err := jwt.NewManager(jwt.Config{
			TTL:           defaultTokenTTL,
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    key,
			Issuer:        "authsync-memory",
		})
		if err != nil {
			return nil, err
		}
		p.mint = jwtMinter(m)
	}
	return p, nil
}

func jwtMinter(m *jwt.Manager) TokenMinter {
	return func(subject string, profile jwt.Profile) (identity.Tokens, error) {
		access, id, err := m.IssuePair(subject, profile)
		if err != nil {
			return identity.Tokens{}, err
		}
		return identity.Tokens{AccessToken: access, IDToken: id}, nil
	}
}

// Fail makes every later call of op return err until Fail(op, nil).
func (p *Provider) Fail(op Op, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// WithholdTokens makes FetchAuthSession report a session without tokens.
func (p *Provider) WithholdTokens(on bool) {
	p.mu.Lock()
	p.withholdTokens = on
	p.mu.Unlock()
}

// Calls returns how many times op was invoked.
func (p *Provider) Calls(op Op) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// LastCode returns the pending confirmation code of username.
func (p *Provider) LastCode(username string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.accounts[username]; ok {
		return a.code
	}
	return ""
}

// AddUser registers a user directly, bypassing sign-up.
func (p *Provider) AddUser(username, password, email string, confirmed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[username] = &account{
		id:        uuid.NewString(),
		username:  username,
		password:  password,
		email:     email,
		nickname:  username,
		confirmed: confirmed,
	}
}

// Subscribe implements identity.Provider.
func (p *Provider) Subscribe(fn func(identity.Event)) (unsubscribe func()) {
	return p.hub.Subscribe(fn)
}

// Subscribers returns the number of registered event subscribers.
func (p *Provider) Subscribers() int {
	return p.hub.Subscribers()
}

// Publish emits ev to subscribers as if the provider had raised it.
func (p *Provider) Publish(ev identity.Event) {
	p.hub.Publish(ev)
}

// enter counts the call and returns the injected failure, if any. Callers hold mu.
func (p *Provider) enter(op Op) error {
	p.calls[op]++
	return p.failures[op]
}

func (p *Provider) SignUp(ctx context.Context, in identity.SignUpInput) (identity.SignUpResult, error) {
	const op = string(OpSignUp)
	if err := ctx.Err(); err != nil {
		return identity.SignUpResult{}, identity.NewError(op, identity.KindUnavailable, "", err)
	}

	p.mu.Lock()
	res, code, err := p.signUpLocked(op, in)
	sink := p.codeSink
	p.mu.Unlock()

	if err != nil {
		p.hub.Publish(identity.NewEvent(identity.EventSignUpFailed, err))
		return identity.SignUpResult{}, err
	}
	if code != "" && sink != nil {
		sink(in.Username, code)
	}
	return res, nil
}

func (p *Provider) signUpLocked(op string, in identity.SignUpInput) (identity.SignUpResult, string, error) {
	if err := p.enter(OpSignUp); err != nil {
		return identity.SignUpResult{}, "", err
	}
	if _, exists := p.accounts[in.Username]; exists {
		return identity.SignUpResult{}, "", identity.NewError(op, identity.KindUsernameExists, "user already exists", nil)
	}
	if len(in.Password) < minPasswordLength {
		return identity.SignUpResult{}, "", identity.NewError(op, identity.KindInvalidParameter, "password does not conform to policy", nil)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return identity.SignUpResult{}, "", identity.NewError(op, identity.KindInvalidParameter, "invalid email address format", err)
	}

	a := &account{
		id:        uuid.NewString(),
		username:  in.Username,
		password:  in.Password,
		email:     in.Email,
		nickname:  in.Nickname,
		confirmed: p.autoConfirm,
	}
	if p.autoConfirm {
		p.accounts[in.Username] = a
		return identity.SignUpResult{Complete: true, NextStep: identity.SignUpDone, UserID: a.id}, "", nil
	}
	code, err := p.issueCodeLocked(a)
	if err != nil {
		return identity.SignUpResult{}, "", identity.NewError(op, identity.KindUnknown, "", err)
	}
	p.accounts[in.Username] = a
	return identity.SignUpResult{Complete: false, NextStep: identity.SignUpConfirm, UserID: a.id}, code, nil
}

func (p *Provider) issueCodeLocked(a *account) (string, error) {
	code, err := internal.NewConfirmationCode(codeDigits)
	if err != nil {
		return "", err
	}
	a.code = code
	a.codeSent = p.now()
	return code, nil
}

func (p *Provider) ConfirmSignUp(ctx context.Context, username, code string) error {
	const op = string(OpConfirmSignUp)
	if err := ctx.Err(); err != nil {
		return identity.NewError(op, identity.KindUnavailable, "", err)
	}

	p.mu.Lock()
	err := p.confirmLocked(op, username, code)
	p.mu.Unlock()
	if err != nil {
		p.hub.Publish(identity.NewEvent(identity.EventConfirmSignUpFailed, err))
	}
	return err
}

func (p *Provider) confirmLocked(op, username, code string) error {
	if err := p.enter(OpConfirmSignUp); err != nil {
		return err
	}
	a, ok := p.accounts[username]
	if !ok {
		return identity.NewError(op, identity.KindUserNotFound, "username/client id combination not found", nil)
	}
	if a.confirmed {
		return nil
	}
	if a.code == "" || a.code != code {
		return identity.NewError(op, identity.KindCodeMismatch, "invalid verification code provided", nil)
	}
	if p.now().Sub(a.codeSent) > p.codeTTL {
		return identity.NewError(op, identity.KindExpiredCode, "invalid code provided, please request a code again", nil)
	}
	a.confirmed = true
	a.code = ""
	return nil
}

func (p *Provider) ResendSignUpCode(ctx context.Context, username string) error {
	const op = string(OpResendSignUpCode)
	if err := ctx.Err(); err != nil {
		return identity.NewError(op, identity.KindUnavailable, "", err)
	}

	p.mu.Lock()
	if err := p.enter(OpResendSignUpCode); err != nil {
		p.mu.Unlock()
		return err
	}
	a, ok := p.accounts[username]
	if !ok {
		p.mu.Unlock()
		return identity.NewError(op, identity.KindUserNotFound, "username/client id combination not found", nil)
	}
	if a.confirmed {
		p.mu.Unlock()
		return identity.NewError(op, identity.KindInvalidParameter, "user is already confirmed", nil)
	}
	code, err := p.issueCodeLocked(a)
	sink := p.codeSink
	p.mu.Unlock()
	if err != nil {
		return identity.NewError(op, identity.KindUnknown, "", err)
	}
	if sink != nil {
		sink(username, code)
	}
	return nil
}

func (p *Provider) SignIn(ctx context.Context, in identity.SignInInput) (identity.SignInResult, error) {
	const op = string(OpSignIn)
	if err := ctx.Err(); err != nil {
		return identity.SignInResult{}, identity.NewError(op, identity.KindUnavailable, "", err)
	}

	p.mu.Lock()
	res, err := p.signInLocked(op, in)
	p.mu.Unlock()

	switch {
	case err != nil && identity.KindOf(err) != identity.KindAlreadyAuthenticated:
		p.hub.Publish(identity.NewEvent(identity.EventSignInFailed, err))
	case err == nil && res.SignedIn:
		p.hub.Publish(identity.NewEvent(identity.EventSignedIn, in.Username))
	}
	return res, err
}

func (p *Provider) signInLocked(op string, in identity.SignInInput) (identity.SignInResult, error) {
	if err := p.enter(OpSignIn); err != nil {
		return identity.SignInResult{}, err
	}
	if p.session != nil {
		return identity.SignInResult{}, identity.NewError(op, identity.KindAlreadyAuthenticated, "there is already a signed in user", nil)
	}
	a, ok := p.accounts[in.Username]
	if !ok {
		return identity.SignInResult{}, identity.NewError(op, identity.KindUserNotFound, "user does not exist", nil)
	}
	if a.password != in.Password {
		return identity.SignInResult{}, identity.NewError(op, identity.KindNotAuthorized, "incorrect username or password", nil)
	}
	if !a.confirmed {
		if p.confirmAsStep {
			return identity.SignInResult{SignedIn: false, NextStep: identity.SignInConfirmSignUp}, nil
		}
		return identity.SignInResult{}, identity.NewError(op, identity.KindNotConfirmed, "user is not confirmed", nil)
	}
	if err := p.startSessionLocked(a); err != nil {
		return identity.SignInResult{}, identity.NewError(op, identity.KindUnknown, "", err)
	}
	return identity.SignInResult{SignedIn: true, NextStep: identity.SignInDone}, nil
}

func (p *Provider) startSessionLocked(a *account) error {
	u := identity.CurrentUser{Username: a.username, UserID: a.id}
	tokens, err := p.mint(a.id, jwt.Profile{Username: a.username, Email: a.email, Nickname: a.nickname})
	if err != nil {
		return err
	}
	p.session = &current{user: u, tokens: tokens}
	return nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	const op = string(OpSignOut)
	if err := ctx.Err(); err != nil {
		return identity.NewError(op, identity.KindUnavailable, "", err)
	}

	p.mu.Lock()
	if err := p.enter(OpSignOut); err != nil {
		p.mu.Unlock()
		return err
	}
	p.session = nil
	p.mu.Unlock()

	p.hub.Publish(identity.NewEvent(identity.EventSignedOut, nil))
	return nil
}

func (p *Provider) GetCurrentUser(ctx context.Context) (identity.CurrentUser, error) {
	const op = string(OpGetCurrentUser)
	if err := ctx.Err(); err != nil {
		return identity.CurrentUser{}, identity.NewError(op, identity.KindUnavailable, "", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpGetCurrentUser); err != nil {
		return identity.CurrentUser{}, err
	}
	if p.session == nil {
		return identity.CurrentUser{}, identity.NewError(op, identity.KindNoSession, "user needs to be authenticated", nil)
	}
	return p.session.user, nil
}

func (p *Provider) FetchAuthSession(ctx context.Context) (identity.AuthSession, error) {
	const op = string(OpFetchAuthSession)
	if err := ctx.Err(); err != nil {
		return identity.AuthSession{}, identity.NewError(op, identity.KindUnavailable, "", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpFetchAuthSession); err != nil {
		return identity.AuthSession{}, err
	}
	if p.session == nil || p.withholdTokens {
		return identity.AuthSession{}, nil
	}
	t := p.session.tokens
	return identity.AuthSession{Tokens: &t}, nil
}

// SignInElsewhere starts a session for username without going through SignIn,
// as a hosted UI or another tab would, and publishes EventSignedIn.
func (p *Provider) SignInElsewhere(username string) error {
	p.mu.Lock()
	a, ok := p.accounts[username]
	if !ok {
		p.mu.Unlock()
		return identity.NewError("signInElsewhere", identity.KindUserNotFound, "user does not exist", nil)
	}
	err := p.startSessionLocked(a)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.hub.Publish(identity.NewEvent(identity.EventSignedIn, username))
	return nil
}

// ForceSignOut ends the current session out of band and publishes
// EventSignedOut.
func (p *Provider) ForceSignOut() {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
	p.hub.Publish(identity.NewEvent(identity.EventSignedOut, nil))
}

var _ identity.Provider = (*Provider)(nil)
