package authsync

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authsync/identity"
	"github.com/MrEthical07/authsync/identity/memory"
	"github.com/MrEthical07/authsync/jwt"
	"github.com/MrEthical07/authsync/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Session.UseGlobalTokenCache = false
	return cfg
}

// buildTestEngine builds an engine on p with an isolated token cache. It is
// not started.
func buildTestEngine(t *testing.T, cfg Config, p identity.Provider, sink DiagnosticsSink) *Engine {
	t.Helper()
	e, err := New().
		WithConfig(cfg).
		WithProvider(p).
		WithLogger(discardLogger()).
		WithTokenCache(session.NewTokenCache()).
		WithDiagnosticsSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func startTestEngine(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func newMemoryProvider(t *testing.T, opts ...memory.Option) *memory.Provider {
	t.Helper()
	p, err := memory.New(opts...)
	if err != nil {
		t.Fatalf("memory.New failed: %v", err)
	}
	return p
}

// newMemoryEngine returns a started engine on a fresh memory provider.
func newMemoryEngine(t *testing.T, opts ...memory.Option) (*Engine, *memory.Provider) {
	t.Helper()
	p := newMemoryProvider(t, opts...)
	e := buildTestEngine(t, testConfig(), p, nil)
	startTestEngine(t, e)
	return e, p
}

func staticTokens(access, id string) memory.Option {
	return memory.WithTokenMinter(func(string, jwt.Profile) (identity.Tokens, error) {
		return identity.Tokens{AccessToken: access, IDToken: id}, nil
	})
}

func flushBridge(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.bridge.flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// scriptedProvider answers every call from its fields. A non-nil gate makes
// the gated operation wait for a receive before answering.
type scriptedProvider struct {
	identity.Hub

	mu sync.Mutex

	signUpIn  identity.SignUpInput
	signUpRes identity.SignUpResult
	signUpErr error

	signInRes identity.SignInResult
	signInErr error
	signOutErr error

	user    identity.CurrentUser
	userErr error
	auth    identity.AuthSession
	authErr error

	signInGate chan struct{}
	userGate   chan struct{}

	calls map[string]int
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{calls: make(map[string]int)}
}

func (p *scriptedProvider) set(fn func(*scriptedProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *scriptedProvider) count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *scriptedProvider) enter(op string) {
	p.mu.Lock()
	p.calls[op]++
	p.mu.Unlock()
}

func (p *scriptedProvider) signedIn(username, access, id string) {
	p.set(func(p *scriptedProvider) {
		p.user = identity.CurrentUser{Username: username}
		p.userErr = nil
		p.auth = identity.AuthSession{Tokens: &identity.Tokens{AccessToken: access, IDToken: id}}
		p.authErr = nil
	})
}

func (p *scriptedProvider) SignUp(_ context.Context, in identity.SignUpInput) (identity.SignUpResult, error) {
	p.enter("signUp")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signUpIn = in
	return p.signUpRes, p.signUpErr
}

func (p *scriptedProvider) ConfirmSignUp(context.Context, string, string) error {
	p.enter("confirmSignUp")
	return nil
}

func (p *scriptedProvider) ResendSignUpCode(context.Context, string) error {
	p.enter("resendSignUpCode")
	return nil
}

func (p *scriptedProvider) SignIn(ctx context.Context, _ identity.SignInInput) (identity.SignInResult, error) {
	p.enter("signIn")
	p.mu.Lock()
	gate := p.signInGate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return identity.SignInResult{}, identity.NewError("signIn", identity.KindUnavailable, "", ctx.Err())
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signInRes, p.signInErr
}

func (p *scriptedProvider) SignOut(context.Context) error {
	p.enter("signOut")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOutErr
}

func (p *scriptedProvider) GetCurrentUser(ctx context.Context) (identity.CurrentUser, error) {
	p.enter("getCurrentUser")
	p.mu.Lock()
	gate := p.userGate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return identity.CurrentUser{}, identity.NewError("getCurrentUser", identity.KindUnavailable, "", ctx.Err())
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userErr != nil {
		return identity.CurrentUser{}, p.userErr
	}
	if p.user.Username == "" {
		return identity.CurrentUser{}, identity.NewError("getCurrentUser", identity.KindNoSession, "", nil)
	}
	return p.user, nil
}

func (p *scriptedProvider) FetchAuthSession(context.Context) (identity.AuthSession, error) {
	p.enter("fetchAuthSession")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auth, p.authErr
}

var _ identity.Provider = (*scriptedProvider)(nil)
