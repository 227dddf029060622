package kratos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authsync/credstore"
	"github.com/MrEthical07/authsync/identity"
)

// fakeKratos serves the subset of the public API the adapter uses.
type fakeKratos struct {
	t *testing.T

	mu         sync.Mutex
	password   string
	confirmed  bool
	code       string
	token      string
	revoked    bool
	tokenized  string
	throttle   bool
	inactive   bool
}

func (f *fakeKratos) flow(id string) map[string]any {
	now := time.Now().UTC()
	return map[string]any{
		"id":          id,
		"type":        "api",
		"expires_at":  now.Add(time.Hour).Format(time.RFC3339),
		"issued_at":   now.Format(time.RFC3339),
		"request_url": "http://kratos/self-service",
		"state":       "choose_method",
		"ui":          map[string]any{"action": "http://kratos/self-service", "method": "POST", "nodes": []any{}},
	}
}

func (f *fakeKratos) identityJSON() map[string]any {
	return map[string]any{
		"id":         "ident-1",
		"schema_id":  "default",
		"schema_url": "http://kratos/schemas/default",
		"traits":     map[string]any{"username": "alice", "email": "alice@example.org"},
	}
}

func (f *fakeKratos) session() map[string]any {
	return map[string]any{
		"id":         "sess-1",
		"active":     !f.inactive,
		"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"identity":   f.identityJSON(),
	}
}

func (f *fakeKratos) set(fn func(f *fakeKratos)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func flowError(f *fakeKratos, id string, msgID int, text string) map[string]any {
	fl := f.flow(id)
	fl["ui"] = map[string]any{
		"action":   "http://kratos/self-service",
		"method":   "POST",
		"nodes":    []any{},
		"messages": []any{map[string]any{"id": msgID, "text": text, "type": "error"}},
	}
	return fl
}

func (f *fakeKratos) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/self-service/registration/api":
		writeJSON(w, http.StatusOK, f.flow("reg-1"))
	case r.Method == http.MethodPost && r.URL.Path == "/self-service/registration":
		traits, _ := body["traits"].(map[string]any)
		if traits["username"] == "taken" {
			writeJSON(w, http.StatusBadRequest, flowError(f, "reg-1", 4000007, "An account with the same identifier exists already."))
			return
		}
		f.password, _ = body["password"].(string)
		f.code = "123456"
		writeJSON(w, http.StatusOK, map[string]any{
			"identity": f.identityJSON(),
			"continue_with": []any{map[string]any{
				"action": "show_verification_ui",
				"flow":   map[string]any{"id": "ver-1", "verifiable_address": "alice@example.org", "url": "http://kratos/verification?flow=ver-1"},
			}},
		})
	case r.Method == http.MethodGet && r.URL.Path == "/self-service/verification/api":
		writeJSON(w, http.StatusOK, f.flow("ver-2"))
	case r.Method == http.MethodPost && r.URL.Path == "/self-service/verification":
		fl := f.flow(r.URL.Query().Get("flow"))
		if code, ok := body["code"].(string); ok {
			if code != f.code {
				writeJSON(w, http.StatusOK, flowError(f, r.URL.Query().Get("flow"), 4070006, "The verification code is invalid or has already been used."))
				return
			}
			f.confirmed = true
			fl["state"] = "passed_challenge"
			writeJSON(w, http.StatusOK, fl)
			return
		}
		f.code = "654321"
		fl["state"] = "sent_email"
		writeJSON(w, http.StatusOK, fl)
	case r.Method == http.MethodGet && r.URL.Path == "/self-service/login/api":
		if f.throttle {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": map[string]any{"code": 429, "message": "Too many requests"}})
			return
		}
		writeJSON(w, http.StatusOK, f.flow("login-1"))
	case r.Method == http.MethodPost && r.URL.Path == "/self-service/login":
		if body["password"] != f.password {
			writeJSON(w, http.StatusBadRequest, flowError(f, "login-1", 4000006, "The provided credentials are invalid."))
			return
		}
		if !f.confirmed {
			writeJSON(w, http.StatusBadRequest, flowError(f, "login-1", 4000010, "Account not active yet."))
			return
		}
		f.token = "ory_st_alice"
		f.revoked = false
		writeJSON(w, http.StatusOK, map[string]any{"session": f.session(), "session_token": f.token})
	case r.Method == http.MethodGet && r.URL.Path == "/sessions/whoami":
		if f.token == "" || f.revoked || r.Header.Get("X-Session-Token") != f.token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"id": "session_inactive", "code": 401, "message": "unauthorized"}})
			return
		}
		s := f.session()
		if tmpl := r.URL.Query().Get("tokenize_as"); tmpl != "" {
			s["tokenized"] = f.tokenized
		}
		writeJSON(w, http.StatusOK, s)
	case r.Method == http.MethodDelete && r.URL.Path == "/self-service/logout/api":
		if body["session_token"] != f.token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"code": 401, "message": "unauthorized"}})
			return
		}
		f.revoked = true
		w.WriteHeader(http.StatusNoContent)
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestProvider(t *testing.T, template string) (*Provider, *fakeKratos, credstore.Store) {
	t.Helper()
	fake := &fakeKratos{t: t, tokenized: "eyJ.alice.jwt"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	creds := credstore.NewMemory()
	p, err := New(Config{
		BaseURL:          srv.URL,
		HTTPClient:       srv.Client(),
		TokenizeTemplate: template,
		Credentials:      creds,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, fake, creds
}

func wantKind(t *testing.T, err error, kind identity.ErrorKind) {
	t.Helper()
	if got := identity.KindOf(err); got != kind {
		t.Fatalf("expected kind %v, got %v (%v)", kind, got, err)
	}
}

func TestRegistrationVerificationAndLogin(t *testing.T) {
	ctx := context.Background()
	p, _, creds := newTestProvider(t, "jwt_example")

	var mu sync.Mutex
	var events []identity.EventKind
	p.Subscribe(func(ev identity.Event) {
		mu.Lock()
		events = append(events, ev.Kind)
		mu.Unlock()
	})

	res, err := p.SignUp(ctx, identity.SignUpInput{Username: "alice", Password: "password1", Email: "alice@example.org", Nickname: "Alice"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if res.Complete || res.NextStep != identity.SignUpConfirm || res.UserID != "ident-1" {
		t.Fatalf("unexpected sign-up result %+v", res)
	}

	_, err = p.SignIn(ctx, identity.SignInInput{Username: "alice", Password: "password1"})
	wantKind(t, err, identity.KindNotConfirmed)

	wantKind(t, p.ConfirmSignUp(ctx, "alice", "000000"), identity.KindCodeMismatch)
	if err := p.ResendSignUpCode(ctx, "alice"); err != nil {
		t.Fatalf("ResendSignUpCode: %v", err)
	}
	if err := p.ConfirmSignUp(ctx, "alice", "654321"); err != nil {
		t.Fatalf("ConfirmSignUp: %v", err)
	}

	in, err := p.SignIn(ctx, identity.SignInInput{Username: "alice", Password: "password1"})
	if err != nil || !in.SignedIn {
		t.Fatalf("SignIn: %+v %v", in, err)
	}
	stored, err := creds.Load(ctx)
	if err != nil || stored.SessionToken != "ory_st_alice" || stored.Username != "alice" || stored.IdentityID != "ident-1" {
		t.Fatalf("unexpected stored credentials %+v %v", stored, err)
	}

	u, err := p.GetCurrentUser(ctx)
	if err != nil || u.Username != "alice" {
		t.Fatalf("GetCurrentUser: %+v %v", u, err)
	}
	s, err := p.FetchAuthSession(ctx)
	if err != nil || !s.Complete() {
		t.Fatalf("FetchAuthSession: %+v %v", s, err)
	}
	if s.Tokens.AccessToken != "ory_st_alice" || s.Tokens.IDToken != "eyJ.alice.jwt" {
		t.Fatalf("unexpected tokens %+v", s.Tokens)
	}

	_, err = p.SignIn(ctx, identity.SignInInput{Username: "alice", Password: "password1"})
	wantKind(t, err, identity.KindAlreadyAuthenticated)

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := creds.Load(ctx); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected credentials removed, got %v", err)
	}
	_, err = p.GetCurrentUser(ctx)
	wantKind(t, err, identity.KindNoSession)

	mu.Lock()
	defer mu.Unlock()
	want := []identity.EventKind{identity.EventSignInFailed, identity.EventConfirmSignUpFailed, identity.EventSignedIn, identity.EventSignedOut}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestSignUpDuplicateUsername(t *testing.T) {
	p, _, _ := newTestProvider(t, "")
	_, err := p.SignUp(context.Background(), identity.SignUpInput{Username: "taken", Password: "password1", Email: "t@example.org"})
	wantKind(t, err, identity.KindUsernameExists)
}

func TestSignInWrongPassword(t *testing.T) {
	p, fake, _ := newTestProvider(t, "")
	fake.set(func(f *fakeKratos) { f.password, f.confirmed = "right", true })

	_, err := p.SignIn(context.Background(), identity.SignInInput{Username: "alice", Password: "wrong"})
	wantKind(t, err, identity.KindNotAuthorized)
}

func TestSignInThrottled(t *testing.T) {
	p, fake, _ := newTestProvider(t, "")
	fake.set(func(f *fakeKratos) { f.throttle = true })

	_, err := p.SignIn(context.Background(), identity.SignInInput{Username: "alice", Password: "x"})
	wantKind(t, err, identity.KindTooManyRequests)
}

func TestSessionTokenDoublesAsIDTokenWithoutTemplate(t *testing.T) {
	ctx := context.Background()
	p, fake, _ := newTestProvider(t, "")
	fake.set(func(f *fakeKratos) { f.password, f.confirmed = "password1", true })

	if _, err := p.SignIn(ctx, identity.SignInInput{Username: "alice", Password: "password1"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	s, err := p.FetchAuthSession(ctx)
	if err != nil || s.Tokens == nil || s.Tokens.IDToken != "ory_st_alice" {
		t.Fatalf("unexpected session %+v %v", s, err)
	}
}

func TestRevokedSessionIsDroppedFromStore(t *testing.T) {
	ctx := context.Background()
	p, fake, creds := newTestProvider(t, "")
	if err := creds.Save(ctx, credstore.Credentials{SessionToken: "ory_st_stale", Username: "alice"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	fake.set(func(f *fakeKratos) { f.token = "ory_st_other" })

	s, err := p.FetchAuthSession(ctx)
	if err != nil || s.Tokens != nil {
		t.Fatalf("expected empty session, got %+v %v", s, err)
	}
	if _, err := creds.Load(ctx); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected stale credentials removed, got %v", err)
	}
}

// failingDelete is a credential store whose Delete always fails.
type failingDelete struct {
	credstore.Store
}

func (failingDelete) Delete(context.Context) error {
	return errors.New("store offline")
}

func TestInactiveSessionDeleteFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	fake := &fakeKratos{t: t, token: "ory_st_alice", inactive: true}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	var logs bytes.Buffer
	creds := failingDelete{Store: credstore.NewMemory()}
	if err := creds.Save(ctx, credstore.Credentials{SessionToken: "ory_st_alice", Username: "alice"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, err := New(Config{
		BaseURL:     srv.URL,
		HTTPClient:  srv.Client(),
		Credentials: creds,
		Logger:      slog.New(slog.NewTextHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.GetCurrentUser(ctx)
	wantKind(t, err, identity.KindNoSession)
	if !bytes.Contains(logs.Bytes(), []byte("delete inactive session failed")) {
		t.Fatalf("expected delete failure logged, got %q", logs.String())
	}
	if !bytes.Contains(logs.Bytes(), []byte("store offline")) {
		t.Fatalf("expected the store error in the log, got %q", logs.String())
	}
}

func TestUnreachableKratosIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := New(Config{BaseURL: url, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.SignIn(context.Background(), identity.SignInInput{Username: "a", Password: "b"})
	wantKind(t, err, identity.KindUnavailable)
}

func TestConfirmWithoutPendingVerification(t *testing.T) {
	p, _, _ := newTestProvider(t, "")
	wantKind(t, p.ConfirmSignUp(context.Background(), "nobody", "123456"), identity.KindExpiredCode)
	wantKind(t, p.ResendSignUpCode(context.Background(), "nobody"), identity.KindUserNotFound)
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected missing base url to fail")
	}
}
