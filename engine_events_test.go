package authsync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authsync/identity"
	"github.com/MrEthical07/authsync/session"
)

func TestBridgeSignedOutClearsStore(t *testing.T) {
	e, p := newMemoryEngine(t, staticTokens("acc1", "id1"))
	p.AddUser("alice", "password-1", "alice@example.com", true)
	if _, err := e.NewAuthFlow().SubmitSignIn(context.Background(), "alice", "password-1"); err != nil {
		t.Fatalf("SubmitSignIn failed: %v", err)
	}
	flushBridge(t, e)

	p.ForceSignOut()
	flushBridge(t, e)

	if e.Session().Authenticated() {
		t.Fatal("expected SignedOut to clear the session")
	}
	if _, ok := e.Tokens().Get(); ok {
		t.Fatal("expected SignedOut to clear the token cache")
	}
}

func TestBridgeSignedInElsewhereWritesProviderSession(t *testing.T) {
	e, p := newMemoryEngine(t, staticTokens("acc1", "id1"))
	p.AddUser("alice", "password-1", "alice@example.com", true)

	if err := p.SignInElsewhere("alice"); err != nil {
		t.Fatalf("SignInElsewhere failed: %v", err)
	}
	flushBridge(t, e)

	s := e.Session()
	if s.AccessToken != "acc1" || s.IDToken != "id1" || s.Username() != "alice" {
		t.Fatalf("unexpected session %+v", s)
	}
	if e.Tokens().Token() != "id1" {
		t.Fatalf("expected cache id1, got %q", e.Tokens().Token())
	}
}

func TestBridgeSignedInRefetchFailureWritesNothing(t *testing.T) {
	e, p := newMemoryEngine(t)

	p.Publish(identity.NewEvent(identity.EventSignedIn, "alice"))
	flushBridge(t, e)
	if e.Session().Authenticated() {
		t.Fatal("failed refetch must not authenticate")
	}

	if err := e.Store().SetSession("acc1", "id1", session.User{Username: "alice"}); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}
	version := e.Session().Version
	p.Publish(identity.NewEvent(identity.EventAutoSignedIn, nil))
	flushBridge(t, e)
	if s := e.Session(); !s.Authenticated() || s.Version != version {
		t.Fatalf("failed refetch must leave the session unchanged, got %+v", s)
	}
}

func TestBridgeFailureEventsClearAndReport(t *testing.T) {
	kinds := []identity.EventKind{
		identity.EventSignInFailed,
		identity.EventSignUpFailed,
		identity.EventConfirmSignUpFailed,
		identity.EventAutoSignInFailed,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			p := newMemoryProvider(t)
			sink := NewChannelSink(8)
			cfg := testConfig()
			cfg.Diagnostics.Enabled = true
			e := buildTestEngine(t, cfg, p, sink)
			startTestEngine(t, e)

			if err := e.Store().SetSession("acc1", "id1", session.User{Username: "alice"}); err != nil {
				t.Fatalf("SetSession failed: %v", err)
			}
			p.Publish(identity.NewEvent(kind, errors.New("provider said no")))
			flushBridge(t, e)

			if e.Session().Authenticated() {
				t.Fatal("failure event must clear the session")
			}
			select {
			case ev := <-sink.Events():
				// The bootstrap diagnostic is not emitted for a plain missing session.
				if ev.EventType != diagIdentityFailure || ev.Kind != string(kind) || ev.Error != "provider said no" {
					t.Fatalf("unexpected diagnostic %+v", ev)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("expected failure diagnostic")
			}
			if got := e.MetricsSnapshot().Counters[MetricBridgeEventFailure]; got != 1 {
				t.Fatalf("expected one failure event counted, got %d", got)
			}
		})
	}
}

func TestBridgeIgnoresUnknownEvents(t *testing.T) {
	e, p := newMemoryEngine(t)
	if err := e.Store().SetSession("acc1", "id1", session.User{Username: "alice"}); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}
	version := e.Session().Version

	p.Publish(identity.NewEvent(identity.EventKind("tokenRefresh"), nil))
	flushBridge(t, e)

	if s := e.Session(); !s.Authenticated() || s.Version != version {
		t.Fatalf("unknown event must not touch the session, got %+v", s)
	}
	if got := e.MetricsSnapshot().Counters[MetricBridgeEventIgnored]; got != 1 {
		t.Fatalf("expected one ignored event, got %d", got)
	}
}

func TestBridgeHoldsEventsUntilBootstrapFinishes(t *testing.T) {
	p := newScriptedProvider()
	gate := make(chan struct{})
	p.set(func(p *scriptedProvider) { p.userGate = gate })
	p.signedIn("alice", "acc1", "id1")

	e := buildTestEngine(t, testConfig(), p, nil)
	started := make(chan error, 1)
	go func() { started <- e.Start(context.Background()) }()
	waitFor(t, "subscription", func() bool { return p.Subscribers() == 1 })

	// Raised while bootstrap is still resolving: must win over its result.
	p.Publish(identity.NewEvent(identity.EventSignedOut, nil))

	close(gate)
	if err := <-started; err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if e.Phase() != PhaseReadyAuthenticated {
		t.Fatalf("expected ready_authenticated, got %s", e.Phase())
	}
	flushBridge(t, e)
	if e.Session().Authenticated() {
		t.Fatal("expected the queued SignedOut to apply after bootstrap")
	}
}

func TestBridgeWritesNothingAfterClose(t *testing.T) {
	e, p := newMemoryEngine(t, staticTokens("acc1", "id1"))
	p.AddUser("alice", "password-1", "alice@example.com", true)
	e.Close()

	if err := p.SignInElsewhere("alice"); err != nil {
		t.Fatalf("SignInElsewhere failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if e.Session().Authenticated() {
		t.Fatal("closed engine must not apply events")
	}
	if err := e.bridge.flush(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed from flush, got %v", err)
	}
}

func TestBridgeAndFlowConvergeOnOneWrite(t *testing.T) {
	cases := []struct {
		name        string
		bridgeFirst bool
	}{
		{name: "flow first"},
		{name: "bridge first", bridgeFirst: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, p := newMemoryEngine(t, staticTokens("acc1", "id1"))
			p.AddUser("alice", "password-1", "alice@example.com", true)

			var notified atomic.Int32
			cancel := e.Store().Watch(func(session.Session) { notified.Add(1) })
			defer cancel()

			if tc.bridgeFirst {
				if err := p.SignInElsewhere("alice"); err != nil {
					t.Fatalf("SignInElsewhere failed: %v", err)
				}
				flushBridge(t, e)
				if s := e.Session(); s.Version != 1 {
					t.Fatalf("expected the bridge to write first, got %+v", s)
				}
			}

			out, err := e.NewAuthFlow().SubmitSignIn(context.Background(), "alice", "password-1")
			if err != nil {
				t.Fatalf("SubmitSignIn failed: %v", err)
			}
			if out.Route != RouteApp {
				t.Fatalf("expected RouteApp, got %+v", out)
			}
			flushBridge(t, e)

			if s := e.Session(); s.Version != 1 || s.Username() != "alice" {
				t.Fatalf("expected exactly one effective write, got %+v", s)
			}
			if n := notified.Load(); n != 1 {
				t.Fatalf("expected one notification, got %d", n)
			}
		})
	}
}

func TestCancelledFlowDoesNotStarveBridgeResolve(t *testing.T) {
	p := newScriptedProvider()
	e := buildTestEngine(t, testConfig(), p, nil)
	startTestEngine(t, e)
	bootstrapCalls := p.count("getCurrentUser")

	gate := make(chan struct{})
	p.signedIn("alice", "acc1", "id1")
	p.set(func(p *scriptedProvider) {
		p.userGate = gate
		p.signInRes = identity.SignInResult{SignedIn: true}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := e.NewAuthFlow().SubmitSignIn(ctx, "alice", "password-1")
		done <- err
	}()
	waitFor(t, "flow resolve", func() bool { return p.count("getCurrentUser") == bootstrapCalls+1 })

	p.Publish(identity.NewEvent(identity.EventSignedIn, "alice"))
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-done; err == nil {
		t.Fatal("expected the cancelled submission to fail")
	}

	close(gate)
	flushBridge(t, e)

	s := e.Session()
	if !s.Authenticated() || s.Username() != "alice" || s.IDToken != "id1" {
		t.Fatalf("expected the bridge to apply the shared resolve, got %+v", s)
	}
	if n := p.count("getCurrentUser"); n != bootstrapCalls+1 {
		t.Fatalf("expected one shared provider read, got %d", n-bootstrapCalls)
	}
	if got := e.MetricsSnapshot().Counters[MetricSessionResolveShared]; got == 0 {
		t.Fatal("expected the bridge to share the flow's resolve")
	}
}

func TestCloseCancelsSharedResolve(t *testing.T) {
	p := newScriptedProvider()
	e := buildTestEngine(t, testConfig(), p, nil)
	startTestEngine(t, e)
	base := p.count("getCurrentUser")

	p.signedIn("alice", "acc1", "id1")
	p.set(func(p *scriptedProvider) {
		p.userGate = make(chan struct{})
	})
	p.Publish(identity.NewEvent(identity.EventSignedIn, "alice"))
	waitFor(t, "bridge resolve", func() bool { return p.count("getCurrentUser") == base+1 })

	closed := make(chan struct{})
	go func() {
		e.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a provider read")
	}
	if e.Session().Authenticated() {
		t.Fatal("closed engine must not write the store")
	}
}
