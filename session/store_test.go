package session

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) (*Store, *TokenCache) {
	t.Helper()
	cache := NewTokenCache()
	return NewStore(cache), cache
}

func TestSetSessionMirrorsIDTokenIntoCache(t *testing.T) {
	store, cache := newTestStore(t)

	if err := store.SetSession("acc1", "id1", User{Username: "alice"}); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}

	snap := store.Snapshot()
	if snap.AccessToken != "acc1" || snap.IDToken != "id1" || snap.Username() != "alice" {
		t.Fatalf("unexpected session: %+v", snap)
	}
	tok, ok := cache.Get()
	if !ok || tok != "id1" {
		t.Fatalf("expected cache id1, got %q (present=%v)", tok, ok)
	}
}

func TestSetSessionRejectsPartialState(t *testing.T) {
	store, cache := newTestStore(t)

	cases := []struct {
		name              string
		access, id, uname string
	}{
		{"missing access", "", "id1", "alice"},
		{"missing id", "acc1", "", "alice"},
		{"missing user", "acc1", "id1", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.SetSession(tc.access, tc.id, User{Username: tc.uname})
			if !errors.Is(err, ErrIncompleteSession) {
				t.Fatalf("expected ErrIncompleteSession, got %v", err)
			}
			if store.Authenticated() {
				t.Fatal("store must stay anonymous")
			}
			if _, ok := cache.Get(); ok {
				t.Fatal("cache must stay absent")
			}
		})
	}
}

func TestClearAuthIsIdempotent(t *testing.T) {
	store, cache := newTestStore(t)
	if err := store.SetSession("acc1", "id1", User{Username: "alice"}); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}

	store.ClearAuth()
	once := store.Snapshot()
	store.ClearAuth()
	twice := store.Snapshot()

	if once.Authenticated() || twice.Authenticated() {
		t.Fatal("expected anonymous session after ClearAuth")
	}
	if once.Version != twice.Version {
		t.Fatalf("second ClearAuth must not change state: %d != %d", once.Version, twice.Version)
	}
	if once.AccessToken != "" || once.IDToken != "" || once.User != nil {
		t.Fatalf("expected all fields absent, got %+v", once)
	}
	if _, ok := cache.Get(); ok {
		t.Fatal("expected cache absent after ClearAuth")
	}
}

func TestPartialUpdatesRequireAuthenticatedSession(t *testing.T) {
	store, cache := newTestStore(t)

	if err := store.SetTokens("acc2", "id2"); !errors.Is(err, ErrAnonymous) {
		t.Fatalf("expected ErrAnonymous from SetTokens, got %v", err)
	}
	if err := store.SetUser(User{Username: "bob"}); !errors.Is(err, ErrAnonymous) {
		t.Fatalf("expected ErrAnonymous from SetUser, got %v", err)
	}
	if store.Authenticated() {
		t.Fatal("partial updates must not authenticate an anonymous store")
	}

	if err := store.SetSession("acc1", "id1", User{Username: "alice"}); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}
	if err := store.SetTokens("acc2", "id2"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	if got := cache.Token(); got != "id2" {
		t.Fatalf("expected cache id2 after SetTokens, got %q", got)
	}
	if err := store.SetUser(User{Username: "alice2"}); err != nil {
		t.Fatalf("SetUser failed: %v", err)
	}
	snap := store.Snapshot()
	if snap.AccessToken != "acc2" || snap.Username() != "alice2" {
		t.Fatalf("unexpected session after partial updates: %+v", snap)
	}
}

func TestEquivalentWriteDoesNotNotify(t *testing.T) {
	store, _ := newTestStore(t)

	var calls int
	cancel := store.Watch(func(Session) { calls++ })
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := store.SetSession("acc1", "id1", User{Username: "alice"}); err != nil {
			t.Fatalf("SetSession failed: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly one notification, got %d", calls)
	}
	if v := store.Snapshot().Version; v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}
}

func TestWatchCancelStopsNotifications(t *testing.T) {
	store, _ := newTestStore(t)

	var seen []string
	cancel := store.Watch(func(s Session) { seen = append(seen, s.IDToken) })

	_ = store.SetSession("acc1", "id1", User{Username: "alice"})
	cancel()
	cancel()
	_ = store.SetSession("acc2", "id2", User{Username: "alice"})

	if len(seen) != 1 || seen[0] != "id1" {
		t.Fatalf("unexpected notifications: %v", seen)
	}
}

func TestWatcherSeesCacheAlreadyUpdated(t *testing.T) {
	store, cache := newTestStore(t)

	var mismatch bool
	store.Watch(func(s Session) {
		if cache.Token() != s.IDToken {
			mismatch = true
		}
	})

	_ = store.SetSession("acc1", "id1", User{Username: "alice"})
	store.ClearAuth()
	_ = store.SetSession("acc2", "id2", User{Username: "bob"})

	if mismatch {
		t.Fatal("watcher observed a session whose id token was not yet cached")
	}
}

func TestCacheTracksLastMutationForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		store, cache := newTestStore(t)
		want := ""
		steps := rng.Intn(12) + 1
		for i := 0; i < steps; i++ {
			switch rng.Intn(4) {
			case 0:
				store.ClearAuth()
				want = ""
			case 1:
				if store.SetTokens(fmt.Sprintf("acc-%d", i), fmt.Sprintf("id-%d", i)) == nil {
					want = fmt.Sprintf("id-%d", i)
				}
			case 2:
				_ = store.SetUser(User{Username: fmt.Sprintf("user-%d", i)})
			default:
				id := fmt.Sprintf("id-%d-%d", round, i)
				if err := store.SetSession("acc", id, User{Username: "alice"}); err != nil {
					t.Fatalf("SetSession failed: %v", err)
				}
				want = id
			}
		}
		if got := cache.Token(); got != want {
			t.Fatalf("round %d: cache %q, want %q", round, got, want)
		}
		if got := store.IDToken(); got != want {
			t.Fatalf("round %d: store id token %q, want %q", round, got, want)
		}
	}
}

func TestConcurrentWritersNeverExposePartialState(t *testing.T) {
	store, cache := newTestStore(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if i%5 == 0 {
					store.ClearAuth()
					continue
				}
				tok := fmt.Sprintf("%d-%d", w, i)
				_ = store.SetSession("acc-"+tok, "id-"+tok, User{Username: "u-" + tok})
			}
		}(w)
	}

	var readerErr error
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			s := store.Snapshot()
			empty := s.AccessToken == "" && s.IDToken == "" && s.User == nil
			if !empty && !s.Authenticated() {
				readerErr = fmt.Errorf("observed partial session %+v", s)
				return
			}
			if s.Authenticated() && s.AccessToken[len("acc-"):] != s.IDToken[len("id-"):] {
				readerErr = fmt.Errorf("observed mixed session %+v", s)
				return
			}
		}
	}()

	wg.Wait()
	close(stop)
	readers.Wait()

	if readerErr != nil {
		t.Fatal(readerErr)
	}
	if cache.Token() != store.IDToken() {
		t.Fatalf("cache %q diverged from store %q", cache.Token(), store.IDToken())
	}
}

func TestNilCacheSelectsGlobal(t *testing.T) {
	store := NewStore(nil)
	defer store.Seal()

	if store.Tokens() != GlobalTokens() {
		t.Fatal("expected global token cache")
	}
	_ = store.SetSession("acc1", "id1", User{Username: "alice"})
	if tok := GlobalTokens().Token(); tok != "id1" {
		t.Fatalf("expected global cache id1, got %q", tok)
	}
}

func TestSecondStoreKeepsSharedCacheToken(t *testing.T) {
	cache := NewTokenCache()
	first := NewStore(cache)
	if err := first.SetSession("acc1", "id1", User{Username: "alice"}); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}

	second := NewStore(cache)
	if tok := cache.Token(); tok != "id1" {
		t.Fatalf("expected id1 after second NewStore, got %q", tok)
	}
	second.Seal()
	if tok := cache.Token(); tok != "id1" {
		t.Fatalf("sealing a store that never wrote cleared the cache, got %q", tok)
	}

	first.Seal()
	if tok, ok := cache.Get(); ok {
		t.Fatalf("expected empty cache after sealing its writer, got %q", tok)
	}
}

func TestSealRejectsLaterWrites(t *testing.T) {
	store, cache := newTestStore(t)
	if err := store.SetSession("acc1", "id1", User{Username: "alice"}); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}
	store.Seal()
	store.Seal()

	if err := store.SetSession("acc2", "id2", User{Username: "bob"}); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed, got %v", err)
	}
	if err := store.SetTokens("acc3", "id3"); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed from SetTokens, got %v", err)
	}
	store.ClearAuth()
	if got := store.Snapshot(); got.User == nil || got.User.Username != "alice" {
		t.Fatalf("sealed store changed: %+v", got)
	}
	if _, ok := cache.Get(); ok {
		t.Fatal("expected cache emptied by Seal")
	}
}
