package session

import (
	"errors"
	"sync"
)

var (
	// ErrIncompleteSession is returned when a write would leave the session
	// partially populated.
	ErrIncompleteSession = errors.New("session requires access token, id token and username")
	// ErrAnonymous is returned by partial updates applied to an anonymous session.
	ErrAnonymous = errors.New("session is anonymous")
	// ErrSealed is returned by writes to a store after Seal.
	ErrSealed = errors.New("session store sealed")
)

// Store is the single source of truth for the client's authentication state.
//
// All mutations are synchronous whole-object replacements. Writers are
// serialized, so watchers observe changes in write order. Store methods are safe
// for concurrent use; watchers must not call mutation methods.
type Store struct {
	writeMu sync.Mutex

	mu      sync.RWMutex
	current Session
	sealed  bool

	cache *TokenCache

	watchMu  sync.Mutex
	watchers map[uint64]func(Session)
	nextID   uint64
}

// NewStore returns an anonymous store mirroring its id token into cache. A nil
// cache selects [GlobalTokens]. The cache is left as it is until the store's
// first effective write, so a token another store wrote survives.
func NewStore(cache *TokenCache) *Store {
	if cache == nil {
		cache = GlobalTokens()
	}
	return &Store{
		cache:    cache,
		watchers: make(map[uint64]func(Session)),
	}
}

// Tokens returns the cache this store writes.
func (s *Store) Tokens() *TokenCache {
	return s.cache
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// AccessToken returns the access token, or "" when anonymous.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken
}

// IDToken returns the id token, or "" when anonymous.
func (s *Store) IDToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.IDToken
}

// User returns a copy of the session user, or nil when anonymous.
func (s *Store) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.User == nil {
		return nil
	}
	u := *s.current.User
	return &u
}

// Authenticated reports whether the store currently holds a full session.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Authenticated()
}

// SetSession replaces the whole session. All three values are required.
//
// Writing a session equivalent to the current one is a no-op, so the same
// provider session applied by several writers in any order converges.
func (s *Store) SetSession(accessToken, idToken string, user User) error {
	if accessToken == "" || idToken == "" || user.Username == "" {
		return ErrIncompleteSession
	}
	return s.replace(func(Session) (Session, error) {
		return Session{
			AccessToken: accessToken,
			IDToken:     idToken,
			User:        &User{Username: user.Username},
		}, nil
	})
}

// SetTokens replaces both tokens of an authenticated session and keeps its user.
func (s *Store) SetTokens(accessToken, idToken string) error {
	if accessToken == "" || idToken == "" {
		return ErrIncompleteSession
	}
	return s.replace(func(cur Session) (Session, error) {
		if !cur.Authenticated() {
			return cur, ErrAnonymous
		}
		next := cur.clone()
		next.AccessToken = accessToken
		next.IDToken = idToken
		return next, nil
	})
}

// SetUser replaces the user of an authenticated session and keeps its tokens.
func (s *Store) SetUser(user User) error {
	if user.Username == "" {
		return ErrIncompleteSession
	}
	return s.replace(func(cur Session) (Session, error) {
		if !cur.Authenticated() {
			return cur, ErrAnonymous
		}
		next := cur.clone()
		next.User = &User{Username: user.Username}
		return next, nil
	})
}

// ClearAuth resets the store to the anonymous session and clears the cache.
// Calling it on an anonymous or sealed store changes nothing.
func (s *Store) ClearAuth() {
	_ = s.replace(func(Session) (Session, error) {
		return Session{}, nil
	})
}

// Seal makes every later write fail with ErrSealed; ClearAuth becomes a no-op.
// A write already past its checks finishes before Seal returns. When this
// store wrote the cache last, Seal also empties the cache. Sealing twice is
// harmless.
func (s *Store) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	s.sealed = true
	s.cache.release(s)
}

// Watch registers fn to receive every effective change. The returned function
// removes the watcher; calling it more than once is harmless.
func (s *Store) Watch(fn func(Session)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watchMu.Unlock()
		})
	}
}

func (s *Store) replace(next func(Session) (Session, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.sealed {
		s.mu.Unlock()
		return ErrSealed
	}
	cur := s.current
	updated, err := next(cur)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if updated.Equivalent(cur) {
		s.mu.Unlock()
		return nil
	}
	updated.Version = cur.Version + 1
	// The cache is written while the session lock is held, so no reader can see
	// the new session before the cache carries its id token.
	s.cache.set(s, updated.IDToken)
	s.current = updated
	snapshot := updated.clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

func (s *Store) notify(snapshot Session) {
	s.watchMu.Lock()
	fns := make([]func(Session), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(snapshot.clone())
	}
}
