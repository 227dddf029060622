package session

import (
	"sync"
	"sync/atomic"
)

// TokenCache is a single mutable slot holding the latest id token.
//
// Reads are lock-free and may come from any goroutine. Only the stores bound to
// the cache write it; last write wins. The cache remembers which store wrote
// last so a sealed store clears only its own token.
type TokenCache struct {
	token atomic.Pointer[string]

	mu     sync.Mutex
	writer *Store
}

var globalTokens = NewTokenCache()

// GlobalTokens returns the process-wide cache used by default by every Store
// built without an explicit cache.
func GlobalTokens() *TokenCache {
	return globalTokens
}

// NewTokenCache returns an empty, isolated cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// Get returns the cached id token and whether one is present.
func (c *TokenCache) Get() (string, bool) {
	if c == nil {
		return "", false
	}
	p := c.token.Load()
	if p == nil || *p == "" {
		return "", false
	}
	return *p, true
}

// Token returns the cached id token or "" when absent. It satisfies the token
// source contract used by the HTTP middleware.
func (c *TokenCache) Token() string {
	tok, _ := c.Get()
	return tok
}

func (c *TokenCache) set(w *Store, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer = w
	if token == "" {
		c.token.Store(nil)
		return
	}
	c.token.Store(&token)
}

// release empties the cache if w wrote it last.
func (c *TokenCache) release(w *Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer != w {
		return
	}
	c.writer = nil
	c.token.Store(nil)
}
