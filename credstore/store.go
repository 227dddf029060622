package credstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Load when no credentials are stored.
var ErrNotFound = errors.New("credentials not found")

// Credentials is the persisted provider session.
type Credentials struct {
	SessionToken string
	Username     string
	IdentityID   string
	ExpiresAt    time.Time
}

// Expired reports whether c carries an expiry that lies before now.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// Store loads, saves, and deletes one set of credentials.
type Store interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, c Credentials) error
	Delete(ctx context.Context) error
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.Mutex
	creds *Credentials
	now   func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Load(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Credentials{}, ErrNotFound
	}
	if m.creds.Expired(m.now()) {
		m.creds = nil
		return Credentials{}, ErrNotFound
	}
	return *m.creds, nil
}

func (m *Memory) Save(ctx context.Context, c Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.SessionToken == "" {
		return ErrEmptyToken
	}
	m.mu.Lock()
	m.creds = &c
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.creds = nil
	m.mu.Unlock()
	return nil
}
