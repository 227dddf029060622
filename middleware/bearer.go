package middleware

import (
	"net/http"
)

// TokenSource yields the token to send. *session.TokenCache implements it.
type TokenSource interface {
	Get() (string, bool)
}

// Scheme selects how the token is written into the header.
type Scheme int

const (
	// SchemeRaw writes the bare token, as the points API expects.
	SchemeRaw Scheme = iota
	// SchemeBearer writes "Bearer <token>".
	SchemeBearer
)

type transport struct {
	tokens TokenSource
	next   http.RoundTripper
	scheme Scheme
	header string
}

// Option configures Bearer.
type Option func(*transport)

// WithScheme sets the header value format. The default is SchemeRaw.
func WithScheme(s Scheme) Option {
	return func(t *transport) { t.scheme = s }
}

// WithHeader sets the header name. The default is Authorization.
func WithHeader(name string) Option {
	return func(t *transport) {
		if name != "" {
			t.header = http.CanonicalHeaderKey(name)
		}
	}
}

// Bearer returns a RoundTripper that reads tokens on every request and sets
// the auth header on a clone of the request. Without a cached token the request
// is sent unchanged. A nil next selects http.DefaultTransport.
func Bearer(tokens TokenSource, next http.RoundTripper, opts ...Option) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	t := &transport{
		tokens: tokens,
		next:   next,
		scheme: SchemeRaw,
		header: "Authorization",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *transport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.tokens == nil {
		return t.next.RoundTrip(r)
	}
	token, ok := t.tokens.Get()
	if !ok || token == "" {
		return t.next.RoundTrip(r)
	}

	// RoundTrippers must not modify the caller's request.
	clone := r.Clone(r.Context())
	switch t.scheme {
	case SchemeBearer:
		clone.Header.Set(t.header, "Bearer "+token)
	default:
		clone.Header.Set(t.header, token)
	}
	return t.next.RoundTrip(clone)
}

// NewClient returns an http.Client whose transport is Bearer(tokens, base).
func NewClient(tokens TokenSource, base http.RoundTripper, opts ...Option) *http.Client {
	return &http.Client{Transport: Bearer(tokens, base, opts...)}
}
