package flows

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/authsync/identity"
	"github.com/MrEthical07/authsync/jwt"
)

// ResolveFailureKind classifies why a provider session could not be resolved.
type ResolveFailureKind int

const (
	ResolveFailureNone ResolveFailureKind = iota
	// ResolveFailureProvider means a provider call failed.
	ResolveFailureProvider
	// ResolveFailureNoUser means the provider reported no current user.
	ResolveFailureNoUser
	// ResolveFailureMissingTokens means a user exists but a token is absent.
	ResolveFailureMissingTokens
	// ResolveFailureExpired means the id token carries an exp in the past.
	ResolveFailureExpired
)

func (k ResolveFailureKind) String() string {
	switch k {
	case ResolveFailureNone:
		return "none"
	case ResolveFailureProvider:
		return "provider"
	case ResolveFailureNoUser:
		return "no_user"
	case ResolveFailureMissingTokens:
		return "missing_tokens"
	case ResolveFailureExpired:
		return "expired"
	}
	return "unknown"
}

// SessionDeps captures session resolution dependencies.
type SessionDeps struct {
	GetCurrentUser   func(context.Context) (identity.CurrentUser, error)
	FetchAuthSession func(context.Context) (identity.AuthSession, error)
	Now              func() time.Time
	// RejectExpired treats a JWT id token whose exp has passed as no session.
	RejectExpired bool
}

// ResolveResult is either a complete session or a classified failure.
type ResolveResult struct {
	Failure     ResolveFailureKind
	Err         error
	AccessToken string
	IDToken     string
	Username    string
}

// OK reports whether the result carries a complete session.
func (r ResolveResult) OK() bool {
	return r.Failure == ResolveFailureNone
}

// RunResolveSession reads the current user and the auth session concurrently
// and combines them. It never writes anything.
func RunResolveSession(ctx context.Context, deps SessionDeps) ResolveResult {
	var (
		user identity.CurrentUser
		sess identity.AuthSession
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := deps.GetCurrentUser(gctx)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	g.Go(func() error {
		s, err := deps.FetchAuthSession(gctx)
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	if err := g.Wait(); err != nil {
		if identity.KindOf(err) == identity.KindNoSession {
			return ResolveResult{Failure: ResolveFailureNoUser, Err: err}
		}
		return ResolveResult{Failure: ResolveFailureProvider, Err: err}
	}

	if user.Username == "" {
		return ResolveResult{Failure: ResolveFailureNoUser}
	}
	if !sess.Complete() {
		return ResolveResult{Failure: ResolveFailureMissingTokens, Username: user.Username}
	}
	if deps.RejectExpired {
		now := time.Now
		if deps.Now != nil {
			now = deps.Now
		}
		if jwt.Expired(sess.Tokens.IDToken, now()) {
			return ResolveResult{Failure: ResolveFailureExpired, Username: user.Username}
		}
	}
	return ResolveResult{
		AccessToken: sess.Tokens.AccessToken,
		IDToken:     sess.Tokens.IDToken,
		Username:    user.Username,
	}
}
