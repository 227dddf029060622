package kratos

import (
	"context"
	"errors"
	"net/http"

	kratos "github.com/ory/kratos-client-go"

	"github.com/MrEthical07/authsync/credstore"
	"github.com/MrEthical07/authsync/identity"
)

func (p *Provider) SignIn(ctx context.Context, in identity.SignInInput) (identity.SignInResult, error) {
	const op = "signIn"

	if creds, err := p.creds.Load(ctx); err == nil && creds.SessionToken != "" {
		if _, _, err := p.whoami(ctx, op, creds.SessionToken, false); err == nil {
			return identity.SignInResult{}, p.fail("", identity.NewError(op, identity.KindAlreadyAuthenticated, "a session is already active", nil))
		}
	}

	flow, resp, err := p.api.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return identity.SignInResult{}, p.fail(identity.EventSignInFailed, classify(op, err, resp))
	}

	body := kratos.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: in.Username,
		Password:   in.Password,
	}
	login, resp, err := p.api.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.Id).
		UpdateLoginFlowBody(kratos.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&body)).
		Execute()
	if err != nil {
		ie := classify(op, err, resp)
		if ie.Kind == identity.KindAlreadyAuthenticated {
			return identity.SignInResult{}, p.fail("", ie)
		}
		return identity.SignInResult{}, p.fail(identity.EventSignInFailed, ie)
	}

	token := login.GetSessionToken()
	if token == "" {
		return identity.SignInResult{SignedIn: false, NextStep: identity.SignInOther}, nil
	}
	sess := login.GetSession()
	ident := sess.GetIdentity()
	creds := credstore.Credentials{
		SessionToken: token,
		Username:     traitString(ident.GetTraits(), p.cfg.UsernameTrait),
		IdentityID:   ident.Id,
		ExpiresAt:    sess.GetExpiresAt(),
	}
	if creds.Username == "" {
		creds.Username = in.Username
	}
	if err := p.creds.Save(ctx, creds); err != nil {
		return identity.SignInResult{}, p.fail(identity.EventSignInFailed, identity.NewError(op, identity.KindUnknown, "persist session", err))
	}

	p.log.Info("signed in", "op", op, "username", creds.Username)
	p.hub.Publish(identity.NewEvent(identity.EventSignedIn, creds.Username))
	return identity.SignInResult{SignedIn: true, NextStep: identity.SignInDone}, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	const op = "signOut"

	creds, err := p.creds.Load(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		p.hub.Publish(identity.NewEvent(identity.EventSignedOut, nil))
		return nil
	}
	if err != nil {
		return p.fail("", identity.NewError(op, identity.KindUnavailable, "load session", err))
	}

	resp, err := p.api.FrontendAPI.PerformNativeLogout(ctx).
		PerformNativeLogoutBody(kratos.PerformNativeLogoutBody{SessionToken: creds.SessionToken}).
		Execute()
	if err != nil {
		ie := classify(op, err, resp)
		// An unknown or revoked token is already signed out.
		if resp == nil || (resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusNotFound) {
			return p.fail("", ie)
		}
	}
	if err := p.creds.Delete(ctx); err != nil {
		p.log.Warn("delete stored session failed", "op", op, "err", err)
	}
	p.hub.Publish(identity.NewEvent(identity.EventSignedOut, nil))
	return nil
}

func (p *Provider) GetCurrentUser(ctx context.Context) (identity.CurrentUser, error) {
	const op = "getCurrentUser"

	creds, err := p.loadCreds(ctx, op)
	if err != nil {
		return identity.CurrentUser{}, err
	}
	sess, _, err := p.whoami(ctx, op, creds.SessionToken, false)
	if err != nil {
		return identity.CurrentUser{}, err
	}
	ident := sess.GetIdentity()
	u := identity.CurrentUser{
		Username: traitString(ident.GetTraits(), p.cfg.UsernameTrait),
		UserID:   ident.Id,
	}
	if u.Username == "" {
		u.Username = creds.Username
	}
	return u, nil
}

func (p *Provider) FetchAuthSession(ctx context.Context) (identity.AuthSession, error) {
	const op = "fetchAuthSession"

	creds, err := p.loadCreds(ctx, op)
	if identity.KindOf(err) == identity.KindNoSession {
		return identity.AuthSession{}, nil
	}
	if err != nil {
		return identity.AuthSession{}, err
	}
	sess, _, err := p.whoami(ctx, op, creds.SessionToken, p.cfg.TokenizeTemplate != "")
	if identity.KindOf(err) == identity.KindNoSession {
		return identity.AuthSession{}, nil
	}
	if err != nil {
		return identity.AuthSession{}, err
	}

	tokens := identity.Tokens{AccessToken: creds.SessionToken}
	if p.cfg.TokenizeTemplate != "" {
		tokens.IDToken = sess.GetTokenized()
	} else {
		tokens.IDToken = creds.SessionToken
	}
	return identity.AuthSession{Tokens: &tokens}, nil
}

func (p *Provider) loadCreds(ctx context.Context, op string) (credstore.Credentials, error) {
	creds, err := p.creds.Load(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		return credstore.Credentials{}, identity.NewError(op, identity.KindNoSession, "no stored session", nil)
	}
	if err != nil {
		return credstore.Credentials{}, identity.NewError(op, identity.KindUnavailable, "load session", err)
	}
	return creds, nil
}

// whoami validates token. A token Kratos no longer accepts is removed from the
// credential store.
func (p *Provider) whoami(ctx context.Context, op, token string, tokenize bool) (*kratos.Session, *http.Response, error) {
	req := p.api.FrontendAPI.ToSession(ctx).XSessionToken(token)
	if tokenize {
		req = req.TokenizeAs(p.cfg.TokenizeTemplate)
	}
	sess, resp, err := req.Execute()
	if err != nil {
		ie := classify(op, err, resp)
		if ie.Kind == identity.KindNoSession {
			if derr := p.creds.Delete(ctx); derr != nil {
				p.log.Warn("delete stale session failed", "op", op, "err", derr)
			}
		}
		return nil, resp, ie
	}
	if !sess.GetActive() {
		if derr := p.creds.Delete(ctx); derr != nil {
			p.log.Warn("delete inactive session failed", "op", op, "err", derr)
		}
		return nil, resp, identity.NewError(op, identity.KindNoSession, "session inactive", nil)
	}
	return sess, resp, nil
}
