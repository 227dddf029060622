package kratos

import (
	"context"
	"fmt"
	"strings"

	kratos "github.com/ory/kratos-client-go"

	"github.com/MrEthical07/authsync/identity"
)

const (
	actionShowVerification = "show_verification_ui"
	statePassedChallenge   = "passed_challenge"
)

func (p *Provider) SignUp(ctx context.Context, in identity.SignUpInput) (identity.SignUpResult, error) {
	const op = "signUp"

	flow, resp, err := p.api.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return identity.SignUpResult{}, p.fail(identity.EventSignUpFailed, classify(op, err, resp))
	}

	body := kratos.UpdateRegistrationFlowWithPasswordMethod{
		Method:   "password",
		Password: in.Password,
		Traits: map[string]interface{}{
			p.cfg.UsernameTrait: in.Username,
			p.cfg.EmailTrait:    in.Email,
			p.cfg.NicknameTrait: in.Nickname,
		},
	}
	reg, resp, err := p.api.FrontendAPI.UpdateRegistrationFlow(ctx).
		Flow(flow.Id).
		UpdateRegistrationFlowBody(kratos.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&body)).
		Execute()
	if err != nil {
		return identity.SignUpResult{}, p.fail(identity.EventSignUpFailed, classify(op, err, resp))
	}

	identityID := reg.GetIdentity().Id
	if b, ok := parseBody(readBody(resp)); ok {
		for _, cw := range b.ContinueWith {
			if cw.Action != actionShowVerification || cw.Flow.ID == "" {
				continue
			}
			email := cw.Flow.VerifiableAddress
			if email == "" {
				email = in.Email
			}
			p.setPending(in.Username, pendingVerification{flowID: cw.Flow.ID, email: email})
			p.log.Info("registration awaiting verification", "op", op, "username", in.Username)
			return identity.SignUpResult{Complete: false, NextStep: identity.SignUpConfirm, UserID: identityID}, nil
		}
	}
	return identity.SignUpResult{Complete: true, NextStep: identity.SignUpDone, UserID: identityID}, nil
}

func (p *Provider) ConfirmSignUp(ctx context.Context, username, code string) error {
	const op = "confirmSignUp"

	pv, ok := p.getPending(username)
	if !ok {
		return p.fail(identity.EventConfirmSignUpFailed,
			identity.NewError(op, identity.KindExpiredCode, "no verification in progress for user", nil))
	}

	body := kratos.UpdateVerificationFlowWithCodeMethod{
		Method: "code",
		Code:   &code,
	}
	flow, resp, err := p.api.FrontendAPI.UpdateVerificationFlow(ctx).
		Flow(pv.flowID).
		UpdateVerificationFlowBody(kratos.UpdateVerificationFlowWithCodeMethodAsUpdateVerificationFlowBody(&body)).
		Execute()
	if err != nil {
		return p.fail(identity.EventConfirmSignUpFailed, classify(op, err, resp))
	}
	if state := fmt.Sprint(flow.GetState()); state != statePassedChallenge {
		kind, text, found := kindFromMessages(messagesOf(readBody(resp)))
		if !found {
			kind, text = identity.KindCodeMismatch, "verification code rejected"
		}
		return p.fail(identity.EventConfirmSignUpFailed, identity.NewError(op, kind, text, nil))
	}

	p.clearPending(username)
	return nil
}

func (p *Provider) ResendSignUpCode(ctx context.Context, username string) error {
	const op = "resendSignUpCode"

	pv, ok := p.getPending(username)
	if !ok {
		if !strings.Contains(username, "@") {
			return p.fail("", identity.NewError(op, identity.KindUserNotFound, "no verifiable address known for user", nil))
		}
		pv.email = username
	}

	flow, resp, err := p.api.FrontendAPI.CreateNativeVerificationFlow(ctx).Execute()
	if err != nil {
		return p.fail("", classify(op, err, resp))
	}
	body := kratos.UpdateVerificationFlowWithCodeMethod{
		Method: "code",
		Email:  &pv.email,
	}
	_, resp, err = p.api.FrontendAPI.UpdateVerificationFlow(ctx).
		Flow(flow.Id).
		UpdateVerificationFlowBody(kratos.UpdateVerificationFlowWithCodeMethodAsUpdateVerificationFlowBody(&body)).
		Execute()
	if err != nil {
		return p.fail("", classify(op, err, resp))
	}

	p.setPending(username, pendingVerification{flowID: flow.Id, email: pv.email})
	return nil
}

func messagesOf(data []byte) []uiMessage {
	b, ok := parseBody(data)
	if !ok {
		return nil
	}
	return b.messages()
}
