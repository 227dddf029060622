package flows

import "github.com/MrEthical07/authsync/identity"

// SignUpOutcome classifies a provider sign-up answer.
type SignUpOutcome int

const (
	SignUpRejected SignUpOutcome = iota
	SignUpNeedsConfirmation
	SignUpCompleted
)

// ClassifySignUp folds a sign-up result and error into one outcome.
func ClassifySignUp(res identity.SignUpResult, err error) SignUpOutcome {
	if err != nil {
		return SignUpRejected
	}
	if res.NextStep == identity.SignUpConfirm {
		return SignUpNeedsConfirmation
	}
	return SignUpCompleted
}

// SignInOutcome classifies a provider sign-in answer.
type SignInOutcome int

const (
	SignInRejected SignInOutcome = iota
	// SignInSignedIn covers a completed sign-in and an already-active session.
	SignInSignedIn
	// SignInNeedsConfirmation covers the confirm step and the not-confirmed error.
	SignInNeedsConfirmation
	// SignInUnsupportedStep is any continuation the client does not drive.
	SignInUnsupportedStep
)

// ClassifySignIn folds a sign-in result and error into one outcome.
func ClassifySignIn(res identity.SignInResult, err error) SignInOutcome {
	if err != nil {
		switch identity.KindOf(err) {
		case identity.KindAlreadyAuthenticated:
			return SignInSignedIn
		case identity.KindNotConfirmed:
			return SignInNeedsConfirmation
		}
		return SignInRejected
	}
	switch {
	case res.SignedIn:
		return SignInSignedIn
	case res.NextStep == identity.SignInConfirmSignUp:
		return SignInNeedsConfirmation
	}
	return SignInUnsupportedStep
}
