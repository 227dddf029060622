package kratos

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	kratos "github.com/ory/kratos-client-go"

	"github.com/MrEthical07/authsync/identity"
)

// Kratos UI message ids.
const (
	msgInvalidCredentials   = 4000006
	msgDuplicateIdentifier  = 4000007
	msgAddressNotVerified   = 4000010
	msgAccountNotFound      = 4000035
	msgVerificationExpired  = 4070005
	msgVerificationInvalid  = 4070006
	msgVerificationUsedCode = 4070003
	msgValidationRangeStart = 4000001
	msgValidationRangeEnd   = 4000005
)

const (
	errSessionAlreadyAvailable = "session_already_available"
	errSessionInactive         = "session_inactive"
	errNoActiveSession         = "no_active_session"
)

type uiMessage struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

type flowBody struct {
	ID    string `json:"id"`
	State any    `json:"state"`
	UI    struct {
		Messages []uiMessage `json:"messages"`
		Nodes    []struct {
			Messages []uiMessage `json:"messages"`
		} `json:"nodes"`
	} `json:"ui"`
	Error *struct {
		ID      string `json:"id"`
		Code    int    `json:"code"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
	ContinueWith []struct {
		Action string `json:"action"`
		Flow   struct {
			ID                string `json:"id"`
			VerifiableAddress string `json:"verifiable_address"`
		} `json:"flow"`
	} `json:"continue_with"`
}

func (b flowBody) messages() []uiMessage {
	out := append([]uiMessage(nil), b.UI.Messages...)
	for _, n := range b.UI.Nodes {
		out = append(out, n.Messages...)
	}
	return out
}

func parseBody(data []byte) (flowBody, bool) {
	var b flowBody
	if len(data) == 0 || json.Unmarshal(data, &b) != nil {
		return flowBody{}, false
	}
	return b, true
}

// readBody returns the response body. The generated client replaces the body
// with an in-memory copy after decoding, so it is readable once more here.
func readBody(resp *http.Response) []byte {
	if resp == nil || resp.Body == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	return data
}

// classify turns a failed Kratos call into an *identity.Error.
func classify(op string, err error, resp *http.Response) *identity.Error {
	var body []byte
	var apiErr *kratos.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		body = apiErr.Body()
	}
	if resp == nil {
		return identity.NewError(op, identity.KindUnavailable, "kratos unreachable", err)
	}

	b, ok := parseBody(body)
	if ok {
		if kind, text, found := kindFromMessages(b.messages()); found {
			return identity.NewError(op, kind, text, err)
		}
		if b.Error != nil {
			switch b.Error.ID {
			case errSessionAlreadyAvailable:
				return identity.NewError(op, identity.KindAlreadyAuthenticated, b.Error.Reason, err)
			case errSessionInactive, errNoActiveSession:
				return identity.NewError(op, identity.KindNoSession, b.Error.Reason, err)
			}
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return identity.NewError(op, identity.KindTooManyRequests, "rate limited", err)
	case resp.StatusCode == http.StatusUnauthorized:
		return identity.NewError(op, identity.KindNoSession, "no valid session", err)
	case resp.StatusCode >= http.StatusInternalServerError:
		return identity.NewError(op, identity.KindUnavailable, resp.Status, err)
	case resp.StatusCode == http.StatusBadRequest:
		return identity.NewError(op, identity.KindInvalidParameter, "rejected by kratos", err)
	}
	return identity.NewError(op, identity.KindUnknown, resp.Status, err)
}

// kindFromMessages maps the first recognized error message.
func kindFromMessages(msgs []uiMessage) (identity.ErrorKind, string, bool) {
	for _, m := range msgs {
		if m.Type != "" && m.Type != "error" {
			continue
		}
		switch {
		case m.ID == msgInvalidCredentials:
			return identity.KindNotAuthorized, m.Text, true
		case m.ID == msgAddressNotVerified:
			return identity.KindNotConfirmed, m.Text, true
		case m.ID == msgDuplicateIdentifier:
			return identity.KindUsernameExists, m.Text, true
		case m.ID == msgAccountNotFound:
			return identity.KindUserNotFound, m.Text, true
		case m.ID == msgVerificationExpired:
			return identity.KindExpiredCode, m.Text, true
		case m.ID == msgVerificationInvalid, m.ID == msgVerificationUsedCode:
			return identity.KindCodeMismatch, m.Text, true
		case m.ID >= msgValidationRangeStart && m.ID <= msgValidationRangeEnd:
			return identity.KindInvalidParameter, m.Text, true
		}
	}
	return identity.KindUnknown, "", false
}
