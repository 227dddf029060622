package flows

import (
	"strings"

	"github.com/MrEthical07/authsync/identity"
)

// NormalizeSignUp trims every field, lower-cases username and email, and keeps
// the trimmed original username as the nickname. ok is false when any trimmed
// field is empty.
func NormalizeSignUp(email, username, password string) (in identity.SignUpInput, ok bool) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if email == "" || username == "" || password == "" {
		return identity.SignUpInput{}, false
	}
	return identity.SignUpInput{
		Username: strings.ToLower(username),
		Password: password,
		Email:    strings.ToLower(email),
		Nickname: username,
	}, true
}

// NormalizeSignIn lower-cases and trims the username and trims the password.
func NormalizeSignIn(username, password string) (in identity.SignInInput, ok bool) {
	username = strings.ToLower(strings.TrimSpace(username))
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return identity.SignInInput{}, false
	}
	return identity.SignInInput{Username: username, Password: password}, true
}

// NormalizeCode trims a confirmation code.
func NormalizeCode(code string) (string, bool) {
	code = strings.TrimSpace(code)
	return code, code != ""
}
