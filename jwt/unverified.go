package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned when a token is not a parseable JWT.
var ErrNotJWT = errors.New("token is not a jwt")

// usernameClaims lists the claims that may carry the username, in lookup order.
var usernameClaims = []string{"username", "cognito:username", "preferred_username"}

// Inspected is what a client can learn from a token without its key.
type Inspected struct {
	Subject   string
	Username  string
	ExpiresAt time.Time
}

// Inspect parses tokenStr without verifying its signature.
func Inspect(tokenStr string) (Inspected, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return Inspected{}, errors.Join(ErrNotJWT, err)
	}

	var out Inspected
	out.Subject, _ = claims.GetSubject()
	for _, name := range usernameClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			out.Username = v
			break
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// Expired reports whether tokenStr is a JWT whose exp lies before now. Opaque
// tokens and tokens without exp are never reported as expired.
func Expired(tokenStr string, now time.Time) bool {
	in, err := Inspect(tokenStr)
	if err != nil || in.ExpiresAt.IsZero() {
		return false
	}
	return in.ExpiresAt.Before(now)
}
