package middleware

import (
	"context"
	"net/http"
	"strings"
)

type tokenContextKey struct{}

// TokenFromContext returns the token Guard attached to the request.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenContextKey{}).(string)
	return tok, ok && tok != ""
}

// Guard rejects requests with 401 while tokens holds nothing, and otherwise
// passes the current token to next through the request context.
func Guard(tokens TokenSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			token, ok := tokens.Get()
			if !ok || token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), tokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HeaderToken extracts the token from an Authorization value written in either
// scheme.
func HeaderToken(value string) (string, bool) {
	const bearer = "Bearer "
	token := value
	if strings.HasPrefix(value, bearer) {
		token = value[len(bearer):]
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
