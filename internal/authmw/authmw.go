// Package authmw provides HTTP middleware for bearer token authentication
// with guard and admin token classes.
package authmw

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type adminKey struct{}

// IsAdmin reports whether the request authenticated with an admin token.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminKey{}).(bool)
	return v
}

// Bearer returns middleware that validates the Authorization header against
// the configured token sets. Admin tokens additionally mark the request
// context as admin. Comparison uses constant-time equality to prevent
// timing side-channel attacks.
//
// With no tokens configured the middleware passes everything through,
// matching the dev setup where auth is off.
func Bearer(guardTokens, adminTokens []string) func(http.Handler) http.Handler {
	guards := toBytes(guardTokens)
	admins := toBytes(adminTokens)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(guards) == 0 && len(admins) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, `{"error":"missing or malformed authorization header"}`, http.StatusUnauthorized)
				return
			}
			got := []byte(auth[len("Bearer "):])

			if matchAny(got, admins) {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, true)))
				return
			}
			if matchAny(got, guards) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		})
	}
}

func toBytes(tokens []string) [][]byte {
	out := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			out = append(out, []byte(t))
		}
	}
	return out
}

// matchAny compares against every candidate so timing does not reveal
// which token matched.
func matchAny(got []byte, candidates [][]byte) bool {
	matched := false
	for _, c := range candidates {
		if subtle.ConstantTimeCompare(got, c) == 1 {
			matched = true
		}
	}
	return matched
}
