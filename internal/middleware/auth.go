// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ClientIDKey is the context key for the caller's client identity.
	ClientIDKey ContextKey = "client_id"
)

// Claims represents JWT claims carried by a client token.
type Claims struct {
	jwt.RegisteredClaims
}

// ClientIdentity resolves the caller's client identity. A Bearer JWT takes
// precedence, with its subject as the client ID; the X-Client-Id header is
// accepted for unauthenticated local use. Requests with neither, or with a
// token that fails verification, are rejected.
func ClientIdentity(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
					http.Error(w, `{"error":"invalid authorization header format"}`, http.StatusUnauthorized)
					return
				}

				claims := &Claims{}
				token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, jwt.ErrSignatureInvalid
					}
					return []byte(jwtSecret), nil
				})
				if err != nil || !token.Valid || claims.Subject == "" {
					http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
					return
				}

				ctx := context.WithValue(r.Context(), ClientIDKey, claims.Subject)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			clientID := strings.TrimSpace(r.Header.Get("X-Client-Id"))
			if clientID == "" {
				http.Error(w, `{"error":"missing client identity"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClientIDKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientID gets the client identity from context.
func GetClientID(ctx context.Context) string {
	if v := ctx.Value(ClientIDKey); v != nil {
		return v.(string)
	}
	return ""
}
