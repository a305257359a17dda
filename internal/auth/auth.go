// Package auth issues and checks the bearer tokens operators use against
// the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "servant-draft"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

type claims struct {
	jwt.RegisteredClaims
	// Operator may clean up any session and tune balancers.
	Operator bool `json:"operator,omitempty"`
}

// Subject is who a request acts as. UserID is a platform user id.
type Subject struct {
	UserID   string
	Operator bool
}

// Issue signs a token for userID valid for ttl.
func Issue(secret, userID string, operator bool, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("no signing secret configured")
	}
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Operator: operator,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// Verify checks a token and returns its subject.
func Verify(secret, token string) (Subject, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Subject{}, ErrMissingToken
	}
	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Subject{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if parsed.Subject == "" {
		return Subject{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return Subject{UserID: parsed.Subject, Operator: parsed.Operator}, nil
}

type subjectKey struct{}

func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, s)
}

func SubjectFrom(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(subjectKey{}).(Subject)
	return s, ok
}

// Middleware requires a valid bearer token on every request. Browsers cannot
// set headers on websocket upgrades, so a token query parameter is accepted
// too. An empty secret lets every request through as an anonymous operator.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), Subject{Operator: true})))
				return
			}
			token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			sub, err := Verify(secret, token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="servant-draft"`)
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), sub)))
		})
	}
}

// RequireOperator rejects subjects without the operator claim.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sub, ok := SubjectFrom(r.Context()); !ok || !sub.Operator {
			http.Error(w, "operator token required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
