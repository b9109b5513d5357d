package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"coupon-payments/internal/infra/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var errMissingToken = errors.New("missing token")

type userKey struct{}

// Authenticator resolves the signed-in user from an HS256 token issued by the
// account service. Only the subject is read.
type Authenticator struct {
	secret     []byte
	cookieName string
}

func NewAuthenticator(secret, cookieName string) *Authenticator {
	if cookieName == "" {
		cookieName = "auth_token"
	}
	return &Authenticator{secret: []byte(secret), cookieName: cookieName}
}

// Mint issues a token for userID. Used by dev tooling and tests.
func (a *Authenticator) Mint(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// UserID reads the token from "Authorization: Bearer" or the auth cookie.
func (a *Authenticator) UserID(r *http.Request) (string, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(a.cookieName); err == nil {
		return a.parse(c.Value)
	}
	return "", errMissingToken
}

func (a *Authenticator) parse(tok string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

// RequireUser rejects anonymous requests and puts the user id into the context.
func (a *Authenticator) RequireUser(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, err := a.UserID(r)
			if err != nil {
				logging.With(r.Context(), logger).Debug().Err(err).Msg("unauthenticated request")
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: "sign in required"})
				return
			}
			ctx := logging.WithUserID(context.WithValue(r.Context(), userKey{}, uid), uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentUser returns the id stored by RequireUser.
func CurrentUser(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userKey{}).(string)
	return uid, ok && uid != ""
}
