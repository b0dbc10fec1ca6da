// Package auth issues and verifies the HS256 access tokens of the
// development server.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

const Issuer = "im-live-notify"

var (
	ErrMissingToken = errors.New("auth: missing token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Verifier resolves an access token into the user id it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Interface guards
var (
	_ Verifier = (*Authenticator)(nil)
	_ Verifier = (*VerifierMiddleware)(nil)
)

type Authenticator struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock

	// [HOT_PATH] reconnect storms present the same token over and over
	cache *lru.Cache[string, cachedClaims]
}

type cachedClaims struct {
	userID    string
	expiresAt time.Time
}

type Option func(*Authenticator)

func WithTTL(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.ttl = d
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(a *Authenticator) { a.clock = c }
}

func NewAuthenticator(secret string, opts ...Option) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}

	cache, err := lru.New[string, cachedClaims](4096)
	if err != nil {
		return nil, fmt.Errorf("auth: token cache: %w", err)
	}

	a := &Authenticator{
		secret: []byte(secret),
		ttl:    24 * time.Hour,
		clock:  clockwork.NewRealClock(),
		cache:  cache,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue mints a token whose subject is userID.
func (a *Authenticator) Issue(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("auth: empty user id")
	}

	now := a.clock.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func (a *Authenticator) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}

	now := a.clock.Now()
	if c, ok := a.cache.Get(token); ok {
		if now.Before(c.expiresAt) {
			return c.userID, nil
		}
		a.cache.Remove(token)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	a.cache.Add(token, cachedClaims{userID: claims.Subject, expiresAt: claims.ExpiresAt.Time})
	return claims.Subject, nil
}

// VerifierMiddleware is a [DECORATOR] adding outcome logging to a Verifier.
type VerifierMiddleware struct {
	Next   Verifier
	Logger *slog.Logger
}

func NewVerifierMiddleware(next Verifier, logger *slog.Logger) Verifier {
	return &VerifierMiddleware{Next: next, Logger: logger}
}

func (m *VerifierMiddleware) Verify(ctx context.Context, token string) (string, error) {
	start := time.Now()
	userID, err := m.Next.Verify(ctx, token)
	if err != nil {
		m.Logger.Warn("TOKEN_REJECTED",
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return userID, err
}

type ctxKey struct{}

// UserID returns the verified user id stored by Middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// Middleware authenticates requests by the "token" query parameter or an
// "Authorization: Bearer" header. Browsers cannot set headers on push streams
// and sockets, hence the query parameter.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := v.Verify(r.Context(), extractToken(r))
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func extractToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
