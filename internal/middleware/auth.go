package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Strob0t/MarketForge/internal/config"
	"github.com/Strob0t/MarketForge/internal/domain/user"
)

type sessionCtxKey struct{}

// sessionClaims are the claims of a session token issued by the identity store.
type sessionClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// SessionVerifier validates HS256 session tokens.
type SessionVerifier struct {
	secret []byte
	issuer string
}

// NewSessionVerifier creates a verifier from the auth config.
func NewSessionVerifier(cfg config.Auth) *SessionVerifier {
	return &SessionVerifier{secret: []byte(cfg.JWTSecret), issuer: cfg.JWTIssuer}
}

// Verify parses token and returns the session it describes. The raw token is
// kept so it can be forwarded to the identity store.
func (v *SessionVerifier) Verify(token string) (*user.Session, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("session verification not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims sessionClaims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	s := &user.Session{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
		Token:  token,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Auth returns middleware that requires a valid bearer session token.
func Auth(v *SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "authorization required")
				return
			}
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			s, err := v.Verify(token)
			if err != nil {
				slog.DebugContext(r.Context(), "session rejected", "error", err)
				writeError(w, http.StatusUnauthorized, "invalid session")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// WithSession returns a copy of ctx carrying the session.
func WithSession(ctx context.Context, s *user.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext returns the authenticated session, or nil.
func SessionFromContext(ctx context.Context) *user.Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*user.Session)
	return s
}
