package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/security"
	"github.com/Blackie360/Persona-Studio/services"
	"github.com/Blackie360/Persona-Studio/utils"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
	adminContextKey    contextKey = "admin_claims"
)

type sessionResolver interface {
	GetSessionByToken(ctx context.Context, token string) (*models.Session, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// IdentityMiddleware resolves the requester. A valid bearer session token
// yields an authenticated identity; anything else falls back to the client
// address. It never rejects: downstream admission decides what anonymous
// requesters may do.
type IdentityMiddleware struct {
	sessions sessionResolver
	logger   *utils.Logger
}

func CreateIdentityMiddleware(sessions sessionResolver) *IdentityMiddleware {
	return &IdentityMiddleware{
		sessions: sessions,
		logger:   utils.NewLogger("auth"),
	}
}

func (im *IdentityMiddleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := services.AnonymousIdentity(ClientIP(r))

		if token := bearerToken(r); token != "" {
			session, err := im.sessions.GetSessionByToken(r.Context(), token)
			if err != nil {
				im.logger.Warn(r.Context(), "session lookup failed", map[string]interface{}{"error": err.Error()})
			} else if session != nil {
				email := ""
				if user, err := im.sessions.GetByID(r.Context(), session.UserID); err == nil && user != nil {
					email = user.Email
				}
				identity = services.AuthenticatedIdentity(session.UserID, email, session.ID, ClientIP(r))
			}
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		if identity.Authenticated() {
			ctx = context.WithValue(ctx, utils.UserIDKey, identity.UserID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFrom returns the resolved identity, or an empty anonymous one
// when the middleware did not run.
func IdentityFrom(ctx context.Context) services.Identity {
	if identity, ok := ctx.Value(identityContextKey).(services.Identity); ok {
		return identity
	}
	return services.Identity{}
}

// AdminMiddleware guards dashboard routes with a signed admin token.
type AdminMiddleware struct {
	jwtManager *security.JWTManager
}

func CreateAdminMiddleware(jwtManager *security.JWTManager) *AdminMiddleware {
	return &AdminMiddleware{jwtManager: jwtManager}
}

func (am *AdminMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		claims, err := am.jwtManager.ValidateToken(token)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), adminContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func AdminClaimsFrom(ctx context.Context) *security.AdminClaims {
	claims, _ := ctx.Value(adminContextKey).(*security.AdminClaims)
	return claims
}

// ClientIP resolves the requester address: first hop of X-Forwarded-For,
// then X-Real-IP, then the socket address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

func writeAuthError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(map[string]string{
		"error":     message,
		"status":    fmt.Sprintf("%d", statusCode),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
