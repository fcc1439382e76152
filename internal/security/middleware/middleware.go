package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/security"
	"github.com/aryan0dhankhar/mesledger/internal/security/audit"
	"github.com/aryan0dhankhar/mesledger/internal/security/auth"
	"github.com/aryan0dhankhar/mesledger/internal/security/ratelimit"
)

type ActorContextKey struct{}

// publicPaths skip authentication entirely.
var publicPaths = map[string]bool{
	"/healthz":        true,
	"/readyz":         true,
	"/metrics":        true,
	"/api/auth/login": true,
}

func isPublic(r *http.Request) bool {
	return publicPaths[r.URL.Path] || r.Method == http.MethodOptions
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// WithActor stores the caller identity in ctx.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey{}, actor)
}

// ActorFromContext returns the caller, or an unauthenticated actor.
func ActorFromContext(ctx context.Context) domain.Actor {
	if a, ok := ctx.Value(ActorContextKey{}).(domain.Actor); ok {
		return a
	}
	return domain.Actor{}
}

// JWTMiddleware verifies the bearer token and stores the actor in the
// request context. Websocket routes may pass the token as ?token=.
func JWTMiddleware(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r) {
				next.ServeHTTP(w, r)
				return
			}

			var tokenString string
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				tok, err := auth.ExtractToken(authHeader)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "invalid auth")
					return
				}
				tokenString = tok
			} else if strings.HasPrefix(r.URL.Path, "/ws/") {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "missing auth")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				log.Debug("token rejected", slog.String("error", err.Error()))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), claims.Actor())))
		})
	}
}

// RateLimitMiddleware limits authenticated callers by user id and
// anonymous ones by client address.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			key := "user:" + ActorFromContext(r.Context()).UserID
			if key == "user:" {
				host, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					host = r.RemoteAddr
				}
				key = "ip:" + host
			}

			if !limiter.Allow(key) {
				log.Warn("rate limit exceeded", slog.String("key", key), slog.String("path", r.URL.Path))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records every state-changing request.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPatch && r.Method != http.MethodPut {
				next.ServeHTTP(w, r)
				return
			}
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			status := "ok"
			if sw.status >= 400 {
				status = http.StatusText(sw.status)
			}
			auditLog.LogAction(r.Context(), ActorFromContext(r.Context()),
				strings.ToLower(r.Method), r.URL.Path, "", status, "")
		})
	}
}

// RequireRoles rejects callers whose role is not listed.
func RequireRoles(as *security.AuthorizationService, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if err := as.Require(actor, roles, r.Method+" "+r.URL.Path); err != nil {
				if !actor.Authenticated {
					writeError(w, http.StatusUnauthorized, "missing auth")
					return
				}
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds the context of every non-websocket request.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d <= 0 || strings.HasPrefix(r.URL.Path, "/ws/") {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
