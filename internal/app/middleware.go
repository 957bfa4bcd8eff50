package app

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/config"
	"github.com/irefuse3585/event-manager-api/internal/rest"
	"github.com/irefuse3585/event-manager-api/pkg/user"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ipLimiter hands out one token bucket per client IP. Buckets are never
// expired; the map is bounded by the number of distinct clients seen.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newIPLimiter(perMinute int) *ipLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &ipLimiter{
		buckets: map[string]*rate.Limiter{},
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[ip]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[ip] = bucket
	}
	l.mu.Unlock()
	return bucket.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies, cfg config.Application) {
	defaultLimiter := newIPLimiter(cfg.RateLimit.PerMinute)
	loginLimiter := newIPLimiter(cfg.RateLimit.LoginPerMinute)
	refreshLimiter := newIPLimiter(cfg.RateLimit.RefreshPerMinute)

	// Per-IP token-bucket rate limiting, with tighter buckets on the
	// endpoints worth brute-forcing.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			limiter := defaultLimiter
			switch req.URL.Path {
			case "/api/auth/login":
				limiter = loginLimiter
			case "/api/auth/refresh":
				limiter = refreshLimiter
			}
			if !limiter.allow(clientIP(req)) {
				log.Debugf("rate limit exceeded for %s on %s", clientIP(req), req.URL.Path)
				rest.Respond(w, req, http.StatusTooManyRequests, rest.ErrorResponse{
					Error: "too many requests",
					Code:  "rate_limited",
				})
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	// Bearer-token authentication. The verified user is loaded and put into
	// the request context for downstream handlers.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !requiresAuth(req.URL.Path) {
				next.ServeHTTP(w, req)
				return
			}

			raw := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == req.Header.Get("Authorization") {
				rest.RespondError(w, req, apierr.Unauthorized("missing bearer token"))
				return
			}
			claims, err := deps.Tokens.VerifyAccessToken(raw)
			if err != nil {
				log.Debugf("access token rejected: %v", err)
				rest.RespondError(w, req, apierr.Unauthorized("invalid or expired access token"))
				return
			}

			u, err := deps.UserService.GetUser(req.Context(), claims.UserID)
			if err != nil {
				rest.RespondError(w, req, apierr.Unauthorized("unknown user"))
				return
			}
			if !u.Active {
				rest.RespondError(w, req, apierr.Forbidden("account is deactivated"))
				return
			}

			ctx := user.WithUser(req.Context(), u)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
}

// requiresAuth reports whether the path needs a bearer token. The auth
// endpoints bootstrap the token, the websocket gateway verifies its own
// token (browsers cannot set headers there), and the OAuth callback is
// reached by a redirect from Google.
func requiresAuth(path string) bool {
	switch {
	case strings.HasPrefix(path, "/api/auth/"):
		return false
	case path == "/api/ws/notifications":
		return false
	case path == "/api/integrations/google/auth/callback":
		return false
	case path == "/health":
		return false
	}
	return strings.HasPrefix(path, "/api/")
}
