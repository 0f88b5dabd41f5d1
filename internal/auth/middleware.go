package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Middleware enforces bearer authentication. Requests without a valid token
// are rejected 401; on success the resolved Viewer is placed on the context.
// Fail closed: a nil authority rejects everything.
func Middleware(authority *Authority) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeUnauthorized(w, "Missing Authorization header")
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}
			if authority == nil {
				writeUnauthorized(w, "Authentication not configured")
				return
			}

			principal, err := authority.Validate(parts[1])
			if err != nil {
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := WithViewer(r.Context(), NewViewer(*principal))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"detail": message})
}

const (
	// maxTrackedLogins bounds the per-username bucket map so a flood of
	// random usernames cannot grow it without limit.
	maxTrackedLogins = 10_000
	// loginIdleExpiry is how long a bucket may sit unused before eviction;
	// an idle bucket has fully refilled, so dropping it loses nothing.
	loginIdleExpiry = 10 * time.Minute
)

// LoginLimiter throttles login attempts per username to slow credential
// stuffing. Limiter errors never block traffic elsewhere; this is only
// consulted by the login handler.
type LoginLimiter struct {
	mu      sync.Mutex
	buckets map[string]*loginBucket
	rps     rate.Limit
	burst   int
}

type loginBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewLoginLimiter(perMinute int) *LoginLimiter {
	if perMinute < 1 {
		perMinute = 10
	}
	return &LoginLimiter{
		buckets: make(map[string]*loginBucket),
		rps:     rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
	}
}

// Allow reports whether another attempt for username may proceed.
func (l *LoginLimiter) Allow(username string) bool {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[username]
	if !ok {
		if len(l.buckets) >= maxTrackedLogins {
			l.evictLocked(now)
		}
		b = &loginBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[username] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.lim.Allow()
}

// Tracked reports how many usernames currently hold a bucket.
func (l *LoginLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// evictLocked drops idle buckets; if the map is still full afterward it is
// reset entirely, which resets throttling state for names seen during the
// current flood window but keeps memory bounded.
func (l *LoginLimiter) evictLocked(now time.Time) {
	for name, b := range l.buckets {
		if now.Sub(b.lastSeen) > loginIdleExpiry {
			delete(l.buckets, name)
		}
	}
	if len(l.buckets) >= maxTrackedLogins {
		l.buckets = make(map[string]*loginBucket)
	}
}
