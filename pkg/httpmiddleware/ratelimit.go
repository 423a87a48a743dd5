package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	// Max requests allowed per Window.
	Max int
	// Window length for the sliding count.
	Window time.Duration
	// KeyFunc derives the limiter key from a request. Nil means client IP,
	// preferring proxy headers over RemoteAddr.
	KeyFunc func(*http.Request) string
}

// window holds the request counts of a single key over the current interval
// and the one before it.
type window struct {
	count     float64
	started   time.Time
	prevCount float64
	prevStart time.Time
}

// limiter implements sliding-window counting: the previous interval's count
// is weighted by how much of it still overlaps the trailing window, which
// smooths the burst a fixed window allows at each boundary.
type limiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	windows map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &limiter{cfg: cfg, windows: make(map[string]*window)}
}

func (l *limiter) take(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	win, found := l.windows[key]
	if !found {
		win = &window{started: now}
		l.windows[key] = win
	}

	if age := now.Sub(win.started); age >= l.cfg.Window {
		win.prevCount, win.prevStart = win.count, win.started
		win.count, win.started = 0, now.Truncate(l.cfg.Window)
		if now.Sub(win.prevStart) >= 2*l.cfg.Window {
			win.prevCount = 0
		}
	}

	weight := 1 - now.Sub(win.started).Seconds()/l.cfg.Window.Seconds()
	if weight < 0 {
		weight = 0
	}
	used := win.prevCount*weight + win.count
	resetAt = win.started.Add(l.cfg.Window)

	if used >= float64(l.cfg.Max) {
		return 0, resetAt, false
	}

	win.count++
	remaining = int(float64(l.cfg.Max) - used - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// evict drops keys idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, win := range l.windows {
		if now.Sub(win.started) >= 2*l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

// RateLimit returns a middleware that rejects requests over the limit with
// 429 and the API's JSON error body. X-RateLimit-Limit, X-RateLimit-Remaining
// and X-RateLimit-Reset are set on every response. No eviction goroutine is
// started; see RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limitRequests(newLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// idle keys until ctx ends.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return limitRequests(l)
}

func limitRequests(l *limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := l.take(l.cfg.KeyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retryAfter := math.Ceil(time.Until(resetAt).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				h.Set("Retry-After", strconv.Itoa(int(retryAfter)))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":429,"message":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the caller address behind the usual proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop in the list is the client.
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
