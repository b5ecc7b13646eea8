package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rovergate/rovergate/internal/wallet"
	"github.com/rovergate/rovergate/pkg/httpx"
)

// withSecurity wraps the mux with the browser-facing CORS policy and a
// fixed-window rate limit on the endpoints that create state. The payment
// headers must be exposed explicitly or the dashboard cannot read a 402.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", paymentResponseHeader+", "+reactivatedHeader)
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, "+walletHeader+", "+paymentHeader+", "+idempotencyHeader)
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		if s.rateLimiter != nil && requiresRateLimit(r) {
			if !s.rateLimiter.Allow(requestClientIdentity(r), time.Now().UTC()) {
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "request rate limit exceeded")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// requiresRateLimit marks the endpoints that mint sessions or catalog rows.
func requiresRateLimit(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	switch strings.TrimSpace(r.URL.Path) {
	case "/api/v1/access/purchase", "/api/v1/robots":
		return true
	default:
		return false
	}
}

// requestClientIdentity keys the rate limiter: by wallet when the caller sent
// one, by network address otherwise.
func requestClientIdentity(r *http.Request) string {
	if address := wallet.Normalize(r.Header.Get(walletHeader)); address != "" {
		return address
	}
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	raw := strings.TrimSpace(r.RemoteAddr)
	if raw != "" {
		return raw
	}
	return "unknown"
}

// fixedWindowLimiter admits a bounded number of session-minting calls per
// caller per window. Callers are keyed by wallet when one was presented and
// by network address otherwise (see requestClientIdentity).
type fixedWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[string]windowSpend
}

// windowSpend tracks one caller: the window epoch it last hit and how many
// calls it has spent there.
type windowSpend struct {
	epoch int64
	calls int
}

func newFixedWindowLimiter(limit int, window time.Duration) *fixedWindowLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &fixedWindowLimiter{
		limit:  limit,
		window: window,
		seen:   make(map[string]windowSpend),
	}
}

// Allow spends one call from the caller's current window. Entering a new
// window resets the spend; there is no carry-over between windows.
func (l *fixedWindowLimiter) Allow(caller string, now time.Time) bool {
	key := strings.TrimSpace(caller)
	if key == "" {
		key = "unknown"
	}
	epoch := now.UnixNano() / int64(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	spend, ok := l.seen[key]
	if !ok || spend.epoch != epoch {
		spend = windowSpend{epoch: epoch}
	}
	if spend.calls >= l.limit {
		return false
	}
	spend.calls++
	l.seen[key] = spend
	l.dropStaleLocked(epoch)
	return true
}

// dropStaleLocked keeps the caller map bounded across long uptimes. Entries
// from windows older than the previous one can never be read again.
func (l *fixedWindowLimiter) dropStaleLocked(epoch int64) {
	if len(l.seen) < 1000 {
		return
	}
	for key, spend := range l.seen {
		if spend.epoch < epoch-1 {
			delete(l.seen, key)
		}
	}
}
