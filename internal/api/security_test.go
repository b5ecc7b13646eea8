package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRequestClientIdentityPrefersWallet(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/access/purchase", nil)
	req.Header.Set(walletHeader, testWalletA)
	req.Header.Set("X-Forwarded-For", "203.0.113.10")

	got := requestClientIdentity(req)
	if got != strings.ToLower(testWalletA) {
		t.Fatalf("expected wallet identity, got %q", got)
	}
}

func TestRequestClientIdentityPrefersXForwardedForFirstIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/access/purchase", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.10, 10.0.0.5")
	req.RemoteAddr = "127.0.0.1:12345"

	got := requestClientIdentity(req)
	if got != "203.0.113.10" {
		t.Fatalf("expected first forwarded ip, got %q", got)
	}
}

func TestRequiresRateLimitMatchesStateChangingPosts(t *testing.T) {
	t.Parallel()

	purchasePost := httptest.NewRequest(http.MethodPost, "/api/v1/access/purchase", nil)
	if !requiresRateLimit(purchasePost) {
		t.Fatalf("expected purchase post to be rate limited")
	}

	registerPost := httptest.NewRequest(http.MethodPost, "/api/v1/robots", nil)
	if !requiresRateLimit(registerPost) {
		t.Fatalf("expected robot registration to be rate limited")
	}

	statusGet := httptest.NewRequest(http.MethodGet, "/api/v1/access/status", nil)
	if requiresRateLimit(statusGet) {
		t.Fatalf("did not expect status reads to be rate limited")
	}

	motorGet := httptest.NewRequest(http.MethodGet, "/api/v1/robot/motor/forward", nil)
	if requiresRateLimit(motorGet) {
		t.Fatalf("did not expect motor commands to be rate limited")
	}
}

func TestFixedWindowLimiterResetsAcrossWindows(t *testing.T) {
	t.Parallel()

	limiter := newFixedWindowLimiter(1, time.Minute)
	clientKey := "198.51.100.4"
	windowStart := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	if !limiter.Allow(clientKey, windowStart.Add(10*time.Second)) {
		t.Fatalf("expected first request in window to be allowed")
	}
	if limiter.Allow(clientKey, windowStart.Add(20*time.Second)) {
		t.Fatalf("expected second request in same window to be denied")
	}
	if !limiter.Allow(clientKey, windowStart.Add(70*time.Second)) {
		t.Fatalf("expected request in next window to be allowed")
	}
}

func TestFixedWindowLimiterIsolatesCallers(t *testing.T) {
	t.Parallel()

	limiter := newFixedWindowLimiter(1, time.Minute)
	at := time.Date(2026, time.March, 1, 10, 0, 30, 0, time.UTC)

	if !limiter.Allow(strings.ToLower(testWalletA), at) {
		t.Fatalf("expected first caller to be allowed")
	}
	if !limiter.Allow(strings.ToLower(testWalletB), at) {
		t.Fatalf("expected second caller to have its own window")
	}
	if limiter.Allow(strings.ToLower(testWalletA), at) {
		t.Fatalf("expected first caller's window to be spent")
	}
}

func TestPurchaseRateLimited(t *testing.T) {
	srv, _ := newTestServer(Options{RateLimitPerMin: 2})

	for i := 0; i < 2; i++ {
		rr := purchase(t, srv, testWalletA, testRover)
		if rr.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d unexpectedly rate limited", i+1)
		}
	}
	rr := purchase(t, srv, testWalletA, testRover)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "rate_limited") {
		t.Fatalf("expected rate_limited code, got %s", rr.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(Options{CORSOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/access/purchase", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, walletHeader) {
		t.Fatalf("expected wallet header allowed, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, paymentResponseHeader) {
		t.Fatalf("expected payment response header exposed, got %q", got)
	}
}

func TestCORSUnknownOriginGetsNoHeaders(t *testing.T) {
	srv, _ := newTestServer(Options{CORSOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS headers for unknown origin, got %q", got)
	}
}

func TestCORSAppliedToResponses(t *testing.T) {
	srv, _ := newTestServer(Options{CORSOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials allowed, got %q", got)
	}
}
