// Package api is the HTTP surface of the control-plane: session purchase and
// status, authorized rover control, the public rover status probe, and the
// rover catalog CRUD. Handlers stay thin; policy lives in internal/access.
package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rovergate/rovergate/internal/access"
	"github.com/rovergate/rovergate/internal/fleet"
	"github.com/rovergate/rovergate/internal/idempotency"
	"github.com/rovergate/rovergate/internal/payment"
	"github.com/rovergate/rovergate/internal/rover"
	"github.com/rovergate/rovergate/internal/wallet"
	"github.com/rovergate/rovergate/pkg/httpx"
)

const walletHeader = "X-Wallet-Address"

// Options carries the optional collaborators and tuning knobs. Zero values
// are safe: no resolver skips ENS validation, no verifier (with payments
// disabled) skips the payment gate, no idempotency store disables replays.
type Options struct {
	Resolver    *wallet.Resolver
	Verifier    payment.Verifier
	Idempotency idempotency.Store
	Logger      *slog.Logger

	SessionPrice   string
	PaymentEnabled bool
	PaymentNetwork string
	// PaymentAddress is the fallback pay-to wallet for rovers registered
	// without one.
	PaymentAddress string

	CORSOrigins     []string
	FrameInterval   time.Duration
	RateLimitPerMin int

	IdempotencyTTL  time.Duration
	IdempotencyLock time.Duration
}

type Server struct {
	access *access.Service
	rovers rover.Client
	robots fleet.Store

	resolver    *wallet.Resolver
	verifier    payment.Verifier
	idempotency idempotency.Store
	logger      *slog.Logger

	sessionPrice   string
	paymentEnabled bool
	paymentNetwork string
	paymentAddress string

	corsOrigins   []string
	frameInterval time.Duration
	rateLimiter   *fixedWindowLimiter

	idempotencyTTL  time.Duration
	idempotencyLock time.Duration
}

func NewServer(accessSvc *access.Service, rovers rover.Client, robots fleet.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	frameInterval := opts.FrameInterval
	if frameInterval <= 0 {
		frameInterval = 200 * time.Millisecond
	}
	var limiter *fixedWindowLimiter
	if opts.RateLimitPerMin > 0 {
		limiter = newFixedWindowLimiter(opts.RateLimitPerMin, time.Minute)
	}
	idempotencyTTL := opts.IdempotencyTTL
	if idempotencyTTL <= 0 {
		idempotencyTTL = idempotency.DefaultEntryTTL
	}
	idempotencyLock := opts.IdempotencyLock
	if idempotencyLock <= 0 {
		idempotencyLock = idempotency.DefaultClaimTTL
	}

	return &Server{
		access:          accessSvc,
		rovers:          rovers,
		robots:          robots,
		resolver:        opts.Resolver,
		verifier:        opts.Verifier,
		idempotency:     opts.Idempotency,
		logger:          logger,
		sessionPrice:    opts.SessionPrice,
		paymentEnabled:  opts.PaymentEnabled,
		paymentNetwork:  opts.PaymentNetwork,
		paymentAddress:  opts.PaymentAddress,
		corsOrigins:     opts.CORSOrigins,
		frameInterval:   frameInterval,
		rateLimiter:     limiter,
		idempotencyTTL:  idempotencyTTL,
		idempotencyLock: idempotencyLock,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/access/purchase", s.handlePurchase)
	mux.HandleFunc("/api/v1/access/status", s.handleAccessStatus)
	mux.HandleFunc("/api/v1/access/config", s.handleAccessConfig)
	mux.HandleFunc("/api/v1/access", s.handleAccessRelease)

	mux.HandleFunc("/api/v1/robot/motor/", s.handleMotor)
	mux.HandleFunc("/api/v1/robot/camera/frame", s.handleCameraFrame)
	mux.HandleFunc("/api/v1/robot/camera/stream", s.handleCameraStream)
	mux.HandleFunc("/api/v1/robot/status", s.handleRobotStatus)

	mux.HandleFunc("/api/v1/robots", s.handleRobots)
	mux.HandleFunc("/api/v1/robots/", s.handleRobotByID)

	return s.withSecurity(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"payment_enabled": s.paymentEnabled,
	})
}

// requireWallet extracts the caller's wallet address. A missing header is
// 401, a malformed address 400; both write the error response themselves.
func (s *Server) requireWallet(w http.ResponseWriter, r *http.Request) (string, bool) {
	address := r.Header.Get(walletHeader)
	if wallet.Normalize(address) == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "wallet_required",
			"wallet address required; include the X-Wallet-Address header")
		return "", false
	}
	if !wallet.Valid(address) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_wallet",
			"wallet address must be a 0x-prefixed 40 hex char address")
		return "", false
	}
	return wallet.Normalize(address), true
}

// requireLease resolves the rover bound to the caller's session. No wallet is
// 401, no active session 403.
func (s *Server) requireLease(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	walletAddress, ok := s.requireWallet(w, r)
	if !ok {
		return "", "", false
	}
	roverHost, ok := s.access.RoverFor(walletAddress)
	if !ok {
		httpx.WriteError(w, http.StatusForbidden, "no_active_session",
			"no robot bound to this wallet; purchase access first")
		return "", "", false
	}
	return walletAddress, roverHost, true
}
