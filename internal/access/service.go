// Package access implements the control-session policy: purchasing timed
// exclusive access to a rover, checking session state, and releasing early.
// It is a pure in-memory layer over the lease registry; hardware liveness is
// the HTTP layer's concern and is checked before Purchase is called.
package access

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/rovergate/rovergate/internal/lease"
	"github.com/rovergate/rovergate/internal/metrics"
)

// Session is the wire view of a wallet's control session.
type Session struct {
	Active           bool       `json:"active"`
	RoverHost        string     `json:"robot_host,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RemainingSeconds int        `json:"remaining_seconds"`
}

// Service brokers control sessions over the lease registry.
type Service struct {
	leases *lease.Registry
	logger *slog.Logger
}

func NewService(leases *lease.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{leases: leases, logger: logger}
}

// Purchase grants the wallet a timed exclusive session on the rover. The
// availability check and the grant are one atomic claim; a rover held by
// another wallet is rejected with lease.ErrResourceBusy. A wallet that
// already holds a session is switched to the new rover and its old session
// ends. The payment transaction hash, when present, is recorded on the lease.
func (s *Service) Purchase(walletAddress, roverHost, paymentTx string) (lease.Lease, error) {
	granted, err := s.leases.Claim(walletAddress, roverHost, paymentTx)
	if err != nil {
		if errors.Is(err, lease.ErrResourceBusy) {
			metrics.ClaimsRejected.WithLabelValues("busy").Inc()
		} else {
			metrics.ClaimsRejected.WithLabelValues("invalid").Inc()
		}
		return lease.Lease{}, err
	}

	metrics.SessionsCreated.Inc()
	s.syncActiveGauge()
	s.logger.Info("session created",
		"wallet", granted.Holder,
		"rover", granted.Resource,
		"expires_at", granted.ExpiresAt,
	)
	return granted, nil
}

// Status reports the wallet's current session, if any. Inactive sessions
// report zero remaining seconds and omit the rover binding.
func (s *Service) Status(walletAddress string) Session {
	current, ok := s.leases.Active(walletAddress)
	if !ok {
		return Session{Active: false}
	}
	expires := current.ExpiresAt
	return Session{
		Active:           true,
		RoverHost:        current.Resource,
		ExpiresAt:        &expires,
		RemainingSeconds: current.RemainingAt(s.leases.Now()),
	}
}

// RemainingSeconds reports whole seconds left on the wallet's session, or
// zero when it has none.
func (s *Service) RemainingSeconds(walletAddress string) int {
	current, ok := s.leases.Active(walletAddress)
	if !ok {
		return 0
	}
	return current.RemainingAt(s.leases.Now())
}

// RoverFor reports the rover bound to the wallet's session.
func (s *Service) RoverFor(walletAddress string) (string, bool) {
	current, ok := s.leases.Active(walletAddress)
	if !ok {
		return "", false
	}
	return current.Resource, true
}

// Release ends the wallet's session ahead of expiry. It reports whether an
// active session was actually ended; releasing nothing is not an error.
func (s *Service) Release(walletAddress string) bool {
	current, ok := s.leases.Active(walletAddress)
	if !ok {
		return false
	}

	s.leases.Release(walletAddress)
	metrics.SessionsReleased.Inc()
	s.syncActiveGauge()
	s.logger.Info("session released", "wallet", current.Holder, "rover", current.Resource)
	return true
}

// SessionDuration exposes the configured session length for API responses.
func (s *Service) SessionDuration() time.Duration {
	return s.leases.Duration()
}

func (s *Service) syncActiveGauge() {
	metrics.SessionsActive.Set(float64(s.leases.ActiveCount()))
}
