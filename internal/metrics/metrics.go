// Package metrics declares the Prometheus collectors for the control-plane.
// Collectors register themselves into the default registry; the API server
// exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// sessions created - one increment per successful purchase
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rovergate_sessions_created_total",
			Help: "total number of control sessions created",
		},
	)

	// sessions released early by the holder, before expiry
	SessionsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rovergate_sessions_released_total",
			Help: "total number of control sessions released by their holder",
		},
	)

	// sessions that ran out their clock
	// spikes mean users are buying time and walking away
	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rovergate_sessions_expired_total",
			Help: "total number of control sessions that expired",
		},
	)

	// purchase attempts turned away
	// labels: reason (busy, offline, payment, invalid)
	ClaimsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rovergate_claims_rejected_total",
			Help: "total number of rejected session purchases",
		},
		[]string{"reason"},
	)

	// currently live sessions - should track the number of occupied rovers
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rovergate_sessions_active",
			Help: "current number of active control sessions",
		},
	)

	// motor commands relayed to rover hardware
	// labels: command (forward/back/left/right/stop), status (ok/error)
	MotorCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rovergate_motor_commands_total",
			Help: "total number of motor commands relayed to rovers",
		},
		[]string{"command", "status"},
	)

	// payment verification outcomes
	// labels: outcome (verified, rejected, error)
	PaymentVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rovergate_payment_verifications_total",
			Help: "total number of payment verification attempts",
		},
		[]string{"outcome"},
	)

	// service uptime marker - 1 while the process is running
	Up = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rovergate_up",
			Help: "whether the service is up (always 1 when running)",
		},
	)
)

func init() {
	Up.Set(1)
}
