package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rovergate/rovergate/internal/access"
	"github.com/rovergate/rovergate/internal/fleet"
	"github.com/rovergate/rovergate/internal/lease"
	"github.com/rovergate/rovergate/internal/metrics"
	"github.com/rovergate/rovergate/internal/payment"
	"github.com/rovergate/rovergate/internal/wallet"
	"github.com/rovergate/rovergate/pkg/httpx"
)

const (
	paymentHeader         = "X-Payment"
	paymentResponseHeader = "X-Payment-Response"
)

type purchaseRequest struct {
	RobotHost string `json:"robot_host"`
}

type purchaseResponse struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Session   access.Session `json:"session"`
	PaymentTx string         `json:"payment_tx,omitempty"`
}

// paymentRequiredResponse is the 402 advertisement: what the purchase costs
// and where the payment goes. Clients retry with an X-Payment header.
type paymentRequiredResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Accepts []payment.Requirements `json:"accepts"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if s.handleIdempotentRequest(w, r, "access:purchase", func(w http.ResponseWriter) {
		s.executePurchase(w, r)
	}) {
		return
	}
	s.executePurchase(w, r)
}

func (s *Server) executePurchase(w http.ResponseWriter, r *http.Request) {
	walletAddress, ok := s.requireWallet(w, r)
	if !ok {
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	roverHost := wallet.Normalize(req.RobotHost)
	if roverHost == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_robot_host", "robot_host is required")
		return
	}

	attestation := ""
	if s.paymentsActive() {
		receipt, ok := s.collectPayment(w, r, roverHost)
		if !ok {
			return
		}
		attestation = receipt.TxHash
		w.Header().Set(paymentResponseHeader, receipt.TxHash)
	}

	// The session policy trusts this probe; a rover that cannot be reached
	// must never end up locked.
	if !s.rovers.MotorOnline(r.Context(), roverHost) {
		metrics.ClaimsRejected.WithLabelValues("offline").Inc()
		httpx.WriteErrorf(w, http.StatusServiceUnavailable, "robot_offline",
			"robot %q is offline; cannot create session", roverHost)
		return
	}

	granted, err := s.access.Purchase(walletAddress, roverHost, attestation)
	if err != nil {
		s.writePurchaseError(w, roverHost, err)
		return
	}

	minutes := int(s.access.SessionDuration().Minutes())
	httpx.WriteJSON(w, http.StatusOK, purchaseResponse{
		Status:    "success",
		Message:   fmt.Sprintf("access granted to %q for %d minutes", granted.Resource, minutes),
		Session:   s.access.Status(walletAddress),
		PaymentTx: attestation,
	})
}

func (s *Server) paymentsActive() bool {
	return s.paymentEnabled && s.verifier != nil
}

// collectPayment runs the x402 exchange for one purchase: resolve who gets
// paid, advertise the price when no payment came along, verify the payload
// when one did. It reports false after writing the response itself.
func (s *Server) collectPayment(w http.ResponseWriter, r *http.Request, roverHost string) (payment.Receipt, bool) {
	payTo, ok := s.resolvePayTo(w, r, roverHost)
	if !ok {
		return payment.Receipt{}, false
	}
	reqs := payment.Requirements{
		Price:   s.sessionPrice,
		Network: s.paymentNetwork,
		PayTo:   payTo,
	}

	payload := r.Header.Get(paymentHeader)
	if payload == "" {
		httpx.WriteJSON(w, http.StatusPaymentRequired, paymentRequiredResponse{
			Code:    "payment_required",
			Message: fmt.Sprintf("payment of %s required; retry with an X-Payment header", reqs.Price),
			Accepts: []payment.Requirements{reqs},
		})
		return payment.Receipt{}, false
	}

	receipt, err := s.verifier.Verify(r.Context(), payload, reqs)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidPayment) {
			metrics.PaymentVerifications.WithLabelValues("rejected").Inc()
			metrics.ClaimsRejected.WithLabelValues("payment").Inc()
			httpx.WriteError(w, http.StatusPaymentRequired, "invalid_payment", err.Error())
			return payment.Receipt{}, false
		}
		metrics.PaymentVerifications.WithLabelValues("error").Inc()
		s.logger.Error("payment verification unavailable", "error", err)
		httpx.WriteError(w, http.StatusPaymentRequired, "payment_verification_failed",
			"payment could not be verified; try again")
		return payment.Receipt{}, false
	}

	metrics.PaymentVerifications.WithLabelValues("verified").Inc()
	return receipt, true
}

// resolvePayTo finds the wallet that should receive this purchase: the
// registered rover's payment wallet, falling back to the service-wide address
// for rovers driven outside the catalog.
func (s *Server) resolvePayTo(w http.ResponseWriter, r *http.Request, roverHost string) (string, bool) {
	robot, err := s.robots.GetByHost(r.Context(), roverHost)
	if err == nil && robot.WalletAddress != "" {
		return robot.WalletAddress, true
	}
	if err != nil && !errors.Is(err, fleet.ErrRobotNotFound) {
		s.logger.Error("pay-to lookup failed", "rover", roverHost, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "catalog_unavailable", "robot catalog lookup failed")
		return "", false
	}
	if s.paymentAddress != "" {
		return s.paymentAddress, true
	}
	httpx.WriteErrorf(w, http.StatusBadRequest, "robot_not_registered",
		"robot %q is not registered; register it first via POST /api/v1/robots", roverHost)
	return "", false
}

func (s *Server) writePurchaseError(w http.ResponseWriter, roverHost string, err error) {
	switch {
	case errors.Is(err, lease.ErrResourceBusy):
		httpx.WriteErrorf(w, http.StatusConflict, "robot_busy",
			"robot %q is currently in use by another wallet", roverHost)
	default:
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	}
}

func (s *Server) handleAccessStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	// No wallet means no session; status never demands authentication.
	address := wallet.Normalize(r.Header.Get(walletHeader))
	if !wallet.Valid(address) {
		httpx.WriteJSON(w, http.StatusOK, access.Session{Active: false})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.access.Status(address))
}

type accessConfigResponse struct {
	PaymentEnabled         bool    `json:"payment_enabled"`
	SessionPrice           *string `json:"session_price"`
	PaymentNetwork         string  `json:"payment_network,omitempty"`
	SessionDurationMinutes int     `json:"session_duration_minutes"`
}

func (s *Server) handleAccessConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	resp := accessConfigResponse{
		PaymentEnabled:         s.paymentsActive(),
		PaymentNetwork:         s.paymentNetwork,
		SessionDurationMinutes: int(s.access.SessionDuration().Minutes()),
	}
	if s.paymentsActive() {
		price := s.sessionPrice
		resp.SessionPrice = &price
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccessRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	walletAddress, ok := s.requireWallet(w, r)
	if !ok {
		return
	}
	s.access.Release(walletAddress)
	w.WriteHeader(http.StatusNoContent)
}
