// Package payment verifies x402 payment payloads presented on purchase
// requests. Custody, settlement and payouts live with the facilitator; the
// control-plane only needs a yes/no and a transaction hash to pin on the
// session.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidPayment covers payloads the facilitator rejects: bad signature,
// wrong network, insufficient amount, replayed payment.
var ErrInvalidPayment = errors.New("payment invalid")

// Requirements describe what a purchase costs and who gets paid. PayTo is the
// wallet of the rover being purchased, not a global address.
type Requirements struct {
	Price   string `json:"price"`
	Network string `json:"network"`
	PayTo   string `json:"pay_to"`
}

// Receipt is proof that a payment settled.
type Receipt struct {
	TxHash  string `json:"tx_hash"`
	Payer   string `json:"payer,omitempty"`
	Network string `json:"network,omitempty"`
}

// Verifier checks a payment payload against the requirements it must satisfy.
type Verifier interface {
	Verify(ctx context.Context, payload string, reqs Requirements) (Receipt, error)
}

// FacilitatorVerifier hands verification to an x402 facilitator service over
// HTTP. One POST per purchase; no retries, the client retries the purchase.
type FacilitatorVerifier struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewFacilitatorVerifier(baseURL string, timeout time.Duration, logger *slog.Logger) *FacilitatorVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FacilitatorVerifier{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:     logger,
	}
}

type verifyRequest struct {
	Payment      string       `json:"payment"`
	Requirements Requirements `json:"requirements"`
}

type verifyResponse struct {
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
	Payer   string `json:"payer,omitempty"`
	Network string `json:"network,omitempty"`
}

func (v *FacilitatorVerifier) Verify(ctx context.Context, payload string, reqs Requirements) (Receipt, error) {
	if strings.TrimSpace(payload) == "" {
		return Receipt{}, fmt.Errorf("%w: empty payload", ErrInvalidPayment)
	}

	raw, err := json.Marshal(verifyRequest{Payment: payload, Requirements: reqs})
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify", bytes.NewReader(raw))
	if err != nil {
		return Receipt{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return Receipt{}, fmt.Errorf("facilitator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out verifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Receipt{}, fmt.Errorf("decode verify response: %w", err)
	}

	if !out.Valid {
		reason := strings.TrimSpace(out.Reason)
		if reason == "" {
			reason = "rejected by facilitator"
		}
		v.logger.Warn("payment rejected", "reason", reason, "pay_to", reqs.PayTo)
		return Receipt{}, fmt.Errorf("%w: %s", ErrInvalidPayment, reason)
	}

	return Receipt{TxHash: out.TxHash, Payer: out.Payer, Network: out.Network}, nil
}
