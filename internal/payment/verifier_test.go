package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFacilitatorVerifierAccepts(t *testing.T) {
	t.Parallel()

	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			http.NotFound(w, r)
			return
		}
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode verify request: %v", err)
		}
		if req.Payment != "signed-payload" {
			t.Errorf("unexpected payload %q", req.Payment)
		}
		if req.Requirements.PayTo != "0xrobotwallet" {
			t.Errorf("unexpected pay_to %q", req.Requirements.PayTo)
		}
		_ = json.NewEncoder(w).Encode(verifyResponse{
			Valid:   true,
			TxHash:  "0xdeadbeef",
			Payer:   "0xpayer",
			Network: "base-sepolia",
		})
	}))
	defer facilitator.Close()

	verifier := NewFacilitatorVerifier(facilitator.URL, time.Second, nil)
	receipt, err := verifier.Verify(context.Background(), "signed-payload", Requirements{
		Price:   "$0.10",
		Network: "base-sepolia",
		PayTo:   "0xrobotwallet",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if receipt.TxHash != "0xdeadbeef" {
		t.Fatalf("unexpected tx hash %q", receipt.TxHash)
	}
	if receipt.Payer != "0xpayer" {
		t.Fatalf("unexpected payer %q", receipt.Payer)
	}
}

func TestFacilitatorVerifierRejects(t *testing.T) {
	t.Parallel()

	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(verifyResponse{Valid: false, Reason: "amount too low"})
	}))
	defer facilitator.Close()

	verifier := NewFacilitatorVerifier(facilitator.URL, time.Second, nil)
	_, err := verifier.Verify(context.Background(), "signed-payload", Requirements{})
	if !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}
}

func TestFacilitatorVerifierEmptyPayload(t *testing.T) {
	t.Parallel()

	verifier := NewFacilitatorVerifier("http://facilitator.invalid", time.Second, nil)
	_, err := verifier.Verify(context.Background(), "   ", Requirements{})
	if !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment for empty payload, got %v", err)
	}
}

func TestFacilitatorVerifierTransportError(t *testing.T) {
	t.Parallel()

	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	facilitator.Close()

	verifier := NewFacilitatorVerifier(facilitator.URL, 200*time.Millisecond, nil)
	_, err := verifier.Verify(context.Background(), "signed-payload", Requirements{})
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("transport failure must not claim the payment was invalid")
	}
}
