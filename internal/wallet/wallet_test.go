package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"
)

func TestValid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		addr string
		want bool
	}{
		{"0x1234567890abcdef1234567890abcdef12345678", true},
		{"0xABCDEF1234567890ABCDEF1234567890ABCDEF12", true},
		{"  0x1234567890abcdef1234567890abcdef12345678  ", true},
		{"0x1234", false},
		{"1234567890abcdef1234567890abcdef12345678ab", false},
		{"0x1234567890abcdef1234567890abcdef1234567g", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Valid(tc.addr); got != tc.want {
			t.Fatalf("Valid(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestIsName(t *testing.T) {
	t.Parallel()

	if !IsName("vitalik.eth") {
		t.Fatalf("expected vitalik.eth to be a name")
	}
	if !IsName("rover.base.eth") {
		t.Fatalf("expected rover.base.eth to be a name")
	}
	if IsName("0x1234567890abcdef1234567890abcdef12345678") {
		t.Fatalf("address should not be a name")
	}
	if IsName("plainstring") {
		t.Fatalf("dotless string should not be a name")
	}
}

func TestMask(t *testing.T) {
	t.Parallel()

	addr := "0x1234567890abcdef1234567890abcdef12345678"
	masked := Mask(addr)
	if masked != "0x1234...5678" {
		t.Fatalf("unexpected mask %q", masked)
	}
	if len(masked) >= len(addr) {
		t.Fatalf("mask must shorten the identifier")
	}

	short := "0x12345678"
	if Mask(short) != short {
		t.Fatalf("short identifiers pass through unmasked")
	}

	// Multi-byte names must be cut at rune boundaries, never mid-character.
	name := "ローバーおーなー.eth"
	masked = Mask(name)
	if masked != "ローバーおー....eth" {
		t.Fatalf("unexpected mask %q", masked)
	}
	if !utf8.ValidString(masked) {
		t.Fatalf("mask produced invalid UTF-8: %q", masked)
	}

	// A short name stays whole even when it spans more than ten bytes.
	cjk := "ローバー.eth"
	if Mask(cjk) != cjk {
		t.Fatalf("expected %q unmasked, got %q", cjk, Mask(cjk))
	}
}

func TestNamehash(t *testing.T) {
	t.Parallel()

	// Reference vectors from EIP-137.
	cases := map[string]string{
		"":    "0x0000000000000000000000000000000000000000000000000000000000000000",
		"eth": "0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae",
		"foo.eth": "0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f",
	}
	for name, want := range cases {
		if got := Namehash(name); got != want {
			t.Fatalf("Namehash(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestResolverResolve(t *testing.T) {
	t.Parallel()

	resolverAddr := "0x00000000000000000000000000000000000000000000000000000000000000aa"
	ownerAddr := "0x000000000000000000000000d8da6bf26964af9d7eed9e03e53415d37aa96045"

	calls := 0
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		result := resolverAddr
		if calls > 1 {
			result = ownerAddr
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
	}))
	defer rpc.Close()

	resolver := NewResolver(rpc.URL, time.Second, nil)
	addr, err := resolver.Resolve(context.Background(), "vitalik.eth")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr != "0xd8da6bf26964af9d7eed9e03e53415d37aa96045" {
		t.Fatalf("unexpected address %s", addr)
	}
	if calls != 2 {
		t.Fatalf("expected 2 rpc calls, got %d", calls)
	}
}

func TestResolverUnsetName(t *testing.T) {
	t.Parallel()

	zero := "0x0000000000000000000000000000000000000000000000000000000000000000"
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": zero})
	}))
	defer rpc.Close()

	resolver := NewResolver(rpc.URL, time.Second, nil)
	if _, err := resolver.Resolve(context.Background(), "unset.eth"); err == nil {
		t.Fatalf("expected error for unset name")
	}
}
