package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

const (
	// ENS registry address, identical on every network ENS is deployed to.
	ensRegistry = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

	// 4-byte selectors for resolver(bytes32) and addr(bytes32).
	resolverSelector = "0x0178b8bf"
	addrSelector     = "0x3b3b57de"

	zeroAddress = "0x0000000000000000000000000000000000000000"
)

// ErrNameNotFound is returned when a name has no resolver or no address record.
var ErrNameNotFound = errors.New("name does not resolve to an address")

// Resolver resolves ENS/Base names to addresses with two eth_call round trips
// against a JSON-RPC endpoint (registry lookup, then the resolver's addr
// record). It is the service's only touchpoint with the chain.
type Resolver struct {
	httpClient *http.Client
	rpcURL     string
	logger     *slog.Logger
}

func NewResolver(rpcURL string, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		httpClient: &http.Client{Timeout: timeout},
		rpcURL:     strings.TrimSpace(rpcURL),
		logger:     logger,
	}
}

// Resolve maps a dotted name to its address. Returns ErrNameNotFound when the
// name exists but has no resolver or address configured.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	name = Normalize(name)
	if !IsName(name) {
		return "", fmt.Errorf("%q is not a resolvable name", name)
	}

	node := Namehash(name)

	resolverAddr, err := r.ethCall(ctx, ensRegistry, resolverSelector+node[2:])
	if err != nil {
		return "", fmt.Errorf("resolve %s: registry lookup: %w", name, err)
	}
	if resolverAddr == zeroAddress {
		return "", ErrNameNotFound
	}

	addr, err := r.ethCall(ctx, resolverAddr, addrSelector+node[2:])
	if err != nil {
		return "", fmt.Errorf("resolve %s: addr lookup: %w", name, err)
	}
	if addr == zeroAddress {
		return "", ErrNameNotFound
	}

	r.logger.Debug("resolved owner name", "name", name, "address", addr)
	return addr, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ethCall performs a single eth_call and returns the last 20 bytes of the
// result as a 0x address.
func (r *Resolver) ethCall(ctx context.Context, to, data string) (string, error) {
	payload := rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_call",
		Params: []any{
			map[string]string{"to": to, "data": data},
			"latest",
		},
		ID: 1,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.rpcURL, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rpc endpoint returned %d", resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode rpc response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	result := strings.TrimSpace(decoded.Result)
	if len(result) < addressLength-2 {
		return "", ErrNameNotFound
	}
	return "0x" + strings.ToLower(result[len(result)-40:]), nil
}

// Namehash computes the EIP-137 hash of an ENS name: labels are hashed from
// the rightmost outward, each folded into the running node with Keccak-256.
func Namehash(name string) string {
	node := make([]byte, 32)
	if name != "" {
		labels := strings.Split(name, ".")
		for i := len(labels) - 1; i >= 0; i-- {
			labelHash := keccak256([]byte(labels[i]))
			node = keccak256(append(node, labelHash...))
		}
	}
	return "0x" + hex.EncodeToString(node)
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
