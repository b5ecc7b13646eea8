// Package idempotency makes the paid purchase endpoint safe to retry. A
// client that times out mid-purchase can resend the same Idempotency-Key and
// get the stored response back instead of paying for a second session.
package idempotency

import (
	"context"
	"time"
)

const (
	// DefaultClaimTTL bounds how long one in-flight request blocks retries
	// of the same key.
	DefaultClaimTTL = 30 * time.Second
	// DefaultEntryTTL is how long a completed purchase response replays.
	DefaultEntryTTL = 24 * time.Hour
)

// Entry is a captured HTTP response, replayed verbatim on retry.
type Entry struct {
	StatusCode  int                 `json:"status_code"`
	ContentType string              `json:"content_type"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Body        []byte              `json:"body"`
}

// Store coordinates retries of one idempotency key. Claim wins the right to
// execute the request; Save publishes the response for replays; Release frees
// the claim when the request fails before producing a response.
type Store interface {
	Get(ctx context.Context, scope, key string) (Entry, bool, error)
	Claim(ctx context.Context, scope, key, owner string, ttl time.Duration) (bool, error)
	Save(ctx context.Context, scope, key string, entry Entry, ttl time.Duration) error
	Release(ctx context.Context, scope, key, owner string) error
}
