// Package lease implements the in-process registry that binds one wallet to
// one rover for a bounded window of time. The registry is the single source of
// truth for "who controls what right now"; everything above it (purchase flow,
// command authorization, availability reporting) is derived from its two maps.
package lease

import (
	"errors"
	"strings"
	"time"
)

// ErrResourceBusy is returned by Claim when the rover is held by a different
// wallet whose lease has not yet expired.
var ErrResourceBusy = errors.New("resource is held by another holder")

// Clock supplies the current time. Injected so expiry can be driven
// deterministically in tests.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// Lease binds a holder (wallet address) to a resource (rover host) until
// ExpiresAt. Attestation is an opaque payment reference carried for responses
// and audit only; the registry never interprets it.
type Lease struct {
	Holder      string
	Resource    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Attestation string
}

// RemainingAt reports the whole seconds left on the lease at the given
// instant, clamped at zero.
func (l Lease) RemainingAt(now time.Time) int {
	remaining := l.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// expiredAt reports whether the lease is no longer active. A lease is active
// strictly while now < ExpiresAt.
func (l Lease) expiredAt(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// normalize lowercases and trims an identifier. Identifiers are compared
// case-insensitively everywhere; normalizing once at the registry boundary
// keeps the holder/resource bijection simple.
func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
