package lease

import (
	"errors"
	"sync"
	"time"
)

const defaultDuration = 10 * time.Minute

// Option configures optional Registry behavior.
type Option func(*Registry)

// WithClock replaces the registry's time source.
func WithClock(clock Clock) Option {
	return func(r *Registry) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithOnExpire registers a callback invoked whenever a lease is discovered
// expired and dropped. The callback runs under the registry lock, so it must
// be cheap and must not call back into the registry. Used to feed the expiry
// counter without coupling the registry to the metrics package.
func WithOnExpire(fn func(Lease)) Option {
	return func(r *Registry) {
		r.onExpire = fn
	}
}

// Registry holds the active leases. Two maps are kept in lockstep under one
// mutex: byHolder owns the lease records, byResource indexes the current
// holder per rover. Every operation that may observe an expired entry also
// removes it, so the maps stay bounded without a background sweeper.
type Registry struct {
	mu         sync.Mutex
	duration   time.Duration
	now        Clock
	onExpire   func(Lease)
	byHolder   map[string]Lease
	byResource map[string]string
}

// New creates an empty registry issuing leases of the given duration.
// Non-positive durations fall back to 10 minutes.
func New(duration time.Duration, opts ...Option) *Registry {
	if duration <= 0 {
		duration = defaultDuration
	}
	r := &Registry{
		duration:   duration,
		now:        systemClock,
		byHolder:   make(map[string]Lease),
		byResource: make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Duration reports the configured lease duration.
func (r *Registry) Duration() time.Duration {
	return r.duration
}

// Now reports the registry's current time. Callers computing countdowns
// against lease expiries should use this instead of time.Now so they agree
// with the clock the registry was configured with.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Claim atomically grants the holder a lease on the resource. If the holder
// already has a lease (on this or any other rover) it is released first, so a
// wallet never holds two rovers at once. If a different wallet holds an
// unexpired lease on the target, Claim returns ErrResourceBusy and changes
// nothing — the availability check and the claim are one critical section, so
// two concurrent claims on the same rover cannot both succeed.
func (r *Registry) Claim(holder, resource, attestation string) (Lease, error) {
	h := normalize(holder)
	res := normalize(resource)
	if h == "" {
		return Lease{}, errors.New("holder is required")
	}
	if res == "" {
		return Lease{}, errors.New("resource is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if occupant, held := r.byResource[res]; held && occupant != h {
		if current, ok := r.byHolder[occupant]; ok && !current.expiredAt(now) {
			return Lease{}, ErrResourceBusy
		}
		// Stale entry left by a lapsed lease; clear it before installing.
		r.expireLocked(occupant)
	}

	// The holder's previous lease, if any, is superseded regardless of which
	// rover it covered. One that already lapsed is recorded as an expiry, not
	// a switch, so the onExpire hook sees every lease that ran out.
	if current, ok := r.byHolder[h]; ok && current.expiredAt(now) {
		r.expireLocked(h)
	} else {
		r.dropLocked(h)
	}

	granted := Lease{
		Holder:      h,
		Resource:    res,
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.duration),
		Attestation: attestation,
	}
	r.byHolder[h] = granted
	r.byResource[res] = h
	return granted, nil
}

// Active returns the holder's lease while it is unexpired. An expired lease is
// removed from both maps as a side effect and reported absent, and stays
// absent on every later call.
func (r *Registry) Active(holder string) (Lease, bool) {
	h := normalize(holder)
	if h == "" {
		return Lease{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(h)
}

// Release drops the holder's lease and frees its rover. Releasing an absent
// holder is a no-op.
func (r *Registry) Release(holder string) {
	h := normalize(holder)
	if h == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(h)
}

// HolderOf reports which wallet currently holds the rover. A rover whose
// holder's lease has expired is reported unheld, and the stale index entry is
// cleared.
func (r *Registry) HolderOf(resource string) (string, bool) {
	res := normalize(resource)
	if res == "" {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	occupant, held := r.byResource[res]
	if !held {
		return "", false
	}
	if _, ok := r.activeLocked(occupant); !ok {
		return "", false
	}
	return occupant, true
}

// Available reports whether the rover has no active holder.
func (r *Registry) Available(resource string) bool {
	_, held := r.HolderOf(resource)
	return !held
}

// ActiveCount counts unexpired leases. Expired entries still awaiting lazy
// cleanup are not counted.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	count := 0
	for _, l := range r.byHolder {
		if !l.expiredAt(now) {
			count++
		}
	}
	return count
}

// activeLocked resolves the holder's lease under the lock, expiring it in
// place when its time is up.
func (r *Registry) activeLocked(holder string) (Lease, bool) {
	current, ok := r.byHolder[holder]
	if !ok {
		return Lease{}, false
	}
	if current.expiredAt(r.now()) {
		r.expireLocked(holder)
		return Lease{}, false
	}
	return current, true
}

// dropLocked removes the holder's lease from both maps. The resource index is
// only cleared when it still points at this holder.
func (r *Registry) dropLocked(holder string) {
	current, ok := r.byHolder[holder]
	if !ok {
		return
	}
	if r.byResource[current.Resource] == holder {
		delete(r.byResource, current.Resource)
	}
	delete(r.byHolder, holder)
}

func (r *Registry) expireLocked(holder string) {
	current, ok := r.byHolder[holder]
	r.dropLocked(holder)
	if ok && r.onExpire != nil {
		r.onExpire(current)
	}
}
