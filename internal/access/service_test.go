package access

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovergate/rovergate/internal/lease"
)

const (
	walletA = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	walletB = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	registry := lease.New(10*time.Minute, lease.WithClock(clk.Now))
	return NewService(registry, nil), clk
}

func TestPurchaseGrantsSession(t *testing.T) {
	svc, clk := newTestService(t)

	granted, err := svc.Purchase(walletA, "Helsinki-Rover-01", "0xfeedtx")
	require.NoError(t, err)
	assert.Equal(t, "helsinki-rover-01", granted.Resource)
	assert.Equal(t, "0xfeedtx", granted.Attestation)

	status := svc.Status(walletA)
	require.True(t, status.Active)
	assert.Equal(t, "helsinki-rover-01", status.RoverHost)
	require.NotNil(t, status.ExpiresAt)
	assert.Equal(t, granted.ExpiresAt, *status.ExpiresAt)
	assert.Equal(t, 600, status.RemainingSeconds)

	clk.Advance(5 * time.Second)
	assert.Equal(t, 595, svc.RemainingSeconds(walletA))
}

func TestPurchaseRejectsBusyRover(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Purchase(walletA, "rover-1", "")
	require.NoError(t, err)

	_, err = svc.Purchase(walletB, "rover-1", "")
	require.ErrorIs(t, err, lease.ErrResourceBusy)

	// The loser keeps no session and the holder is reported masked.
	assert.False(t, svc.Status(walletB).Active)
	view := svc.Describe("rover-1")
	assert.False(t, view.Available)
	assert.Equal(t, "0xab58...ec9b", view.LockedBy)
}

func TestSwitchRoverFreesOld(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Purchase(walletA, "rover-1", "")
	require.NoError(t, err)
	_, err = svc.Purchase(walletA, "rover-2", "")
	require.NoError(t, err)

	assert.True(t, svc.Describe("rover-1").Available)
	assert.False(t, svc.Describe("rover-2").Available)

	bound, ok := svc.RoverFor(walletA)
	require.True(t, ok)
	assert.Equal(t, "rover-2", bound)
}

func TestExpiryFreesRoverAndSession(t *testing.T) {
	svc, clk := newTestService(t)

	_, err := svc.Purchase(walletA, "rover-1", "")
	require.NoError(t, err)

	clk.Advance(10*time.Minute + time.Second)

	assert.False(t, svc.Status(walletA).Active)
	assert.Equal(t, 0, svc.RemainingSeconds(walletA))
	assert.True(t, svc.Describe("rover-1").Available)

	_, ok := svc.RoverFor(walletA)
	assert.False(t, ok)

	// The freed rover can be claimed by someone else immediately.
	_, err = svc.Purchase(walletB, "rover-1", "")
	require.NoError(t, err)
}

func TestReleaseEndsSessionEarly(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Purchase(walletA, "rover-1", "")
	require.NoError(t, err)

	assert.True(t, svc.Release(walletA))
	assert.False(t, svc.Status(walletA).Active)
	assert.True(t, svc.Describe("rover-1").Available)

	// Releasing again is a no-op, not an error.
	assert.False(t, svc.Release(walletA))
}

func TestDescribeAvailableRover(t *testing.T) {
	svc, _ := newTestService(t)

	view := svc.Describe("never-claimed")
	assert.True(t, view.Available)
	assert.Empty(t, view.LockedBy)
}

func TestSessionDuration(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Equal(t, 10*time.Minute, svc.SessionDuration())
}
