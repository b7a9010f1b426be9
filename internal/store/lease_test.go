package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLeaseIsExclusive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, bc backendCase) {
		s := bc.open(t)
		ctx := ctxT(t)

		lease, err := s.AcquireLease(ctx, "order", time.Minute)
		require.NoError(t, err)
		require.Equal(t, "order", lease.Resource())

		_, err = s.AcquireLease(ctx, "order", time.Minute)
		require.ErrorIs(t, err, ErrLeaseBusy)

		other, err := s.AcquireLease(ctx, "other", time.Minute)
		require.NoError(t, err)
		require.NoError(t, other.Release(ctx))

		require.NoError(t, lease.Release(ctx))
		again, err := s.AcquireLease(ctx, "order", time.Minute)
		require.NoError(t, err)
		require.NoError(t, again.Release(ctx))
	})
}

func TestLeaseLapsesAfterTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	s := NewMemory(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))
	ctx := ctxT(t)

	stale, err := s.AcquireLease(ctx, "order", time.Second)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	fresh, err := s.AcquireLease(ctx, "order", time.Second)
	require.NoError(t, err)

	// The stale holder must not release the new holder's claim.
	require.NoError(t, stale.Release(ctx))
	_, err = s.AcquireLease(ctx, "order", time.Second)
	require.ErrorIs(t, err, ErrLeaseBusy)

	require.NoError(t, fresh.Release(ctx))
}

func TestLeaseRejectsNonPositiveTTL(t *testing.T) {
	_, err := NewMemory().AcquireLease(ctxT(t), "order", 0)
	require.Error(t, err)
}

func TestWithLeaseReleasesAfterRun(t *testing.T) {
	s := NewMemory()
	ctx := ctxT(t)
	boom := errors.New("boom")

	err := s.WithLease(ctx, "job", time.Minute, func(ctx context.Context) error {
		_, err := s.AcquireLease(ctx, "job", time.Minute)
		require.ErrorIs(t, err, ErrLeaseBusy)
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		require.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return boom
	})
	require.ErrorIs(t, err, boom)

	lease, err := s.AcquireLease(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestReleaseSurvivesCancelledContext(t *testing.T) {
	s := NewMemory()
	lease, err := s.AcquireLease(ctxT(t), "job", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, lease.Release(ctx))

	again, err := s.AcquireLease(ctxT(t), "job", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctxT(t)))
}
