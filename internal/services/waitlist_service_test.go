package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/waitlist/internal/ordering"
	apperrors "github.com/charlesng35/waitlist/pkg/errors"
)

func TestInsertNormalisesContact(t *testing.T) {
	svc := newMemoryServices(t, WithIDGenerator(func() string { return "generated" }))
	ctx := context.Background()

	res, err := svc.waitlist.Insert(ctx, InsertRequest{
		Email:    "  Alice@Example.COM ",
		Phone:    "+1 (555) 010-2000",
		Metadata: map[string]any{"source": "landing"},
	})
	require.NoError(t, err)
	require.Equal(t, InsertResult{ID: "generated", Position: 1}, res)

	status, err := svc.waitlist.Get(ctx, "generated")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", status.Member.Email)
	require.Equal(t, "+15550102000", status.Member.Phone)
	require.Equal(t, "landing", status.Member.Metadata["source"])
	require.Equal(t, 1, status.Position)

	status, err = svc.waitlist.Lookup(ctx, Contact{Phone: "+1 555 010 2000"})
	require.NoError(t, err)
	require.Equal(t, "generated", status.Member.ID)
}

func TestInsertValidation(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()

	_, err := svc.waitlist.Insert(ctx, InsertRequest{})
	require.ErrorIs(t, err, ErrContactRequired)
	require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.waitlist.Insert(ctx, InsertRequest{Email: "not-an-email"})
	require.ErrorIs(t, err, ErrInvalidContact)

	_, err = svc.waitlist.Insert(ctx, InsertRequest{Phone: "12"})
	require.ErrorIs(t, err, ErrInvalidContact)

	_, err = svc.waitlist.Insert(ctx, InsertRequest{ID: "has space", Email: "a@example.com"})
	require.ErrorIs(t, err, ErrInvalidMemberID)

	n, err := svc.waitlist.Length(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInsertDuplicateReturnsExistingPosition(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 3)

	res, err := svc.waitlist.Insert(ctx, InsertRequest{Email: "M1@EXAMPLE.com"})
	require.NoError(t, err)
	require.Equal(t, InsertResult{ID: "m1", Position: 2, Duplicate: true}, res)

	res, err = svc.waitlist.Insert(ctx, InsertRequest{ID: "m2", Email: "other@example.com"})
	require.NoError(t, err)
	require.Equal(t, InsertResult{ID: "m2", Position: 3, Duplicate: true}, res)

	n, err := svc.waitlist.Length(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	_, found, err := svc.waitlist.Identities().Resolve(ctx, Contact{Email: "other@example.com"})
	require.NoError(t, err)
	require.False(t, found)
}

func TestConcurrentDuplicateInsertCreatesOneMember(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *testServices) {
		ctx := context.Background()
		seedMembers(t, svc.waitlist, 2)

		const callers = 8
		results := make([]InsertResult, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = svc.waitlist.Insert(ctx, InsertRequest{Email: "same@example.com"})
			}(i)
		}
		wg.Wait()

		created := 0
		for i := range results {
			require.NoError(t, errs[i])
			require.Equal(t, 3, results[i].Position)
			require.Equal(t, results[0].ID, results[i].ID)
			if !results[i].Duplicate {
				created++
			}
		}
		require.Equal(t, 1, created)
		require.Len(t, requireOrderIntegrity(t, svc), 3)
	})
}

func TestInsertCapacityExceeded(t *testing.T) {
	svc := newMemoryServices(t, WithMaxLength(2))
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 2)

	_, err := svc.waitlist.Insert(ctx, InsertRequest{Email: "late@example.com"})
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.Equal(t, apperrors.KindCapacity, apperrors.KindOf(err))

	// Duplicates are answered even when the order is full.
	res, err := svc.waitlist.Insert(ctx, InsertRequest{Email: emailFor("m0")})
	require.NoError(t, err)
	require.True(t, res.Duplicate)
}

func TestMoveToScenario(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, svc *testServices) {
		ctx := context.Background()
		seedMembers(t, svc.waitlist, 20)

		pos, err := svc.waitlist.MoveTo(ctx, "m8", 4)
		require.NoError(t, err)
		require.Equal(t, 4, pos)

		pos, err = svc.waitlist.PositionOf(ctx, "m8")
		require.NoError(t, err)
		require.Equal(t, 4, pos)

		ids := requireOrderIntegrity(t, svc)
		require.Equal(t, []string{"m0", "m1", "m2", "m8", "m3"}, ids[:5])
	})
}

func TestMoveToValidation(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 3)

	for _, target := range []int{0, -2, 5} {
		_, err := svc.waitlist.MoveTo(ctx, "m1", target)
		require.ErrorIs(t, err, ErrInvalidPosition, "target %d", target)
	}

	_, err := svc.waitlist.MoveTo(ctx, "ghost", 1)
	require.ErrorIs(t, err, ErrMemberNotFound)

	pos, err := svc.waitlist.MoveTo(ctx, "m0", 4)
	require.NoError(t, err)
	require.Equal(t, 3, pos)

	require.Equal(t, []string{"m1", "m2", "m0"}, requireOrderIntegrity(t, svc))
}

func TestMoveToInsertsAbsentWhenEnabled(t *testing.T) {
	svc := newMemoryServices(t, WithMoveInsertsAbsent(true), WithMaxLength(4))
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 3)

	pos, err := svc.waitlist.MoveTo(ctx, "fresh", 2)
	require.NoError(t, err)
	require.Equal(t, 2, pos)
	require.Equal(t, []string{"m0", "fresh", "m1", "m2"}, requireOrderIntegrity(t, svc))

	_, err = svc.waitlist.MoveTo(ctx, "another", 1)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestMoveToRetriesWhileLeaseHeld(t *testing.T) {
	svc := newMemoryServices(t, WithMoveRetry(2, time.Millisecond))
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 3)

	lease, err := svc.store.AcquireLease(ctx, OrderLease, time.Minute)
	require.NoError(t, err)

	_, err = svc.waitlist.MoveTo(ctx, "m2", 1)
	require.ErrorIs(t, err, ErrMoveContended)
	require.True(t, apperrors.FromError(err).Retryable())

	require.NoError(t, lease.Release(ctx))
	pos, err := svc.waitlist.MoveTo(ctx, "m2", 1)
	require.NoError(t, err)
	require.Equal(t, 1, pos)
}

func TestMoveToWaitsForLeaseRelease(t *testing.T) {
	svc := newMemoryServices(t, WithMoveRetry(5, 20*time.Millisecond))
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 3)

	lease, err := svc.store.AcquireLease(ctx, OrderLease, time.Minute)
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = lease.Release(context.Background())
	}()

	pos, err := svc.waitlist.MoveTo(ctx, "m2", 1)
	require.NoError(t, err)
	require.Equal(t, 1, pos)
}

func TestDeleteReleasesIdentity(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *testServices) {
		ctx := context.Background()
		seedMembers(t, svc.waitlist, 3)

		require.NoError(t, svc.waitlist.Delete(ctx, "m1"))
		require.ErrorIs(t, svc.waitlist.Delete(ctx, "m1"), ErrMemberNotFound)

		pos, err := svc.waitlist.PositionOf(ctx, "m2")
		require.NoError(t, err)
		require.Equal(t, 2, pos)

		_, err = svc.waitlist.Lookup(ctx, Contact{Email: emailFor("m1")})
		require.ErrorIs(t, err, ErrMemberNotFound)

		res, err := svc.waitlist.Insert(ctx, InsertRequest{Email: emailFor("m1")})
		require.NoError(t, err)
		require.False(t, res.Duplicate)
		require.Equal(t, 3, res.Position)

		id, err := svc.waitlist.DeleteByContact(ctx, Contact{Email: emailFor("m0")})
		require.NoError(t, err)
		require.Equal(t, "m0", id)

		_, err = svc.waitlist.DeleteByContact(ctx, Contact{Phone: "+15550000000"})
		require.ErrorIs(t, err, ErrMemberNotFound)

		require.Len(t, requireOrderIntegrity(t, svc), 2)
	})
}

func TestAttachContact(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 2)

	member, err := svc.waitlist.AttachContact(ctx, "m0", Contact{Email: "NEW@example.com", Phone: "+44 20 7946 0000"})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", member.Email)
	require.Equal(t, "+442079460000", member.Phone)

	// The previous email is released.
	_, found, err := svc.waitlist.Identities().Resolve(ctx, Contact{Email: emailFor("m0")})
	require.NoError(t, err)
	require.False(t, found)

	// Attaching an owned value again is a no-op.
	_, err = svc.waitlist.AttachContact(ctx, "m0", Contact{Email: "new@example.com"})
	require.NoError(t, err)

	_, err = svc.waitlist.AttachContact(ctx, "m1", Contact{Phone: "+442079460000"})
	require.ErrorIs(t, err, ErrDuplicateContact)

	_, err = svc.waitlist.AttachContact(ctx, "ghost", Contact{Email: "g@example.com"})
	require.ErrorIs(t, err, ErrMemberNotFound)

	bound, err := svc.waitlist.Identities().Bind(ctx, "m1", ContactEmail, "new@example.com")
	require.NoError(t, err)
	require.False(t, bound)

	requireOrderIntegrity(t, svc)
}

func TestOrderIntegrityUnderConcurrency(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *testServices) {
		ctx := context.Background()
		seedMembers(t, svc.waitlist, 10)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("n%d", i)
				_, err := svc.waitlist.Insert(ctx, InsertRequest{ID: id, Email: emailFor(id)})
				require.NoError(t, err)

				if i%3 == 0 {
					require.NoError(t, svc.waitlist.Delete(ctx, fmt.Sprintf("m%d", i)))
				}
			}(i)
		}
		for _, id := range []string{"m1", "m2", "m4", "m5"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				// Movers may lose the lease to each other; contention is the only acceptable failure.
				_, err := svc.waitlist.MoveTo(ctx, id, 1)
				if err != nil {
					require.ErrorIs(t, err, ErrMoveContended)
				}
			}(id)
		}
		wg.Wait()

		ids := requireOrderIntegrity(t, svc)
		require.Len(t, ids, 16)
	})
}

func TestListWindow(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 5)

	page, total, err := svc.waitlist.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Equal(t, []string{"m1", "m2"}, []string{page[0].ID, page[1].ID})
	require.Equal(t, 2, page[0].Position)

	page, _, err = svc.waitlist.List(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, 5, page[1].Position)
}

func TestEnsureStrategy(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	require.NoError(t, svc.waitlist.EnsureStrategy(ctx))
	require.NoError(t, svc.waitlist.EnsureStrategy(ctx))

	other, err := NewWaitlistService(svc.store, WithOrderStrategy(ordering.NewScore(keyOrder, 0, 0)))
	require.NoError(t, err)
	require.ErrorIs(t, other.EnsureStrategy(ctx), ErrStrategyMismatch)
}

func TestRenumberUnderLease(t *testing.T) {
	svc := newMemoryServices(t, WithOrderStrategy(ordering.NewScore(keyOrder, 0, 0)))
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 4)

	n, err := svc.waitlist.Renumber(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []string{"m0", "m1", "m2", "m3"}, requireOrderIntegrity(t, svc))

	lease, err := svc.store.AcquireLease(ctx, OrderLease, time.Minute)
	require.NoError(t, err)
	defer func() { _ = lease.Release(ctx) }()
	_, err = svc.waitlist.Renumber(ctx)
	require.ErrorIs(t, err, ErrMoveContended)
}
