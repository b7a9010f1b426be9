package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/waitlist/internal/database/testutil"
	"github.com/charlesng35/waitlist/internal/ordering"
	"github.com/charlesng35/waitlist/internal/store"
)

type testServices struct {
	store     *store.Store
	waitlist  *WaitlistService
	signup    *SignupService
	invites   *InviteCodeService
	community *CommunityCodeService
}

func newServices(t *testing.T, st *store.Store, opts ...WaitlistOption) *testServices {
	t.Helper()

	waitlist, err := NewWaitlistService(st, opts...)
	require.NoError(t, err)
	signup, err := NewSignupService(st, waitlist.Order())
	require.NoError(t, err)
	invites, err := NewInviteCodeService(waitlist)
	require.NoError(t, err)
	community, err := NewCommunityCodeService(waitlist)
	require.NoError(t, err)

	return &testServices{store: st, waitlist: waitlist, signup: signup, invites: invites, community: community}
}

func newMemoryServices(t *testing.T, opts ...WaitlistOption) *testServices {
	t.Helper()
	return newServices(t, store.NewMemory(store.WithMaxConflictRetries(500)), opts...)
}

func newDatabaseServices(t *testing.T, opts ...WaitlistOption) *testServices {
	t.Helper()
	st, err := store.NewDatabase(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()), store.WithMaxConflictRetries(500))
	require.NoError(t, err)
	return newServices(t, st, opts...)
}

// forEachStrategy runs fn against the memory store with both order strategies.
func forEachStrategy(t *testing.T, fn func(t *testing.T, svc *testServices)) {
	t.Run(ordering.StrategyList, func(t *testing.T) {
		fn(t, newMemoryServices(t))
	})
	t.Run(ordering.StrategyScore, func(t *testing.T) {
		fn(t, newMemoryServices(t, WithOrderStrategy(ordering.NewScore(keyOrder, 4, 1))))
	})
}

// forEachBackend runs fn against the memory and SQL stores.
func forEachBackend(t *testing.T, fn func(t *testing.T, svc *testServices)) {
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryServices(t)) })
	t.Run("database", func(t *testing.T) { fn(t, newDatabaseServices(t)) })
}

func emailFor(id string) string { return id + "@example.com" }

func seedMembers(t *testing.T, w *WaitlistService, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("m%d", i)
		res, err := w.Insert(context.Background(), InsertRequest{ID: id, Email: emailFor(id)})
		require.NoError(t, err)
		require.False(t, res.Duplicate)
		require.Equal(t, i+1, res.Position)
		ids[i] = id
	}
	return ids
}

// requireOrderIntegrity checks the order is a duplicate-free permutation of the
// members that still have records, and every binding points at its owner.
func requireOrderIntegrity(t *testing.T, svc *testServices) []string {
	t.Helper()
	ctx := context.Background()

	ids, err := svc.waitlist.OrderedIDs(ctx)
	require.NoError(t, err)

	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "id %s appears twice", id)
		seen[id] = struct{}{}

		pos, err := svc.waitlist.PositionOf(ctx, id)
		require.NoError(t, err)
		require.Equal(t, i+1, pos)

		member, found, err := svc.waitlist.Records().Get(ctx, id)
		require.NoError(t, err)
		require.True(t, found, "id %s has no record", id)
		if member.Email != "" {
			owner, ok, err := svc.waitlist.Identities().Resolve(ctx, Contact{Email: member.Email})
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, id, owner)
		}
	}

	require.NoError(t, svc.store.View(ctx, func(tx *store.Tx) error {
		emails, err := tx.HGetAll(keyEmailIndex)
		if err != nil {
			return err
		}
		for email, owner := range emails {
			_, live := seen[owner]
			require.True(t, live, "email %s bound to dead member %s", email, owner)
		}
		return nil
	}))
	return ids
}
