package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/waitlist/internal/models"
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestInviteCodeScenario(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 1)

	invite, err := svc.invites.Create(ctx, "m0", 3)
	require.NoError(t, err)
	require.Len(t, invite.Code, 8)
	require.Equal(t, "m0", invite.CreatorID)

	res, err := svc.invites.Use(ctx, invite.Code, InsertRequest{Email: "x@example.com"}, 0)
	require.NoError(t, err)
	require.Equal(t, 2, res.Position)
	require.Equal(t, 1, res.CreatorPosition)

	pos, err := svc.waitlist.PositionOf(ctx, "m0")
	require.NoError(t, err)
	require.Equal(t, 1, pos)

	stored, err := svc.invites.Get(ctx, invite.Code)
	require.NoError(t, err)
	require.True(t, stored.Used())
	require.Equal(t, res.ID, stored.UsedBy)
	require.NotNil(t, stored.UsedAt)
}

func TestInviteCodeBumpUsesLargerOfRequestedAndMinimum(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, svc *testServices) {
		ctx := context.Background()
		seedMembers(t, svc.waitlist, 10)

		low, err := svc.invites.Create(ctx, "m7", 2)
		require.NoError(t, err)

		preview, ok, err := svc.invites.Preview(ctx, low.Code)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 6, preview)

		res, err := svc.invites.Use(ctx, low.Code, InsertRequest{Email: "a@example.com"}, 5)
		require.NoError(t, err)
		require.Equal(t, 3, res.CreatorPosition)
		require.Equal(t, 11, res.Position)

		high, err := svc.invites.Create(ctx, "m9", 4)
		require.NoError(t, err)
		res, err = svc.invites.Use(ctx, high.Code, InsertRequest{Email: "b@example.com"}, 1)
		require.NoError(t, err)
		require.Equal(t, 6, res.CreatorPosition)

		ids := requireOrderIntegrity(t, svc)
		require.Len(t, ids, 12)
		require.Equal(t, "m7", ids[2])
		require.Equal(t, "m9", ids[5])

		_, ok, err = svc.invites.Preview(ctx, high.Code)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestInviteCodeCreateRules(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 2)

	_, err := svc.invites.Create(ctx, "ghost", 1)
	require.ErrorIs(t, err, ErrMemberNotFound)

	_, err = svc.invites.Create(ctx, "m0", -1)
	require.ErrorIs(t, err, ErrInvalidBump)

	for i := 0; i < defaultInviteMaxPerCreator; i++ {
		_, err := svc.invites.Create(ctx, "m1", 1)
		require.NoError(t, err)
	}
	_, err = svc.invites.Create(ctx, "m1", 1)
	require.ErrorIs(t, err, ErrInviteLimitReached)

	codes, err := svc.invites.ListByCreator(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, codes, defaultInviteMaxPerCreator)

	// A used code no longer counts against the creator.
	_, err = svc.invites.Use(ctx, codes[0].Code, InsertRequest{Email: "new@example.com"}, 0)
	require.NoError(t, err)
	_, err = svc.invites.Create(ctx, "m1", 1)
	require.NoError(t, err)

	_, err = svc.signup.SetCutoff(ctx, CutoffEverybody)
	require.NoError(t, err)
	_, err = svc.signup.MarkSignedUp(ctx, "m0")
	require.NoError(t, err)
	_, err = svc.invites.Create(ctx, "m0", 1)
	require.ErrorIs(t, err, ErrSignedUpCreatorForbidden)
}

func TestInviteCodeUseFailuresLeaveNoTrace(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 3)

	_, err := svc.invites.Use(ctx, "NOPE1234", InsertRequest{Email: "a@example.com"}, 0)
	require.ErrorIs(t, err, ErrInviteCodeInvalid)

	invite, err := svc.invites.Create(ctx, "m2", 1)
	require.NoError(t, err)

	_, err = svc.invites.Use(ctx, invite.Code, InsertRequest{Email: emailFor("m0")}, 0)
	require.ErrorIs(t, err, ErrDuplicateContact)

	_, err = svc.invites.Use(ctx, invite.Code, InsertRequest{}, 0)
	require.ErrorIs(t, err, ErrContactRequired)

	stored, err := svc.invites.Get(ctx, invite.Code)
	require.NoError(t, err)
	require.False(t, stored.Used())
	require.Equal(t, []string{"m0", "m1", "m2"}, requireOrderIntegrity(t, svc))

	require.NoError(t, svc.waitlist.Delete(ctx, "m2"))
	_, err = svc.invites.Use(ctx, invite.Code, InsertRequest{Email: "a@example.com"}, 0)
	require.ErrorIs(t, err, ErrCreatorNotFound)
	require.Len(t, requireOrderIntegrity(t, svc), 2)
}

func TestInviteCodeCreatorSignedUp(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 3)

	invite, err := svc.invites.Create(ctx, "m0", 1)
	require.NoError(t, err)

	_, err = svc.signup.SetCutoff(ctx, 1)
	require.NoError(t, err)
	marked, err := svc.signup.MarkSignedUp(ctx, "m0")
	require.NoError(t, err)
	require.True(t, marked)

	_, ok, err := svc.invites.Preview(ctx, invite.Code)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.invites.Use(ctx, invite.Code, InsertRequest{Email: "a@example.com"}, 0)
	require.ErrorIs(t, err, ErrCreatorSignedUp)
}

// The creator bump is a reward and may carry the creator across the signup
// cutoff, which a direct move may not.
func TestInviteCodeBumpMayCrossCutoff(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 6)

	_, err := svc.signup.SetCutoff(ctx, 3)
	require.NoError(t, err)
	_, err = svc.waitlist.MoveTo(ctx, "m5", 2)
	require.ErrorIs(t, err, ErrForbiddenCutoffBoundary)

	invite, err := svc.invites.Create(ctx, "m5", 4)
	require.NoError(t, err)
	res, err := svc.invites.Use(ctx, invite.Code, InsertRequest{ID: "new", Email: "new@example.com"}, 0)
	require.NoError(t, err)
	require.Equal(t, 2, res.CreatorPosition)
	require.Equal(t, 7, res.Position)

	ids, err := svc.waitlist.OrderedIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"m0", "m5", "m1", "m2", "m3", "m4", "new"}, ids)

	state, err := svc.signup.State(ctx, "m5")
	require.NoError(t, err)
	require.Equal(t, models.SignupEligible, state)
	state, err = svc.signup.State(ctx, "m2")
	require.NoError(t, err)
	require.Equal(t, models.SignupNotEligible, state)
}

func TestInviteCodeUsedExactlyOnceUnderConcurrency(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *testServices) {
		ctx := context.Background()
		seedMembers(t, svc.waitlist, 8)

		invite, err := svc.invites.Create(ctx, "m6", 2)
		require.NoError(t, err)

		const callers = 10
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.invites.Use(ctx, invite.Code, InsertRequest{Email: fmt.Sprintf("user%d@example.com", i)}, 0)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.True(t, errors.Is(err, ErrInviteCodeUsed), "unexpected error %v", err)
		}
		require.Equal(t, 1, succeeded)

		pos, err := svc.waitlist.PositionOf(ctx, "m6")
		require.NoError(t, err)
		require.Equal(t, 5, pos)
		require.Len(t, requireOrderIntegrity(t, svc), 9)
	})
}

func TestInviteCodeGenerationExhausted(t *testing.T) {
	st := newMemoryServices(t).store
	waitlist, err := NewWaitlistService(st)
	require.NoError(t, err)
	invites, err := NewInviteCodeService(waitlist, WithCodeRandom(zeroReader{}), WithGenerateAttempts(3), WithInviteCodeLength(4))
	require.NoError(t, err)
	ctx := context.Background()
	seedMembers(t, waitlist, 1)

	invite, err := invites.Create(ctx, "m0", 1)
	require.NoError(t, err)
	require.Equal(t, "AAAA", invite.Code)

	_, err = invites.Create(ctx, "m0", 1)
	require.ErrorIs(t, err, ErrCodeGenerationExhausted)
}
