package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/waitlist/internal/models"
	apperrors "github.com/charlesng35/waitlist/pkg/errors"
)

func TestSetCutoffClampsAndDefaults(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()

	cutoff, err := svc.signup.Cutoff(ctx)
	require.NoError(t, err)
	require.Equal(t, CutoffNobody, cutoff)

	// A positive cutoff on an empty order admits nobody.
	stored, err := svc.signup.SetCutoff(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, CutoffNobody, stored)

	seedMembers(t, svc.waitlist, 4)
	stored, err = svc.signup.SetCutoff(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 4, stored)

	_, err = svc.signup.SetCutoff(ctx, -2)
	require.ErrorIs(t, err, ErrCutoffInvalid)
}

func TestSetCutoffOnlyWidens(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 5)

	_, err := svc.signup.SetCutoff(ctx, 3)
	require.NoError(t, err)

	_, err = svc.signup.SetCutoff(ctx, 2)
	require.ErrorIs(t, err, ErrCutoffDecrease)
	require.Equal(t, apperrors.KindPolicy, apperrors.KindOf(err))

	_, err = svc.signup.SetCutoff(ctx, CutoffNobody)
	require.ErrorIs(t, err, ErrCutoffDecrease)

	stored, err := svc.signup.SetCutoff(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 3, stored)

	stored, err = svc.signup.SetCutoff(ctx, CutoffEverybody)
	require.NoError(t, err)
	require.Equal(t, CutoffEverybody, stored)

	_, err = svc.signup.SetCutoff(ctx, 5)
	require.ErrorIs(t, err, ErrCutoffDecrease)
}

func TestMarkSignedUp(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 4)

	marked, err := svc.signup.MarkSignedUp(ctx, "m0")
	require.NoError(t, err)
	require.False(t, marked)

	_, err = svc.signup.SetCutoff(ctx, 2)
	require.NoError(t, err)

	can, err := svc.signup.CanSignUp(ctx, "m1")
	require.NoError(t, err)
	require.True(t, can)

	marked, err = svc.signup.MarkSignedUp(ctx, "m1")
	require.NoError(t, err)
	require.True(t, marked)

	marked, err = svc.signup.MarkSignedUp(ctx, "m1")
	require.NoError(t, err)
	require.False(t, marked)

	marked, err = svc.signup.MarkSignedUp(ctx, "m3")
	require.NoError(t, err)
	require.False(t, marked)

	_, err = svc.signup.MarkSignedUp(ctx, "ghost")
	require.ErrorIs(t, err, ErrMemberNotFound)

	state, err := svc.signup.State(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, models.SignupSignedUp, state)

	state, err = svc.signup.State(ctx, "m0")
	require.NoError(t, err)
	require.Equal(t, models.SignupEligible, state)

	state, err = svc.signup.State(ctx, "m2")
	require.NoError(t, err)
	require.Equal(t, models.SignupNotEligible, state)

	signed, err := svc.signup.IsSignedUp(ctx, "m1")
	require.NoError(t, err)
	require.True(t, signed)

	status, err := svc.waitlist.Get(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, models.SignupSignedUp, status.Signup)
}

func TestSignedUpMemberIsImmutableForEveryCutoff(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 6)

	_, err := svc.signup.SetCutoff(ctx, 1)
	require.NoError(t, err)
	marked, err := svc.signup.MarkSignedUp(ctx, "m0")
	require.NoError(t, err)
	require.True(t, marked)

	for _, cutoff := range []int{1, 3, 6, CutoffEverybody} {
		_, err := svc.signup.SetCutoff(ctx, cutoff)
		require.NoError(t, err)

		require.ErrorIs(t, svc.waitlist.Delete(ctx, "m0"), ErrForbiddenSignedUp, "cutoff %d", cutoff)
		_, err = svc.waitlist.DeleteByContact(ctx, Contact{Email: emailFor("m0")})
		require.ErrorIs(t, err, ErrForbiddenSignedUp, "cutoff %d", cutoff)
		for _, target := range []int{1, 4, 7} {
			_, err = svc.waitlist.MoveTo(ctx, "m0", target)
			require.ErrorIs(t, err, ErrForbiddenSignedUp, "cutoff %d target %d", cutoff, target)
		}
	}

	require.Len(t, requireOrderIntegrity(t, svc), 6)
}

func TestMoveCannotCrossCutoff(t *testing.T) {
	svc := newMemoryServices(t)
	ctx := context.Background()
	seedMembers(t, svc.waitlist, 6)

	_, err := svc.signup.SetCutoff(ctx, 2)
	require.NoError(t, err)

	// Eligible members stay put.
	_, err = svc.waitlist.MoveTo(ctx, "m1", 5)
	require.ErrorIs(t, err, ErrForbiddenCutoffBoundary)

	// Nobody moves into the eligible range.
	_, err = svc.waitlist.MoveTo(ctx, "m4", 2)
	require.ErrorIs(t, err, ErrForbiddenCutoffBoundary)

	// Moves entirely behind the cutoff are allowed.
	pos, err := svc.waitlist.MoveTo(ctx, "m5", 3)
	require.NoError(t, err)
	require.Equal(t, 3, pos)

	require.Equal(t, []string{"m0", "m1", "m5", "m2", "m3", "m4"}, requireOrderIntegrity(t, svc))
}
