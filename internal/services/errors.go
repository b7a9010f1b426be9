package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/charlesng35/waitlist/internal/ordering"
	"github.com/charlesng35/waitlist/internal/store"
	apperrors "github.com/charlesng35/waitlist/pkg/errors"
)

var (
	// Waitlist
	ErrMemberNotFound   = apperrors.New("MEMBER_NOT_FOUND", "Member not found", http.StatusNotFound)
	ErrInvalidPosition  = apperrors.New("INVALID_POSITION", "Position is outside the waitlist", http.StatusBadRequest)
	ErrContactRequired  = apperrors.New("CONTACT_REQUIRED", "An email or phone number is required", http.StatusBadRequest)
	ErrInvalidContact   = apperrors.New("INVALID_CONTACT", "Email or phone number is malformed", http.StatusBadRequest)
	ErrInvalidMemberID  = apperrors.New("INVALID_MEMBER_ID", "Member id is malformed", http.StatusBadRequest)
	ErrDuplicateContact = apperrors.New("DUPLICATE_CONTACT", "Email or phone number already belongs to another member", http.StatusConflict)
	ErrCapacityExceeded = apperrors.NewKind(apperrors.KindCapacity, "CAPACITY_EXCEEDED", "The waitlist is full", http.StatusConflict)
	ErrMoveContended    = apperrors.New("MOVE_CONTENDED", "The waitlist is being reordered, try again", http.StatusConflict)
	ErrStrategyMismatch = apperrors.New("ORDER_STRATEGY_MISMATCH", "Stored order uses a different strategy", http.StatusInternalServerError)

	// Signup gate
	ErrForbiddenSignedUp       = apperrors.New("FORBIDDEN_SIGNED_UP", "Signed-up members cannot be moved or deleted", http.StatusForbidden)
	ErrForbiddenCutoffBoundary = apperrors.New("FORBIDDEN_CUTOFF_BOUNDARY", "Moves may not cross the signup cutoff", http.StatusForbidden)
	ErrCutoffInvalid           = apperrors.New("CUTOFF_INVALID", "Cutoff must be -1, 0 or a positive position", http.StatusBadRequest)
	ErrCutoffDecrease          = apperrors.New("CUTOFF_DECREASE", "The signup cutoff may only widen", http.StatusForbidden)

	// Invite codes
	ErrInviteCodeInvalid        = apperrors.New("INVITE_CODE_INVALID", "Invite code does not exist", http.StatusNotFound)
	ErrInviteCodeUsed           = apperrors.New("INVITE_CODE_USED", "Invite code has already been used", http.StatusConflict)
	ErrCreatorNotFound          = apperrors.New("CREATOR_NOT_FOUND", "Invite code creator is no longer on the waitlist", http.StatusNotFound)
	ErrCreatorSignedUp          = apperrors.New("CREATOR_SIGNED_UP", "Invite code creator has already signed up", http.StatusForbidden)
	ErrSignedUpCreatorForbidden = apperrors.New("SIGNED_UP_CREATOR_FORBIDDEN", "Signed-up members cannot create invite codes", http.StatusForbidden)
	ErrInviteLimitReached       = apperrors.New("INVITE_LIMIT_REACHED", "Creator has reached the outstanding invite code limit", http.StatusConflict)
	ErrInvalidBump              = apperrors.New("INVALID_BUMP", "Bump must not be negative", http.StatusBadRequest)
	ErrCodeGenerationExhausted  = apperrors.New("CODE_GENERATION_EXHAUSTED", "Could not allocate a unique code", http.StatusServiceUnavailable)

	// Community codes
	ErrCommunityCodeNotFound = apperrors.New("COMMUNITY_CODE_NOT_FOUND", "Community code does not exist", http.StatusNotFound)
	ErrCommunityCodeExists   = apperrors.New("COMMUNITY_CODE_EXISTS", "Community code already exists", http.StatusConflict)
	ErrInvalidCode           = apperrors.New("INVALID_CODE", "Code is malformed", http.StatusBadRequest)
	ErrInvalidMaxUses        = apperrors.New("INVALID_MAX_USES", "max_uses must be at least 1", http.StatusBadRequest)
	ErrUsageLimitReached     = apperrors.New("USAGE_LIMIT_REACHED", "Community code has no uses left", http.StatusConflict)
	ErrAlreadyUsedByIdentity = apperrors.New("ALREADY_USED_BY_IDENTITY", "This identity has already used the community code", http.StatusConflict)

	// Store
	ErrStoreUnavailable = apperrors.New("STORE_UNAVAILABLE", "Waitlist storage is temporarily unavailable", http.StatusServiceUnavailable)
	ErrStoreContention  = apperrors.New("STORE_CONTENTION", "Too many concurrent updates, try again", http.StatusConflict)
)

// translateStoreError maps store failures onto the error taxonomy. AppErrors
// returned from inside a transaction pass through untouched.
func translateStoreError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, ordering.ErrPositionOutOfRange):
		return ErrInvalidPosition.WithInternal(err)
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrLeaseBusy):
		return ErrStoreContention.WithInternal(err)
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrClosed),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrStoreUnavailable.WithInternal(err)
	default:
		return apperrors.ErrInternalServer.WithInternal(err)
	}
}

// resultLabel is the metrics label for an operation outcome.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.KindOf(err))
}
