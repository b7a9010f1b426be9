package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/waitlist/internal/models"
	"github.com/charlesng35/waitlist/internal/store"
	"github.com/charlesng35/waitlist/pkg/crypto"
	"github.com/charlesng35/waitlist/pkg/logger"
	"github.com/charlesng35/waitlist/pkg/metrics"
	"github.com/charlesng35/waitlist/pkg/validator"
)

const (
	defaultInviteCodeLength       = 8
	defaultInviteMaxPerCreator    = 5
	defaultInviteGenerateAttempts = 50
	defaultInviteMinBump          = 1

	inviteFieldCode      = "code"
	inviteFieldCreator   = "creator_id"
	inviteFieldMinBump   = "min_bump"
	inviteFieldUsedBy    = "used_by"
	inviteFieldUsedAt    = "used_at"
	inviteFieldCreatedAt = "created_at"
)

// InviteCodeOption customises InviteCodeService behaviour.
type InviteCodeOption func(*InviteCodeService)

// WithInviteCodeLength sets the generated code length.
func WithInviteCodeLength(n int) InviteCodeOption {
	return func(s *InviteCodeService) {
		if n > 0 {
			s.codeLength = n
		}
	}
}

// WithInviteAlphabet sets the symbols codes are drawn from.
func WithInviteAlphabet(alphabet string) InviteCodeOption {
	return func(s *InviteCodeService) {
		if alphabet = strings.ToUpper(strings.TrimSpace(alphabet)); len(alphabet) >= 2 {
			s.alphabet = alphabet
		}
	}
}

// WithMaxCodesPerCreator caps outstanding codes per creator. Zero disables the cap.
func WithMaxCodesPerCreator(n int) InviteCodeOption {
	return func(s *InviteCodeService) {
		if n >= 0 {
			s.maxPerCreator = n
		}
	}
}

// WithGenerateAttempts bounds collision retries during generation.
func WithGenerateAttempts(n int) InviteCodeOption {
	return func(s *InviteCodeService) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithDefaultMinBump sets the bump used when a caller omits one.
func WithDefaultMinBump(n int) InviteCodeOption {
	return func(s *InviteCodeService) {
		if n >= 0 {
			s.defaultMinBump = n
		}
	}
}

// WithCodeRandom replaces the randomness source, primarily for testing.
func WithCodeRandom(r io.Reader) InviteCodeOption {
	return func(s *InviteCodeService) {
		s.random = r
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteCodeOption {
	return func(s *InviteCodeService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InviteCodeService issues single-use codes tied to a creator and redeems them
// by inserting the new member and bumping the creator in one transaction.
type InviteCodeService struct {
	store    *store.Store
	waitlist *WaitlistService

	codeLength     int
	alphabet       string
	maxPerCreator  int
	attempts       int
	defaultMinBump int
	random         io.Reader
	now            func() time.Time
	log            *zap.Logger
}

// NewInviteCodeService constructs an InviteCodeService on top of waitlist.
func NewInviteCodeService(waitlist *WaitlistService, opts ...InviteCodeOption) (*InviteCodeService, error) {
	if waitlist == nil {
		return nil, errors.New("invite code service: waitlist is required")
	}

	service := &InviteCodeService{
		store:          waitlist.store,
		waitlist:       waitlist,
		codeLength:     defaultInviteCodeLength,
		alphabet:       crypto.CodeAlphabet,
		maxPerCreator:  defaultInviteMaxPerCreator,
		attempts:       defaultInviteGenerateAttempts,
		defaultMinBump: defaultInviteMinBump,
		now:            time.Now,
		log:            logger.WithModule("invites"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// DefaultMinBump returns the bump applied when Create is called without one.
func (s *InviteCodeService) DefaultMinBump() int { return s.defaultMinBump }

// NormaliseCode trims and upper-cases a code.
func NormaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create issues a new code for creatorID.
func (s *InviteCodeService) Create(ctx context.Context, creatorID string, minBump int) (invite models.InviteCode, err error) {
	defer func() { metrics.Operations.WithLabelValues("invite_create", resultLabel(err)).Inc() }()

	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return models.InviteCode{}, ErrInvalidMemberID
	}
	if minBump < 0 {
		return models.InviteCode{}, ErrInvalidBump
	}

	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		pos, err := s.waitlist.order.PositionOf(tx, creatorID)
		if err != nil {
			return err
		}
		if pos == 0 {
			return ErrMemberNotFound
		}
		signed, err := isSignedUpTx(tx, creatorID)
		if err != nil {
			return err
		}
		if signed {
			return ErrSignedUpCreatorForbidden
		}
		if s.maxPerCreator > 0 {
			outstanding, err := tx.SCard(creatorInvitesKey(creatorID))
			if err != nil {
				return err
			}
			if outstanding >= s.maxPerCreator {
				return ErrInviteLimitReached
			}
		}

		code, err := s.reserveTx(tx)
		if err != nil {
			return err
		}
		invite = models.InviteCode{
			Code:      code,
			CreatorID: creatorID,
			MinBump:   minBump,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.HSet(inviteKey(code), map[string]string{
			inviteFieldCode:      code,
			inviteFieldCreator:   creatorID,
			inviteFieldMinBump:   strconv.Itoa(minBump),
			inviteFieldCreatedAt: invite.CreatedAt.Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}
		_, err = tx.SAdd(creatorInvitesKey(creatorID), code)
		return err
	})
	if err != nil {
		return models.InviteCode{}, translateStoreError(err)
	}

	s.log.Info("invite code created", zap.String("creator_id", creatorID), zap.String("code", invite.Code))
	return invite, nil
}

// reserveTx draws codes until one is unused in this snapshot and returns it.
func (s *InviteCodeService) reserveTx(tx *store.Tx) (string, error) {
	for attempt := 0; attempt < s.attempts; attempt++ {
		code, err := crypto.GenerateCode(s.random, s.alphabet, s.codeLength)
		if err != nil {
			return "", err
		}
		exists, err := tx.Exists(inviteKey(code))
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeGenerationExhausted
}

// InviteUseResult describes a redeemed code.
type InviteUseResult struct {
	ID              string `json:"id"`
	Position        int    `json:"position"`
	CreatorID       string `json:"creator_id"`
	CreatorPosition int    `json:"creator_position"`
}

// Use redeems code for a new member. Marking the code used, inserting the
// member and moving the creator forward by max(requestedBump, min bump) commit
// together or not at all.
func (s *InviteCodeService) Use(ctx context.Context, code string, req InsertRequest, requestedBump int) (result InviteUseResult, err error) {
	defer func() { metrics.CodeUses.WithLabelValues("invite", resultLabel(err)).Inc() }()

	code = NormaliseCode(code)
	if !validator.IsCode(code) {
		return InviteUseResult{}, ErrInvalidCode
	}
	if requestedBump < 0 {
		return InviteUseResult{}, ErrInvalidBump
	}
	req, contact, err := req.prepare()
	if err != nil {
		return InviteUseResult{}, err
	}
	if req.ID == "" {
		req.ID = s.waitlist.newID()
	}

	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		invite, found, err := getInviteTx(tx, code)
		if err != nil {
			return err
		}
		if !found {
			return ErrInviteCodeInvalid
		}
		if invite.Used() {
			return ErrInviteCodeUsed
		}

		order := s.waitlist.order
		creatorPos, err := order.PositionOf(tx, invite.CreatorID)
		if err != nil {
			return err
		}
		if creatorPos == 0 {
			return ErrCreatorNotFound
		}
		signed, err := isSignedUpTx(tx, invite.CreatorID)
		if err != nil {
			return err
		}
		if signed {
			return ErrCreatorSignedUp
		}

		inserted, err := s.waitlist.insertTx(tx, req, contact)
		if err != nil {
			return err
		}
		if inserted.Duplicate {
			return ErrDuplicateContact
		}

		// The bump bypasses the cutoff-boundary rule; only signed-up creators are refused.
		target := bumpedPosition(creatorPos, requestedBump, invite.MinBump)
		if target != creatorPos {
			if _, err := order.MoveTo(tx, invite.CreatorID, target); err != nil {
				return err
			}
		}

		if err := tx.HSet(inviteKey(code), map[string]string{
			inviteFieldUsedBy: inserted.ID,
			inviteFieldUsedAt: s.now().UTC().Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}
		if _, err := tx.SRem(creatorInvitesKey(invite.CreatorID), code); err != nil {
			return err
		}

		newPos, err := order.PositionOf(tx, inserted.ID)
		if err != nil {
			return err
		}
		result = InviteUseResult{
			ID:              inserted.ID,
			Position:        newPos,
			CreatorID:       invite.CreatorID,
			CreatorPosition: target,
		}
		return nil
	})
	if err != nil {
		return InviteUseResult{}, translateStoreError(err)
	}

	s.log.Info("invite code used",
		zap.String("code", code),
		zap.String("member_id", result.ID),
		zap.String("creator_id", result.CreatorID),
		zap.Int("creator_position", result.CreatorPosition),
	)
	return result, nil
}

// Preview returns the creator's position after a use with the code's own
// minimum bump. ok is false whenever Use would refuse the code: it is unknown
// or used, or its creator has left the order or signed up.
func (s *InviteCodeService) Preview(ctx context.Context, code string) (pos int, ok bool, err error) {
	code = NormaliseCode(code)
	err = s.store.View(ctx, func(tx *store.Tx) error {
		invite, found, err := getInviteTx(tx, code)
		if err != nil || !found || invite.Used() {
			return err
		}
		creatorPos, err := s.waitlist.order.PositionOf(tx, invite.CreatorID)
		if err != nil || creatorPos == 0 {
			return err
		}
		signed, err := isSignedUpTx(tx, invite.CreatorID)
		if err != nil || signed {
			return err
		}
		pos, ok = bumpedPosition(creatorPos, 0, invite.MinBump), true
		return nil
	})
	if err != nil {
		return 0, false, translateStoreError(err)
	}
	return pos, ok, nil
}

// Get returns the stored code.
func (s *InviteCodeService) Get(ctx context.Context, code string) (models.InviteCode, error) {
	code = NormaliseCode(code)
	var (
		invite models.InviteCode
		found  bool
	)
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		invite, found, err = getInviteTx(tx, code)
		return err
	})
	if err != nil {
		return models.InviteCode{}, translateStoreError(err)
	}
	if !found {
		return models.InviteCode{}, ErrInviteCodeInvalid
	}
	return invite, nil
}

// ListByCreator returns the creator's outstanding codes ordered by code.
func (s *InviteCodeService) ListByCreator(ctx context.Context, creatorID string) ([]models.InviteCode, error) {
	var invites []models.InviteCode
	err := s.store.View(ctx, func(tx *store.Tx) error {
		codes, err := tx.SMembers(creatorInvitesKey(creatorID))
		if err != nil {
			return err
		}
		for _, code := range codes {
			invite, found, err := getInviteTx(tx, code)
			if err != nil {
				return err
			}
			if found {
				invites = append(invites, invite)
			}
		}
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err)
	}
	sort.Slice(invites, func(i, j int) bool { return invites[i].Code < invites[j].Code })
	return invites, nil
}

func bumpedPosition(current, requested, minimum int) int {
	bump := requested
	if minimum > bump {
		bump = minimum
	}
	if target := current - bump; target > 1 {
		return target
	}
	return 1
}

func getInviteTx(tx *store.Tx, code string) (models.InviteCode, bool, error) {
	fields, err := tx.HGetAll(inviteKey(code))
	if err != nil {
		return models.InviteCode{}, false, err
	}
	if fields[inviteFieldCode] == "" {
		return models.InviteCode{}, false, nil
	}

	invite := models.InviteCode{
		Code:      fields[inviteFieldCode],
		CreatorID: fields[inviteFieldCreator],
		UsedBy:    fields[inviteFieldUsedBy],
	}
	invite.MinBump, _ = strconv.Atoi(fields[inviteFieldMinBump])
	invite.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields[inviteFieldCreatedAt])
	if raw := fields[inviteFieldUsedAt]; raw != "" {
		if usedAt, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			invite.UsedAt = &usedAt
		}
	}
	return invite, true, nil
}
