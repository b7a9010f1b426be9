package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/waitlist/internal/models"
	"github.com/charlesng35/waitlist/internal/store"
	"github.com/charlesng35/waitlist/pkg/logger"
	"github.com/charlesng35/waitlist/pkg/metrics"
	"github.com/charlesng35/waitlist/pkg/validator"
)

const (
	communityFieldCode      = "code"
	communityFieldMaxUses   = "max_uses"
	communityFieldUses      = "current_uses"
	communityFieldCreatedAt = "created_at"
)

// CommunityCodeService manages usage-capped multi-use codes. Each identity may
// use a code once; a use by a live member signs that member up.
type CommunityCodeService struct {
	store    *store.Store
	waitlist *WaitlistService
	now      func() time.Time
	log      *zap.Logger
}

// CommunityCodeOption customises CommunityCodeService behaviour.
type CommunityCodeOption func(*CommunityCodeService)

// WithCommunityClock injects a custom clock primarily for testing.
func WithCommunityClock(clock func() time.Time) CommunityCodeOption {
	return func(s *CommunityCodeService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewCommunityCodeService constructs a CommunityCodeService on top of waitlist.
func NewCommunityCodeService(waitlist *WaitlistService, opts ...CommunityCodeOption) (*CommunityCodeService, error) {
	if waitlist == nil {
		return nil, errors.New("community code service: waitlist is required")
	}
	service := &CommunityCodeService{
		store:    waitlist.store,
		waitlist: waitlist,
		now:      time.Now,
		log:      logger.WithModule("community"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create registers code with a usage ceiling of maxUses.
func (s *CommunityCodeService) Create(ctx context.Context, code string, maxUses int) (community models.CommunityCode, err error) {
	defer func() { metrics.Operations.WithLabelValues("community_create", resultLabel(err)).Inc() }()

	code = NormaliseCode(code)
	if !validator.IsCode(code) {
		return models.CommunityCode{}, ErrInvalidCode
	}
	if maxUses < 1 {
		return models.CommunityCode{}, ErrInvalidMaxUses
	}

	community = models.CommunityCode{Code: code, MaxUses: maxUses, CreatedAt: s.now().UTC()}
	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		exists, err := tx.Exists(communityKey(code))
		if err != nil {
			return err
		}
		if exists {
			return ErrCommunityCodeExists
		}
		return tx.HSet(communityKey(code), map[string]string{
			communityFieldCode:      code,
			communityFieldMaxUses:   strconv.Itoa(maxUses),
			communityFieldUses:      "0",
			communityFieldCreatedAt: community.CreatedAt.Format(time.RFC3339Nano),
		})
	})
	if err != nil {
		return models.CommunityCode{}, translateStoreError(err)
	}

	s.log.Info("community code created", zap.String("code", code), zap.Int("max_uses", maxUses))
	return community, nil
}

// Get returns the stored code.
func (s *CommunityCodeService) Get(ctx context.Context, code string) (models.CommunityCode, error) {
	code = NormaliseCode(code)
	var (
		community models.CommunityCode
		found     bool
	)
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		community, found, err = getCommunityTx(tx, code)
		return err
	})
	if err != nil {
		return models.CommunityCode{}, translateStoreError(err)
	}
	if !found {
		return models.CommunityCode{}, ErrCommunityCodeNotFound
	}
	return community, nil
}

// CommunityUseResult describes an accepted use.
type CommunityUseResult struct {
	Code        string `json:"code"`
	CurrentUses int    `json:"current_uses"`
	Remaining   int    `json:"remaining"`
	MemberID    string `json:"member_id,omitempty"`
	SignedUp    bool   `json:"signed_up"`
}

// Use counts one use of code by contact. The counter is incremented and
// checked against the ceiling; an increment past it is compensated in the same
// transaction and reported as ErrUsageLimitReached.
func (s *CommunityCodeService) Use(ctx context.Context, code string, contact Contact) (result CommunityUseResult, err error) {
	defer func() { metrics.CodeUses.WithLabelValues("community", resultLabel(err)).Inc() }()

	code = NormaliseCode(code)
	if !validator.IsCode(code) {
		return CommunityUseResult{}, ErrInvalidCode
	}
	contact, err = contact.Normalise()
	if err != nil {
		return CommunityUseResult{}, err
	}
	if contact.Empty() {
		return CommunityUseResult{}, ErrContactRequired
	}
	identities := contact.identities()

	var outcome error
	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		outcome = nil
		result = CommunityUseResult{Code: code}

		community, found, err := getCommunityTx(tx, code)
		if err != nil {
			return err
		}
		if !found {
			return ErrCommunityCodeNotFound
		}
		for _, identity := range identities {
			used, err := tx.SIsMember(communityUsedKey(code), identity)
			if err != nil {
				return err
			}
			if used {
				return ErrAlreadyUsedByIdentity
			}
		}

		uses, err := tx.HIncrBy(communityKey(code), communityFieldUses, 1)
		if err != nil {
			return err
		}
		if int(uses) > community.MaxUses {
			if _, err := tx.HIncrBy(communityKey(code), communityFieldUses, -1); err != nil {
				return err
			}
			outcome = ErrUsageLimitReached
			return nil
		}

		if _, err := tx.SAdd(communityUsedKey(code), identities...); err != nil {
			return err
		}
		result.CurrentUses = int(uses)
		result.Remaining = community.MaxUses - int(uses)

		id, found, err := resolveTx(tx, contact)
		if err != nil || !found {
			return err
		}
		pos, err := s.waitlist.order.PositionOf(tx, id)
		if err != nil || pos == 0 {
			return err
		}
		result.MemberID = id
		if _, err := tx.SAdd(keySignedUp, id); err != nil {
			return err
		}
		result.SignedUp = true
		return nil
	})
	if err != nil {
		return CommunityUseResult{}, translateStoreError(err)
	}
	if outcome != nil {
		s.log.Debug("community code exhausted", zap.String("code", code))
		return CommunityUseResult{}, outcome
	}

	s.log.Info("community code used",
		zap.String("code", code),
		zap.Int("current_uses", result.CurrentUses),
		zap.String("member_id", result.MemberID),
	)
	return result, nil
}

// Delete removes code and its used-identity set. It reports whether the code
// existed; concurrent deletes see exactly one true.
func (s *CommunityCodeService) Delete(ctx context.Context, code string) (removed bool, err error) {
	defer func() { metrics.Operations.WithLabelValues("community_delete", resultLabel(err)).Inc() }()

	code = NormaliseCode(code)
	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		exists, err := tx.Exists(communityKey(code))
		if err != nil {
			return err
		}
		removed = exists
		if !exists {
			return nil
		}
		_, err = tx.Del(communityKey(code), communityUsedKey(code))
		return err
	})
	if err != nil {
		return false, translateStoreError(err)
	}
	if removed {
		s.log.Info("community code deleted", zap.String("code", code))
	}
	return removed, nil
}

func getCommunityTx(tx *store.Tx, code string) (models.CommunityCode, bool, error) {
	fields, err := tx.HGetAll(communityKey(code))
	if err != nil {
		return models.CommunityCode{}, false, err
	}
	if fields[communityFieldCode] == "" {
		return models.CommunityCode{}, false, nil
	}
	community := models.CommunityCode{Code: fields[communityFieldCode]}
	community.MaxUses, _ = strconv.Atoi(fields[communityFieldMaxUses])
	community.CurrentUses, _ = strconv.Atoi(fields[communityFieldUses])
	community.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields[communityFieldCreatedAt])
	return community, true, nil
}
