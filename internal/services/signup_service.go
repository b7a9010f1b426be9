package services

import (
	"context"
	"errors"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/charlesng35/waitlist/internal/models"
	"github.com/charlesng35/waitlist/internal/ordering"
	"github.com/charlesng35/waitlist/internal/store"
	"github.com/charlesng35/waitlist/pkg/logger"
	"github.com/charlesng35/waitlist/pkg/metrics"
)

const (
	// CutoffNobody makes nobody eligible. It is the value of an unset cutoff.
	CutoffNobody = -1
	// CutoffEverybody makes every position eligible.
	CutoffEverybody = 0
)

// SignupService is the signup gate: a monotonic position cutoff and the
// one-way signed-up flag it governs.
type SignupService struct {
	store *store.Store
	order ordering.Strategy
	log   *zap.Logger
}

// NewSignupService constructs a SignupService sharing the waitlist's order.
func NewSignupService(st *store.Store, order ordering.Strategy) (*SignupService, error) {
	if st == nil {
		return nil, errors.New("signup service: store is required")
	}
	if order == nil {
		return nil, errors.New("signup service: order strategy is required")
	}
	return &SignupService{store: st, order: order, log: logger.WithModule("signup")}, nil
}

// Cutoff returns the stored cutoff.
func (s *SignupService) Cutoff(ctx context.Context) (int, error) {
	var cutoff int
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		cutoff, err = cutoffTx(tx)
		return err
	})
	return cutoff, translateStoreError(err)
}

// SetCutoff stores n, clamped to the order length, and returns the stored
// value. The gate only widens: a value admitting strictly fewer positions than
// the current one fails with ErrCutoffDecrease.
func (s *SignupService) SetCutoff(ctx context.Context, n int) (stored int, err error) {
	defer func() { metrics.Operations.WithLabelValues("set_cutoff", resultLabel(err)).Inc() }()

	if n < CutoffNobody {
		return 0, ErrCutoffInvalid
	}

	var previous int
	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		length, err := s.order.Len(tx)
		if err != nil {
			return err
		}
		stored = n
		if n > 0 {
			switch {
			case length == 0:
				stored = CutoffNobody
			case n > length:
				stored = length
			}
		}

		if previous, err = cutoffTx(tx); err != nil {
			return err
		}
		if cutoffRank(stored) < cutoffRank(previous) {
			return ErrCutoffDecrease
		}
		return tx.Set(keyCutoff, strconv.Itoa(stored), 0)
	})
	if err != nil {
		return 0, translateStoreError(err)
	}

	metrics.SignupCutoff.Set(float64(stored))
	if stored != previous {
		s.log.Info("signup cutoff changed", zap.Int("from", previous), zap.Int("to", stored))
	}
	return stored, nil
}

// MarkSignedUp flags an eligible member as signed up. It returns false without
// writing when the member is not eligible or already signed up.
func (s *SignupService) MarkSignedUp(ctx context.Context, id string) (marked bool, err error) {
	defer func() { metrics.Operations.WithLabelValues("mark_signed_up", resultLabel(err)).Inc() }()

	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		pos, err := s.order.PositionOf(tx, id)
		if err != nil {
			return err
		}
		if pos == 0 {
			return ErrMemberNotFound
		}
		state, err := signupStateTx(tx, id, pos)
		if err != nil || state != models.SignupEligible {
			return err
		}
		added, err := tx.SAdd(keySignedUp, id)
		marked = added > 0
		return err
	})
	if err != nil {
		return false, translateStoreError(err)
	}
	if marked {
		s.log.Info("member signed up", zap.String("member_id", id))
	}
	return marked, nil
}

// CanSignUp reports whether id is eligible and not yet signed up.
func (s *SignupService) CanSignUp(ctx context.Context, id string) (bool, error) {
	state, err := s.State(ctx, id)
	if err != nil {
		return false, err
	}
	return state == models.SignupEligible, nil
}

// IsSignedUp reports whether id has signed up.
func (s *SignupService) IsSignedUp(ctx context.Context, id string) (bool, error) {
	var signed bool
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		signed, err = isSignedUpTx(tx, id)
		return err
	})
	return signed, translateStoreError(err)
}

// State returns the gate state of id. A member that signed up and is no longer
// in the order still reports SignedUp.
func (s *SignupService) State(ctx context.Context, id string) (models.SignupState, error) {
	var state models.SignupState
	err := s.store.View(ctx, func(tx *store.Tx) error {
		pos, err := s.order.PositionOf(tx, id)
		if err != nil {
			return err
		}
		state, err = signupStateTx(tx, id, pos)
		if err != nil {
			return err
		}
		if pos == 0 && state != models.SignupSignedUp {
			return ErrMemberNotFound
		}
		return nil
	})
	if err != nil {
		return "", translateStoreError(err)
	}
	return state, nil
}

func cutoffTx(tx *store.Tx) (int, error) {
	raw, ok, err := tx.Get(keyCutoff)
	if err != nil || !ok {
		return CutoffNobody, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, store.ErrNotInteger
	}
	return n, nil
}

// cutoffRank orders cutoffs by how many positions they admit.
func cutoffRank(cutoff int) int {
	switch {
	case cutoff == CutoffEverybody:
		return math.MaxInt
	case cutoff < 0:
		return -1
	default:
		return cutoff
	}
}

func eligible(pos, cutoff int) bool {
	switch {
	case pos < 1 || cutoff < 0:
		return false
	case cutoff == CutoffEverybody:
		return true
	default:
		return pos <= cutoff
	}
}

func isSignedUpTx(tx *store.Tx, id string) (bool, error) {
	return tx.SIsMember(keySignedUp, id)
}

func signupStateTx(tx *store.Tx, id string, pos int) (models.SignupState, error) {
	signed, err := isSignedUpTx(tx, id)
	if err != nil {
		return "", err
	}
	if signed {
		return models.SignupSignedUp, nil
	}
	cutoff, err := cutoffTx(tx)
	if err != nil {
		return "", err
	}
	if eligible(pos, cutoff) {
		return models.SignupEligible, nil
	}
	return models.SignupNotEligible, nil
}
