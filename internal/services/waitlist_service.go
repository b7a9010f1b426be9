package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/waitlist/internal/models"
	"github.com/charlesng35/waitlist/internal/ordering"
	"github.com/charlesng35/waitlist/internal/store"
	"github.com/charlesng35/waitlist/pkg/logger"
	"github.com/charlesng35/waitlist/pkg/metrics"
	"github.com/charlesng35/waitlist/pkg/validator"
)

const (
	defaultMoveAttempts = 3
	defaultMoveBackoff  = 100 * time.Millisecond
	defaultLeaseTTL     = time.Second
)

// WaitlistOption customises WaitlistService behaviour.
type WaitlistOption func(*WaitlistService)

// WithMaxLength caps the order. Zero means unlimited.
func WithMaxLength(n int) WaitlistOption {
	return func(s *WaitlistService) {
		if n >= 0 {
			s.maxLength = n
		}
	}
}

// WithOrderStrategy selects how positions are represented in the store.
func WithOrderStrategy(strategy ordering.Strategy) WaitlistOption {
	return func(s *WaitlistService) {
		if strategy != nil {
			s.order = strategy
		}
	}
}

// WithMoveRetry sets how many times MoveTo tries to take the order lease and
// how long it waits between attempts.
func WithMoveRetry(attempts int, backoff time.Duration) WaitlistOption {
	return func(s *WaitlistService) {
		if attempts > 0 {
			s.moveAttempts = attempts
		}
		if backoff >= 0 {
			s.moveBackoff = backoff
		}
	}
}

// WithLeaseTTL overrides the order lease expiry.
func WithLeaseTTL(ttl time.Duration) WaitlistOption {
	return func(s *WaitlistService) {
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}

// WithMoveInsertsAbsent makes MoveTo insert ids that are not in the order.
func WithMoveInsertsAbsent(enabled bool) WaitlistOption {
	return func(s *WaitlistService) {
		s.insertAbsent = enabled
	}
}

// WithIDGenerator replaces the member id generator.
func WithIDGenerator(fn func() string) WaitlistOption {
	return func(s *WaitlistService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithWaitlistClock injects a custom clock primarily for testing.
func WithWaitlistClock(clock func() time.Time) WaitlistOption {
	return func(s *WaitlistService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WaitlistService is the public contract of the ordered membership store. It
// keeps the order, the identity index and the member records consistent.
type WaitlistService struct {
	store      *store.Store
	order      ordering.Strategy
	identities *IdentityIndex
	records    *MemberRecords

	maxLength    int
	moveAttempts int
	moveBackoff  time.Duration
	leaseTTL     time.Duration
	insertAbsent bool
	newID        func() string
	now          func() time.Time
	log          *zap.Logger
}

// NewWaitlistService constructs a WaitlistService over st.
func NewWaitlistService(st *store.Store, opts ...WaitlistOption) (*WaitlistService, error) {
	if st == nil {
		return nil, errors.New("waitlist service: store is required")
	}

	service := &WaitlistService{
		store:        st,
		order:        ordering.NewList(keyOrder),
		identities:   NewIdentityIndex(st),
		records:      NewMemberRecords(st),
		moveAttempts: defaultMoveAttempts,
		moveBackoff:  defaultMoveBackoff,
		leaseTTL:     defaultLeaseTTL,
		newID:        uuid.NewString,
		now:          time.Now,
		log:          logger.WithModule("waitlist"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Order exposes the strategy so sibling services share one representation.
func (s *WaitlistService) Order() ordering.Strategy { return s.order }

// Identities returns the identity index backing the waitlist.
func (s *WaitlistService) Identities() *IdentityIndex { return s.identities }

// Records returns the member record store backing the waitlist.
func (s *WaitlistService) Records() *MemberRecords { return s.records }

// InsertRequest describes a new member.
type InsertRequest struct {
	ID       string
	Email    string
	Phone    string
	Metadata map[string]any
}

// InsertResult reports where the member landed. Duplicate is set when the
// identity already belonged to a live member, in which case nothing was
// written and Position is that member's current position.
type InsertResult struct {
	ID        string
	Position  int
	Duplicate bool
}

// prepare validates and normalises an insert request outside any transaction.
func (r InsertRequest) prepare() (InsertRequest, Contact, error) {
	contact, err := Contact{Email: r.Email, Phone: r.Phone}.Normalise()
	if err != nil {
		return InsertRequest{}, Contact{}, err
	}
	if contact.Empty() {
		return InsertRequest{}, Contact{}, ErrContactRequired
	}
	r.ID = strings.TrimSpace(r.ID)
	if r.ID != "" && !validator.IsCode(r.ID) {
		return InsertRequest{}, Contact{}, ErrInvalidMemberID
	}
	r.Email, r.Phone = contact.Email, contact.Phone
	return r, contact, nil
}

// Insert appends a member unless its id, email or phone is already live.
func (s *WaitlistService) Insert(ctx context.Context, req InsertRequest) (result InsertResult, err error) {
	defer func() { metrics.Operations.WithLabelValues("insert", resultLabel(err)).Inc() }()

	req, contact, err := req.prepare()
	if err != nil {
		return InsertResult{}, err
	}
	if req.ID == "" {
		req.ID = s.newID()
	}

	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		var err error
		result, err = s.insertTx(tx, req, contact)
		return err
	})
	if err != nil {
		return InsertResult{}, translateStoreError(err)
	}

	if result.Duplicate {
		s.log.Debug("duplicate insert", zap.String("member_id", result.ID), zap.Int("position", result.Position))
	} else {
		s.log.Info("member inserted", zap.String("member_id", result.ID), zap.Int("position", result.Position))
	}
	return result, nil
}

// insertTx performs the duplicate check, the capacity check and the insert as
// one unit. req must already be prepared and carry an id.
func (s *WaitlistService) insertTx(tx *store.Tx, req InsertRequest, contact Contact) (InsertResult, error) {
	existing, err := recordExistsTx(tx, req.ID)
	if err != nil {
		return InsertResult{}, err
	}
	if existing {
		return s.duplicateTx(tx, req.ID)
	}

	owner, found, err := resolveTx(tx, contact)
	if err != nil {
		return InsertResult{}, err
	}
	if found {
		return s.duplicateTx(tx, owner)
	}

	if err := s.checkCapacityTx(tx); err != nil {
		return InsertResult{}, err
	}

	if _, err := createRecordTx(tx, models.Member{
		ID:        req.ID,
		Metadata:  req.Metadata,
		CreatedAt: s.now(),
	}); err != nil {
		return InsertResult{}, err
	}
	for kind, value := range contact.values() {
		if _, err := bindTx(tx, req.ID, kind, value); err != nil {
			return InsertResult{}, err
		}
	}

	pos, err := s.order.Append(tx, req.ID)
	if err != nil {
		return InsertResult{}, err
	}
	return InsertResult{ID: req.ID, Position: pos}, nil
}

func (s *WaitlistService) duplicateTx(tx *store.Tx, id string) (InsertResult, error) {
	pos, err := s.order.PositionOf(tx, id)
	if err != nil {
		return InsertResult{}, err
	}
	return InsertResult{ID: id, Position: pos, Duplicate: true}, nil
}

func (s *WaitlistService) checkCapacityTx(tx *store.Tx) error {
	if s.maxLength <= 0 {
		return nil
	}
	length, err := s.order.Len(tx)
	if err != nil {
		return err
	}
	if length >= s.maxLength {
		return ErrCapacityExceeded
	}
	return nil
}

// PositionOf returns the 1-based position of id, or 0 when it is absent.
func (s *WaitlistService) PositionOf(ctx context.Context, id string) (int, error) {
	var pos int
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		pos, err = s.order.PositionOf(tx, id)
		return err
	})
	return pos, translateStoreError(err)
}

// Length returns the number of members in the order.
func (s *WaitlistService) Length(ctx context.Context) (int, error) {
	var n int
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		n, err = s.order.Len(tx)
		return err
	})
	return n, translateStoreError(err)
}

// MoveTo places id at target while holding the order lease. Lease contention
// is retried with a fixed backoff before ErrMoveContended is returned.
func (s *WaitlistService) MoveTo(ctx context.Context, id string, target int) (pos int, err error) {
	defer func() { metrics.Operations.WithLabelValues("move", resultLabel(err)).Inc() }()

	id = strings.TrimSpace(id)
	if id == "" {
		return 0, ErrInvalidMemberID
	}
	if target < 1 {
		return 0, ErrInvalidPosition
	}

	for attempt := 1; attempt <= s.moveAttempts; attempt++ {
		err = s.store.WithLease(ctx, OrderLease, s.leaseTTL, func(ctx context.Context) error {
			return s.store.Atomic(ctx, func(tx *store.Tx) error {
				var err error
				pos, err = s.moveTx(tx, id, target)
				return err
			})
		})
		if !errors.Is(err, store.ErrLeaseBusy) {
			break
		}

		s.log.Warn("order lease busy",
			zap.String("member_id", id),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.moveAttempts),
		)
		if attempt == s.moveAttempts {
			return 0, ErrMoveContended
		}
		select {
		case <-ctx.Done():
			return 0, ErrStoreUnavailable.WithInternal(ctx.Err())
		case <-time.After(s.moveBackoff):
		}
	}
	if err != nil {
		return 0, translateStoreError(err)
	}

	s.log.Info("member moved", zap.String("member_id", id), zap.Int("position", pos))
	return pos, nil
}

func (s *WaitlistService) moveTx(tx *store.Tx, id string, target int) (int, error) {
	length, err := s.order.Len(tx)
	if err != nil {
		return 0, err
	}
	current, err := s.order.PositionOf(tx, id)
	if err != nil {
		return 0, err
	}
	if current == 0 && !s.insertAbsent {
		return 0, ErrMemberNotFound
	}
	if target > length+1 {
		return 0, ErrInvalidPosition.WithInternal(fmt.Errorf("target %d not in [1, %d]", target, length+1))
	}

	signedUp, err := isSignedUpTx(tx, id)
	if err != nil {
		return 0, err
	}
	if signedUp {
		return 0, ErrForbiddenSignedUp
	}

	cutoff, err := cutoffTx(tx)
	if err != nil {
		return 0, err
	}
	final := target
	if current > 0 && final > length {
		final = length
	}
	if (current > 0 && eligible(current, cutoff)) || eligible(final, cutoff) {
		return 0, ErrForbiddenCutoffBoundary
	}

	if current == 0 {
		if err := s.checkCapacityTx(tx); err != nil {
			return 0, err
		}
		if _, err := createRecordTx(tx, models.Member{ID: id, CreatedAt: s.now()}); err != nil {
			return 0, err
		}
	}
	return s.order.MoveTo(tx, id, target)
}

// Delete removes id from the order together with its bindings and record.
func (s *WaitlistService) Delete(ctx context.Context, id string) (err error) {
	defer func() { metrics.Operations.WithLabelValues("delete", resultLabel(err)).Inc() }()

	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		return s.deleteTx(tx, id)
	})
	if err != nil {
		return translateStoreError(err)
	}
	s.log.Info("member deleted", zap.String("member_id", id))
	return nil
}

// DeleteByContact deletes the member owning the email, or failing that the
// phone, and returns its id.
func (s *WaitlistService) DeleteByContact(ctx context.Context, contact Contact) (id string, err error) {
	defer func() { metrics.Operations.WithLabelValues("delete", resultLabel(err)).Inc() }()

	contact, err = contact.Normalise()
	if err != nil {
		return "", err
	}
	if contact.Empty() {
		return "", ErrContactRequired
	}

	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		owner, found, err := resolveTx(tx, contact)
		if err != nil {
			return err
		}
		if !found {
			return ErrMemberNotFound
		}
		id = owner
		return s.deleteTx(tx, owner)
	})
	if err != nil {
		return "", translateStoreError(err)
	}
	s.log.Info("member deleted by contact", zap.String("member_id", id))
	return id, nil
}

func (s *WaitlistService) deleteTx(tx *store.Tx, id string) error {
	pos, err := s.order.PositionOf(tx, id)
	if err != nil {
		return err
	}
	exists, err := recordExistsTx(tx, id)
	if err != nil {
		return err
	}
	if pos == 0 && !exists {
		return ErrMemberNotFound
	}

	signedUp, err := isSignedUpTx(tx, id)
	if err != nil {
		return err
	}
	if signedUp {
		return ErrForbiddenSignedUp
	}

	if _, err := s.order.Remove(tx, id); err != nil {
		return err
	}
	return deleteRecordTx(tx, id)
}

// AttachContact binds new contact values to an existing member. A value owned
// by another member fails with ErrDuplicateContact and nothing is changed.
func (s *WaitlistService) AttachContact(ctx context.Context, id string, contact Contact) (member models.Member, err error) {
	defer func() { metrics.Operations.WithLabelValues("attach_contact", resultLabel(err)).Inc() }()

	contact, err = contact.Normalise()
	if err != nil {
		return models.Member{}, err
	}
	if contact.Empty() {
		return models.Member{}, ErrContactRequired
	}

	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		exists, err := recordExistsTx(tx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrMemberNotFound
		}
		for _, kind := range []ContactKind{ContactEmail, ContactPhone} {
			value := contact.values()[kind]
			if value == "" {
				continue
			}
			bound, err := bindTx(tx, id, kind, value)
			if err != nil {
				return err
			}
			if !bound {
				return ErrDuplicateContact
			}
		}
		member, _, err = getRecordTx(tx, id)
		return err
	})
	if err != nil {
		return models.Member{}, translateStoreError(err)
	}
	return member, nil
}

// OrderedIDs returns a snapshot of the whole order.
func (s *WaitlistService) OrderedIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		ids, err = ordering.IDs(tx, s.order)
		return err
	})
	return ids, translateStoreError(err)
}

// List returns a window of the order and the total length. A non-positive
// limit returns everything from offset.
func (s *WaitlistService) List(ctx context.Context, offset, limit int) ([]models.Placement, int, error) {
	if offset < 0 {
		return nil, 0, ErrInvalidPosition
	}

	var (
		ids   []string
		total int
	)
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		if total, err = s.order.Len(tx); err != nil {
			return err
		}
		stop := -1
		if limit > 0 {
			stop = offset + limit - 1
		}
		ids, err = s.order.Range(tx, offset, stop)
		return err
	})
	if err != nil {
		return nil, 0, translateStoreError(err)
	}

	placements := make([]models.Placement, len(ids))
	for i, id := range ids {
		placements[i] = models.Placement{ID: id, Position: offset + i + 1}
	}
	return placements, total, nil
}

// Get returns the member record together with its position and signup state.
func (s *WaitlistService) Get(ctx context.Context, id string) (models.MemberStatus, error) {
	var status models.MemberStatus
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		status, err = s.statusTx(tx, id)
		return err
	})
	if err != nil {
		return models.MemberStatus{}, translateStoreError(err)
	}
	return status, nil
}

// Lookup resolves a contact and returns the owning member's status.
func (s *WaitlistService) Lookup(ctx context.Context, contact Contact) (models.MemberStatus, error) {
	contact, err := contact.Normalise()
	if err != nil {
		return models.MemberStatus{}, err
	}
	if contact.Empty() {
		return models.MemberStatus{}, ErrContactRequired
	}

	var status models.MemberStatus
	err = s.store.View(ctx, func(tx *store.Tx) error {
		id, found, err := resolveTx(tx, contact)
		if err != nil {
			return err
		}
		if !found {
			return ErrMemberNotFound
		}
		status, err = s.statusTx(tx, id)
		return err
	})
	if err != nil {
		return models.MemberStatus{}, translateStoreError(err)
	}
	return status, nil
}

func (s *WaitlistService) statusTx(tx *store.Tx, id string) (models.MemberStatus, error) {
	member, found, err := getRecordTx(tx, id)
	if err != nil {
		return models.MemberStatus{}, err
	}
	pos, err := s.order.PositionOf(tx, id)
	if err != nil {
		return models.MemberStatus{}, err
	}
	if !found && pos == 0 {
		return models.MemberStatus{}, ErrMemberNotFound
	}
	if !found {
		member = models.Member{ID: id}
	}

	state, err := signupStateTx(tx, id, pos)
	if err != nil {
		return models.MemberStatus{}, err
	}
	return models.MemberStatus{Member: member, Position: pos, Signup: state}, nil
}

// Renumber respaces gap scores under the order lease. It is a no-op for the
// sequence-index strategy.
func (s *WaitlistService) Renumber(ctx context.Context) (int, error) {
	var n int
	err := s.store.WithLease(ctx, OrderLease, s.leaseTTL, func(ctx context.Context) error {
		return s.store.Atomic(ctx, func(tx *store.Tx) error {
			var err error
			n, err = s.order.Renumber(tx)
			return err
		})
	})
	if errors.Is(err, store.ErrLeaseBusy) {
		return 0, ErrMoveContended
	}
	if err != nil {
		return 0, translateStoreError(err)
	}
	if n > 0 {
		s.log.Info("order renumbered", zap.Int("members", n))
	}
	return n, nil
}

// EnsureStrategy records the configured strategy on first start and refuses
// to run against an order written by the other one.
func (s *WaitlistService) EnsureStrategy(ctx context.Context) error {
	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		stored, ok, err := tx.Get(keyStrategy)
		if err != nil {
			return err
		}
		if !ok {
			return tx.Set(keyStrategy, s.order.Name(), 0)
		}
		if stored != s.order.Name() {
			return ErrStrategyMismatch.WithInternal(fmt.Errorf("stored %q, configured %q", stored, s.order.Name()))
		}
		return nil
	})
	return translateStoreError(err)
}
