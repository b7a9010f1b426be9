package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charlesng35/waitlist/internal/models"
	"github.com/charlesng35/waitlist/internal/store"
)

const (
	fieldID        = "id"
	fieldMetadata  = "metadata"
	fieldCreatedAt = "created_at"
)

// MemberRecords stores member payloads keyed by id, independent of order.
type MemberRecords struct {
	store *store.Store
}

// NewMemberRecords constructs a MemberRecords over st.
func NewMemberRecords(st *store.Store) *MemberRecords {
	return &MemberRecords{store: st}
}

// Get returns the record for id.
func (r *MemberRecords) Get(ctx context.Context, id string) (models.Member, bool, error) {
	var (
		member models.Member
		found  bool
	)
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		member, found, err = getRecordTx(tx, id)
		return err
	})
	return member, found, translateStoreError(err)
}

func recordExistsTx(tx *store.Tx, id string) (bool, error) {
	return tx.HExists(memberKey(id), fieldID)
}

// createRecordTx writes a new record; it reports false when id already exists.
func createRecordTx(tx *store.Tx, member models.Member) (bool, error) {
	exists, err := recordExistsTx(tx, member.ID)
	if err != nil || exists {
		return false, err
	}

	fields := map[string]string{
		fieldID:        member.ID,
		fieldCreatedAt: member.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if member.Email != "" {
		fields[string(ContactEmail)] = member.Email
	}
	if member.Phone != "" {
		fields[string(ContactPhone)] = member.Phone
	}
	if len(member.Metadata) > 0 {
		raw, err := json.Marshal(member.Metadata)
		if err != nil {
			return false, ErrInvalidContact.WithInternal(fmt.Errorf("encode metadata: %w", err))
		}
		fields[fieldMetadata] = string(raw)
	}
	return true, tx.HSet(memberKey(member.ID), fields)
}

func getRecordTx(tx *store.Tx, id string) (models.Member, bool, error) {
	fields, err := tx.HGetAll(memberKey(id))
	if err != nil {
		return models.Member{}, false, err
	}
	if fields[fieldID] == "" {
		return models.Member{}, false, nil
	}

	member := models.Member{
		ID:    fields[fieldID],
		Email: fields[string(ContactEmail)],
		Phone: fields[string(ContactPhone)],
	}
	if raw := fields[fieldCreatedAt]; raw != "" {
		member.CreatedAt, _ = time.Parse(time.RFC3339Nano, raw)
	}
	if raw := fields[fieldMetadata]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &member.Metadata); err != nil {
			return models.Member{}, false, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
	}
	return member, true, nil
}

// deleteRecordTx removes the record and its bindings. It is idempotent.
func deleteRecordTx(tx *store.Tx, id string) error {
	member, found, err := getRecordTx(tx, id)
	if err != nil || !found {
		return err
	}
	if err := unbindTx(tx, id, ContactEmail, member.Email); err != nil {
		return err
	}
	if err := unbindTx(tx, id, ContactPhone, member.Phone); err != nil {
		return err
	}
	_, err = tx.Del(memberKey(id), creatorInvitesKey(id))
	return err
}
