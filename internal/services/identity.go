package services

import (
	"context"
	"strings"

	"github.com/charlesng35/waitlist/internal/store"
	"github.com/charlesng35/waitlist/pkg/validator"
)

// ContactKind names one of the two alternate identity keys.
type ContactKind string

const (
	ContactEmail ContactKind = "email"
	ContactPhone ContactKind = "phone"
)

// Contact carries the optional identity values of a member.
type Contact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// NormaliseEmail lower-cases and trims an email address.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalisePhone keeps digits and a leading plus sign.
func NormalisePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalise validates and canonicalises both values. Empty values stay empty.
func (c Contact) Normalise() (Contact, error) {
	out := Contact{}
	if strings.TrimSpace(c.Email) != "" {
		out.Email = NormaliseEmail(c.Email)
		if err := validator.ValidateVar(out.Email, "email"); err != nil {
			return Contact{}, ErrInvalidContact.WithInternal(err)
		}
	}
	if strings.TrimSpace(c.Phone) != "" {
		if !validator.IsPhone(c.Phone) {
			return Contact{}, ErrInvalidContact
		}
		out.Phone = NormalisePhone(c.Phone)
	}
	return out, nil
}

// Empty reports whether neither value is set.
func (c Contact) Empty() bool {
	return c.Email == "" && c.Phone == ""
}

// identities returns the kind-qualified values, email first.
func (c Contact) identities() []string {
	var out []string
	if c.Email != "" {
		out = append(out, string(ContactEmail)+":"+c.Email)
	}
	if c.Phone != "" {
		out = append(out, string(ContactPhone)+":"+c.Phone)
	}
	return out
}

func (c Contact) values() map[ContactKind]string {
	out := make(map[ContactKind]string, 2)
	if c.Email != "" {
		out[ContactEmail] = c.Email
	}
	if c.Phone != "" {
		out[ContactPhone] = c.Phone
	}
	return out
}

func indexKey(kind ContactKind) string {
	if kind == ContactPhone {
		return keyPhoneIndex
	}
	return keyEmailIndex
}

// IdentityIndex maps email and phone values to member ids. Each value has at
// most one owner.
type IdentityIndex struct {
	store *store.Store
}

// NewIdentityIndex constructs an IdentityIndex over st.
func NewIdentityIndex(st *store.Store) *IdentityIndex {
	return &IdentityIndex{store: st}
}

// Resolve returns the member owning the email, or failing that the phone.
func (i *IdentityIndex) Resolve(ctx context.Context, contact Contact) (string, bool, error) {
	contact, err := contact.Normalise()
	if err != nil {
		return "", false, err
	}
	var (
		id    string
		found bool
	)
	err = i.store.View(ctx, func(tx *store.Tx) error {
		var err error
		id, found, err = resolveTx(tx, contact)
		return err
	})
	return id, found, translateStoreError(err)
}

// Bind claims value for id. It returns false when another member owns it. On
// success the member record carries the new value and any previous value of the
// same kind is released.
func (i *IdentityIndex) Bind(ctx context.Context, id string, kind ContactKind, value string) (bool, error) {
	var bound bool
	err := i.store.Atomic(ctx, func(tx *store.Tx) error {
		exists, err := recordExistsTx(tx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrMemberNotFound
		}
		bound, err = bindTx(tx, id, kind, value)
		return err
	})
	return bound, translateStoreError(err)
}

func resolveTx(tx *store.Tx, contact Contact) (string, bool, error) {
	for _, kind := range []ContactKind{ContactEmail, ContactPhone} {
		value := contact.values()[kind]
		if value == "" {
			continue
		}
		id, ok, err := tx.HGet(indexKey(kind), value)
		if err != nil {
			return "", false, err
		}
		if ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

// bindTx is check-then-set inside the caller's transaction.
func bindTx(tx *store.Tx, id string, kind ContactKind, value string) (bool, error) {
	key := indexKey(kind)
	owner, ok, err := tx.HGet(key, value)
	if err != nil {
		return false, err
	}
	if ok {
		return owner == id, nil
	}

	previous, _, err := tx.HGet(memberKey(id), string(kind))
	if err != nil {
		return false, err
	}
	if previous != "" && previous != value {
		if err := unbindTx(tx, id, kind, previous); err != nil {
			return false, err
		}
	}

	if err := tx.HSet(key, map[string]string{value: id}); err != nil {
		return false, err
	}
	if err := tx.HSet(memberKey(id), map[string]string{string(kind): value}); err != nil {
		return false, err
	}
	return true, nil
}

// unbindTx releases value when id owns it.
func unbindTx(tx *store.Tx, id string, kind ContactKind, value string) error {
	if value == "" {
		return nil
	}
	key := indexKey(kind)
	owner, ok, err := tx.HGet(key, value)
	if err != nil || !ok || owner != id {
		return err
	}
	_, err = tx.HDel(key, value)
	return err
}
