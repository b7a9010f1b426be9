package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Tx is the view of the store inside one Atomic call. Reads are loaded lazily and
// cached for the lifetime of the transaction; writes are staged until commit.
type Tx struct {
	ctx      context.Context
	sess     session
	now      time.Time
	readOnly bool
	slots    map[string]*slot
	failure  error
}

type slot struct {
	entry   *entry
	existed bool
	dirty   bool
}

func newTx(ctx context.Context, sess session, now time.Time, readOnly bool) *Tx {
	return &Tx{
		ctx:      ctx,
		sess:     sess,
		now:      now,
		readOnly: readOnly,
		slots:    make(map[string]*slot),
	}
}

// Now returns the transaction timestamp.
func (tx *Tx) Now() time.Time {
	return tx.now
}

func (tx *Tx) slot(key string) (*slot, error) {
	if tx.failure != nil {
		return nil, tx.failure
	}
	if s, ok := tx.slots[key]; ok {
		return s, nil
	}

	raw, err := tx.sess.load(tx.ctx, key)
	if err != nil {
		tx.failure = fmt.Errorf("%w: load %q: %v", ErrUnavailable, key, err)
		return nil, tx.failure
	}

	s := &slot{}
	if raw != nil {
		e, err := decodeEntry(raw)
		if err != nil {
			tx.failure = fmt.Errorf("%w: %v", ErrUnavailable, err)
			return nil, tx.failure
		}
		s.existed = true
		if !e.expired(tx.now) {
			s.entry = e
		}
	}
	tx.slots[key] = s
	return s, nil
}

// lookup returns the live entry under key, nil when absent.
func (tx *Tx) lookup(key string, k kind) (*entry, error) {
	s, err := tx.slot(key)
	if err != nil {
		return nil, err
	}
	if s.entry == nil {
		return nil, nil
	}
	if s.entry.Kind != k {
		return nil, fmt.Errorf("%w: %q is a %s", ErrWrongType, key, s.entry.Kind)
	}
	return s.entry, nil
}

// mutable returns the entry under key for modification, creating it when absent.
func (tx *Tx) mutable(key string, k kind) (*entry, error) {
	if tx.readOnly {
		return nil, ErrReadOnly
	}
	e, err := tx.lookup(key, k)
	if err != nil {
		return nil, err
	}
	s := tx.slots[key]
	if e == nil {
		e = newEntry(k)
		s.entry = e
	}
	e.sorted = nil
	s.dirty = true
	return e, nil
}

func (tx *Tx) pendingWrites() ([]write, error) {
	keys := make([]string, 0, len(tx.slots))
	for key, s := range tx.slots {
		if s.dirty {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	writes := make([]write, 0, len(keys))
	for _, key := range keys {
		s := tx.slots[key]
		w := write{key: key, existed: s.existed}
		if s.entry == nil || s.entry.empty() {
			if !s.existed {
				continue
			}
			w.delete = true
		} else {
			data, err := encodeEntry(s.entry)
			if err != nil {
				return nil, err
			}
			w.value = data
			w.expiresAt = s.entry.expiry()
		}
		writes = append(writes, w)
	}
	return writes, nil
}

func (tx *Tx) ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return tx.now.Add(ttl).UnixMilli()
}

// Get returns the string stored at key.
func (tx *Tx) Get(key string) (string, bool, error) {
	e, err := tx.lookup(key, kindString)
	if err != nil || e == nil {
		return "", false, err
	}
	return e.String, true, nil
}

// Set stores a string at key, replacing any previous value. A positive ttl sets an expiry.
func (tx *Tx) Set(key, value string, ttl time.Duration) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	s, err := tx.slot(key)
	if err != nil {
		return err
	}
	s.entry = &entry{Kind: kindString, String: value, ExpiresAt: tx.ttlMillis(ttl)}
	s.dirty = true
	return nil
}

// SetNX stores value only when key is absent and reports whether it did.
func (tx *Tx) SetNX(key, value string, ttl time.Duration) (bool, error) {
	exists, err := tx.Exists(key)
	if err != nil || exists {
		return false, err
	}
	return true, tx.Set(key, value, ttl)
}

// Exists reports whether key holds a live value of any kind.
func (tx *Tx) Exists(key string) (bool, error) {
	s, err := tx.slot(key)
	if err != nil {
		return false, err
	}
	return s.entry != nil, nil
}

// Del removes keys and returns how many existed.
func (tx *Tx) Del(keys ...string) (int, error) {
	if tx.readOnly {
		return 0, ErrReadOnly
	}
	removed := 0
	for _, key := range keys {
		s, err := tx.slot(key)
		if err != nil {
			return removed, err
		}
		if s.entry != nil {
			removed++
			s.entry = nil
			s.dirty = true
		}
	}
	return removed, nil
}

// IncrBy adds delta to the integer stored at key, treating a missing key as 0.
func (tx *Tx) IncrBy(key string, delta int64) (int64, error) {
	e, err := tx.mutable(key, kindString)
	if err != nil {
		return 0, err
	}
	current := int64(0)
	if e.String != "" {
		current, err = strconv.ParseInt(e.String, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotInteger, key)
		}
	}
	current += delta
	e.String = strconv.FormatInt(current, 10)
	return current, nil
}

// Expire sets a ttl on an existing key and reports whether the key existed.
func (tx *Tx) Expire(key string, ttl time.Duration) (bool, error) {
	if tx.readOnly {
		return false, ErrReadOnly
	}
	s, err := tx.slot(key)
	if err != nil || s.entry == nil {
		return false, err
	}
	s.entry.ExpiresAt = tx.ttlMillis(ttl)
	s.dirty = true
	return true, nil
}

// TTL returns the remaining lifetime of key; zero when the key has no expiry.
func (tx *Tx) TTL(key string) (time.Duration, bool, error) {
	s, err := tx.slot(key)
	if err != nil || s.entry == nil {
		return 0, false, err
	}
	if s.entry.ExpiresAt == 0 {
		return 0, true, nil
	}
	return s.entry.expiry().Sub(tx.now), true, nil
}

// HGet returns one hash field.
func (tx *Tx) HGet(key, field string) (string, bool, error) {
	e, err := tx.lookup(key, kindHash)
	if err != nil || e == nil {
		return "", false, err
	}
	value, ok := e.Hash[field]
	return value, ok, nil
}

// HSet sets one or more field/value pairs.
func (tx *Tx) HSet(key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	e, err := tx.mutable(key, kindHash)
	if err != nil {
		return err
	}
	for field, value := range fields {
		e.Hash[field] = value
	}
	return nil
}

// HSetNX sets field only when absent and reports whether it did.
func (tx *Tx) HSetNX(key, field, value string) (bool, error) {
	if _, ok, err := tx.HGet(key, field); err != nil || ok {
		return false, err
	}
	return true, tx.HSet(key, map[string]string{field: value})
}

// HDel removes fields and returns how many existed.
func (tx *Tx) HDel(key string, fields ...string) (int, error) {
	e, err := tx.lookup(key, kindHash)
	if err != nil || e == nil {
		return 0, err
	}
	e, err = tx.mutable(key, kindHash)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, field := range fields {
		if _, ok := e.Hash[field]; ok {
			delete(e.Hash, field)
			removed++
		}
	}
	return removed, nil
}

// HExists reports whether field is present.
func (tx *Tx) HExists(key, field string) (bool, error) {
	_, ok, err := tx.HGet(key, field)
	return ok, err
}

// HGetAll returns a copy of the hash, empty when absent.
func (tx *Tx) HGetAll(key string) (map[string]string, error) {
	e, err := tx.lookup(key, kindHash)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if e == nil {
		return out, nil
	}
	for field, value := range e.Hash {
		out[field] = value
	}
	return out, nil
}

// HLen returns the number of fields.
func (tx *Tx) HLen(key string) (int, error) {
	e, err := tx.lookup(key, kindHash)
	if err != nil || e == nil {
		return 0, err
	}
	return len(e.Hash), nil
}

// HIncrBy adds delta to an integer field, treating a missing field as 0.
func (tx *Tx) HIncrBy(key, field string, delta int64) (int64, error) {
	e, err := tx.mutable(key, kindHash)
	if err != nil {
		return 0, err
	}
	current := int64(0)
	if raw, ok := e.Hash[field]; ok {
		current, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q.%s", ErrNotInteger, key, field)
		}
	}
	current += delta
	e.Hash[field] = strconv.FormatInt(current, 10)
	return current, nil
}

// SAdd adds members and returns how many were new.
func (tx *Tx) SAdd(key string, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	e, err := tx.mutable(key, kindSet)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, member := range members {
		if _, ok := e.Set[member]; !ok {
			e.Set[member] = struct{}{}
			added++
		}
	}
	return added, nil
}

// SRem removes members and returns how many existed.
func (tx *Tx) SRem(key string, members ...string) (int, error) {
	e, err := tx.lookup(key, kindSet)
	if err != nil || e == nil {
		return 0, err
	}
	e, err = tx.mutable(key, kindSet)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, member := range members {
		if _, ok := e.Set[member]; ok {
			delete(e.Set, member)
			removed++
		}
	}
	return removed, nil
}

// SIsMember reports set membership.
func (tx *Tx) SIsMember(key, member string) (bool, error) {
	e, err := tx.lookup(key, kindSet)
	if err != nil || e == nil {
		return false, err
	}
	_, ok := e.Set[member]
	return ok, nil
}

// SCard returns the set size.
func (tx *Tx) SCard(key string) (int, error) {
	e, err := tx.lookup(key, kindSet)
	if err != nil || e == nil {
		return 0, err
	}
	return len(e.Set), nil
}

// SMembers returns the members in lexical order.
func (tx *Tx) SMembers(key string) ([]string, error) {
	e, err := tx.lookup(key, kindSet)
	if err != nil || e == nil {
		return nil, err
	}
	out := make([]string, 0, len(e.Set))
	for member := range e.Set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}
