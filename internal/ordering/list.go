package ordering

import (
	"fmt"

	"github.com/charlesng35/waitlist/internal/store"
)

// ListOrder keeps the order as a literal sequence of ids. Positions are always
// dense; moves cost a linear shift and never need rebalancing.
type ListOrder struct {
	key string
}

// NewList returns a sequence-index strategy stored under key.
func NewList(key string) *ListOrder {
	return &ListOrder{key: key}
}

func (l *ListOrder) Name() string { return StrategyList }

func (l *ListOrder) Len(tx *store.Tx) (int, error) {
	return tx.LLen(l.key)
}

func (l *ListOrder) Append(tx *store.Tx, id string) (int, error) {
	return tx.RPush(l.key, id)
}

func (l *ListOrder) PositionOf(tx *store.Tx, id string) (int, error) {
	idx, err := tx.LPos(l.key, id)
	if err != nil {
		return 0, err
	}
	return idx + 1, nil
}

func (l *ListOrder) MoveTo(tx *store.Tx, id string, target int) (int, error) {
	length, err := tx.LLen(l.key)
	if err != nil {
		return 0, err
	}
	if err := checkTarget(target, length); err != nil {
		return 0, err
	}

	removed, err := tx.LRem(l.key, 1, id)
	if err != nil {
		return 0, err
	}
	remaining := length - removed

	switch {
	case target <= 1:
		_, err = tx.LPush(l.key, id)
	case target > remaining:
		_, err = tx.RPush(l.key, id)
	default:
		pivot, ok, lookupErr := tx.LIndex(l.key, target-1)
		if lookupErr != nil {
			return 0, lookupErr
		}
		if !ok {
			return 0, fmt.Errorf("ordering: no element at index %d", target-1)
		}
		var n int
		n, err = tx.LInsertBefore(l.key, pivot, id)
		if err == nil && n < 0 {
			err = fmt.Errorf("ordering: pivot %q vanished", pivot)
		}
	}
	if err != nil {
		return 0, err
	}

	if target > remaining+1 {
		return remaining + 1, nil
	}
	return target, nil
}

func (l *ListOrder) Remove(tx *store.Tx, id string) (bool, error) {
	n, err := tx.LRem(l.key, 0, id)
	return n > 0, err
}

func (l *ListOrder) Range(tx *store.Tx, start, stop int) ([]string, error) {
	return tx.LRange(l.key, start, stop)
}

// Renumber is a no-op: list positions carry no sort key.
func (l *ListOrder) Renumber(*store.Tx) (int, error) {
	return 0, nil
}
