package ordering

import (
	"fmt"

	"github.com/charlesng35/waitlist/internal/store"
)

// ScoreOrder keeps the order as a sorted set. New members are spaced by gap;
// a move takes the midpoint of its new neighbours. When two neighbours are
// closer than minGap, or their midpoint is no longer strictly between them,
// the whole order is renumbered inside the same transaction.
type ScoreOrder struct {
	key    string
	gap    float64
	minGap float64
}

// NewScore returns a gap-score strategy stored under key. Non-positive values
// select the defaults.
func NewScore(key string, gap, minGap float64) *ScoreOrder {
	if gap <= 0 {
		gap = DefaultScoreGap
	}
	if minGap <= 0 {
		minGap = DefaultScoreMinGap
	}
	return &ScoreOrder{key: key, gap: gap, minGap: minGap}
}

func (s *ScoreOrder) Name() string { return StrategyScore }

func (s *ScoreOrder) Len(tx *store.Tx) (int, error) {
	return tx.ZCard(s.key)
}

func (s *ScoreOrder) Append(tx *store.Tx, id string) (int, error) {
	last, err := tx.ZRange(s.key, -1, -1)
	if err != nil {
		return 0, err
	}
	score := s.gap
	if len(last) == 1 {
		score = last[0].Score + s.gap
	}
	if _, err := tx.ZAdd(s.key, score, id); err != nil {
		return 0, err
	}
	return tx.ZCard(s.key)
}

func (s *ScoreOrder) PositionOf(tx *store.Tx, id string) (int, error) {
	rank, err := tx.ZRank(s.key, id)
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}

func (s *ScoreOrder) MoveTo(tx *store.Tx, id string, target int) (int, error) {
	length, err := tx.ZCard(s.key)
	if err != nil {
		return 0, err
	}
	if err := checkTarget(target, length); err != nil {
		return 0, err
	}

	removed, err := tx.ZRem(s.key, id)
	if err != nil {
		return 0, err
	}
	remaining := length - removed
	if target > remaining+1 {
		target = remaining + 1
	}

	score, ok, err := s.slotScore(tx, target)
	if err != nil {
		return 0, err
	}
	if !ok {
		if _, err := s.Renumber(tx); err != nil {
			return 0, err
		}
		if score, ok, err = s.slotScore(tx, target); err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("ordering: no room at position %d after renumbering (gap %g, min gap %g)", target, s.gap, s.minGap)
		}
	}

	if _, err := tx.ZAdd(s.key, score, id); err != nil {
		return 0, err
	}
	return target, nil
}

// slotScore computes a score that places a new element at target. ok is false
// when the neighbours have run out of room.
func (s *ScoreOrder) slotScore(tx *store.Tx, target int) (float64, bool, error) {
	start := target - 2
	if start < 0 {
		start = 0
	}
	neighbours, err := tx.ZRange(s.key, start, target-1)
	if err != nil {
		return 0, false, err
	}

	var prev, next *store.ScoredMember
	for i := range neighbours {
		idx := start + i
		switch idx {
		case target - 2:
			prev = &neighbours[i]
		case target - 1:
			next = &neighbours[i]
		}
	}

	switch {
	case prev == nil && next == nil:
		return s.gap, true, nil
	case prev == nil:
		return next.Score - s.gap, true, nil
	case next == nil:
		return prev.Score + s.gap, true, nil
	}

	mid := prev.Score + (next.Score-prev.Score)/2
	if next.Score-prev.Score < s.minGap || !(prev.Score < mid && mid < next.Score) {
		return 0, false, nil
	}
	return mid, true, nil
}

// Renumber respaces every member to gap, 2*gap, ... preserving order.
func (s *ScoreOrder) Renumber(tx *store.Tx) (int, error) {
	all, err := tx.ZRange(s.key, 0, -1)
	if err != nil {
		return 0, err
	}
	for i, member := range all {
		if _, err := tx.ZAdd(s.key, s.gap*float64(i+1), member.Member); err != nil {
			return 0, err
		}
	}
	return len(all), nil
}

func (s *ScoreOrder) Remove(tx *store.Tx, id string) (bool, error) {
	n, err := tx.ZRem(s.key, id)
	return n > 0, err
}

func (s *ScoreOrder) Range(tx *store.Tx, start, stop int) ([]string, error) {
	ranked, err := tx.ZRange(s.key, start, stop)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(ranked))
	for i, m := range ranked {
		ids[i] = m.Member
	}
	return ids, nil
}
