package store

import "math"

// RPush appends values to the tail and returns the new length.
func (tx *Tx) RPush(key string, values ...string) (int, error) {
	e, err := tx.mutable(key, kindList)
	if err != nil {
		return 0, err
	}
	e.List = append(e.List, values...)
	return len(e.List), nil
}

// LPush prepends values so the last argument ends up at the head, as in Redis.
func (tx *Tx) LPush(key string, values ...string) (int, error) {
	e, err := tx.mutable(key, kindList)
	if err != nil {
		return 0, err
	}
	head := make([]string, 0, len(values)+len(e.List))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	e.List = append(head, e.List...)
	return len(e.List), nil
}

// LLen returns the list length.
func (tx *Tx) LLen(key string) (int, error) {
	e, err := tx.lookup(key, kindList)
	if err != nil || e == nil {
		return 0, err
	}
	return len(e.List), nil
}

// LIndex returns the element at a 0-based index; negative indexes count from the tail.
func (tx *Tx) LIndex(key string, index int) (string, bool, error) {
	e, err := tx.lookup(key, kindList)
	if err != nil || e == nil {
		return "", false, err
	}
	if index < 0 {
		index += len(e.List)
	}
	if index < 0 || index >= len(e.List) {
		return "", false, nil
	}
	return e.List[index], true, nil
}

// LRange returns the inclusive range [start, stop].
func (tx *Tx) LRange(key string, start, stop int) ([]string, error) {
	e, err := tx.lookup(key, kindList)
	if err != nil || e == nil {
		return nil, err
	}
	from, to, ok := normaliseRange(start, stop, len(e.List))
	if !ok {
		return nil, nil
	}
	out := make([]string, to-from)
	copy(out, e.List[from:to])
	return out, nil
}

// LPos returns the 0-based index of the first occurrence of value, or -1.
func (tx *Tx) LPos(key, value string) (int, error) {
	e, err := tx.lookup(key, kindList)
	if err != nil || e == nil {
		return -1, err
	}
	for i, v := range e.List {
		if v == value {
			return i, nil
		}
	}
	return -1, nil
}

// LRem removes occurrences of value. count > 0 removes from the head, count < 0
// from the tail, and 0 removes all. It returns the number removed.
func (tx *Tx) LRem(key string, count int, value string) (int, error) {
	e, err := tx.lookup(key, kindList)
	if err != nil || e == nil {
		return 0, err
	}
	e, err = tx.mutable(key, kindList)
	if err != nil {
		return 0, err
	}

	limit := count
	if limit < 0 {
		limit = -limit
	}
	removed := 0
	keep := make([]bool, len(e.List))
	for i := range keep {
		keep[i] = true
	}
	visit := func(i int) {
		if (limit == 0 || removed < limit) && e.List[i] == value {
			keep[i] = false
			removed++
		}
	}
	if count >= 0 {
		for i := 0; i < len(e.List); i++ {
			visit(i)
		}
	} else {
		for i := len(e.List) - 1; i >= 0; i-- {
			visit(i)
		}
	}

	out := e.List[:0]
	for i, v := range e.List {
		if keep[i] {
			out = append(out, v)
		}
	}
	e.List = out
	return removed, nil
}

// LInsertBefore inserts value before the first occurrence of pivot and returns the
// new length, or -1 when pivot is not present.
func (tx *Tx) LInsertBefore(key, pivot, value string) (int, error) {
	idx, err := tx.LPos(key, pivot)
	if err != nil {
		return 0, err
	}
	if idx < 0 {
		return -1, nil
	}
	e, err := tx.mutable(key, kindList)
	if err != nil {
		return 0, err
	}
	e.List = append(e.List, "")
	copy(e.List[idx+1:], e.List[idx:])
	e.List[idx] = value
	return len(e.List), nil
}

// ZAdd sets the score of member and reports whether it was newly added.
func (tx *Tx) ZAdd(key string, score float64, member string) (bool, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return false, ErrInvalidScore
	}
	e, err := tx.mutable(key, kindZSet)
	if err != nil {
		return false, err
	}
	_, existed := e.ZSet[member]
	e.ZSet[member] = score
	return !existed, nil
}

// ZScore returns the score of member.
func (tx *Tx) ZScore(key, member string) (float64, bool, error) {
	e, err := tx.lookup(key, kindZSet)
	if err != nil || e == nil {
		return 0, false, err
	}
	score, ok := e.ZSet[member]
	return score, ok, nil
}

// ZRank returns the 0-based rank of member by ascending score, or -1.
func (tx *Tx) ZRank(key, member string) (int, error) {
	e, err := tx.lookup(key, kindZSet)
	if err != nil || e == nil {
		return -1, err
	}
	if _, ok := e.ZSet[member]; !ok {
		return -1, nil
	}
	for i, sm := range e.ranked() {
		if sm.Member == member {
			return i, nil
		}
	}
	return -1, nil
}

// ZRange returns members ranked start..stop inclusive with their scores.
func (tx *Tx) ZRange(key string, start, stop int) ([]ScoredMember, error) {
	e, err := tx.lookup(key, kindZSet)
	if err != nil || e == nil {
		return nil, err
	}
	ranked := e.ranked()
	from, to, ok := normaliseRange(start, stop, len(ranked))
	if !ok {
		return nil, nil
	}
	out := make([]ScoredMember, to-from)
	copy(out, ranked[from:to])
	return out, nil
}

// ZRem removes members and returns how many existed.
func (tx *Tx) ZRem(key string, members ...string) (int, error) {
	e, err := tx.lookup(key, kindZSet)
	if err != nil || e == nil {
		return 0, err
	}
	e, err = tx.mutable(key, kindZSet)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, member := range members {
		if _, ok := e.ZSet[member]; ok {
			delete(e.ZSet, member)
			removed++
		}
	}
	return removed, nil
}

// ZCard returns the sorted set size.
func (tx *Tx) ZCard(key string) (int, error) {
	e, err := tx.lookup(key, kindZSet)
	if err != nil || e == nil {
		return 0, err
	}
	return len(e.ZSet), nil
}
