package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

type kind string

const (
	kindString kind = "string"
	kindHash   kind = "hash"
	kindSet    kind = "set"
	kindList   kind = "list"
	kindZSet   kind = "zset"
)

// entry is the serialised form of one key. Every backend persists entries as opaque
// JSON blobs so the primitives behave identically regardless of where they live.
type entry struct {
	Kind      kind                `json:"k"`
	String    string              `json:"s,omitempty"`
	Hash      map[string]string   `json:"h,omitempty"`
	Set       map[string]struct{} `json:"m,omitempty"`
	List      []string            `json:"l,omitempty"`
	ZSet      map[string]float64  `json:"z,omitempty"`
	ExpiresAt int64               `json:"x,omitempty"` // unix millis, 0 = never

	sorted []ScoredMember
}

// ScoredMember is one element of a sorted set.
type ScoredMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

func newEntry(k kind) *entry {
	e := &entry{Kind: k}
	switch k {
	case kindHash:
		e.Hash = make(map[string]string)
	case kindSet:
		e.Set = make(map[string]struct{})
	case kindZSet:
		e.ZSet = make(map[string]float64)
	}
	return e
}

func (e *entry) expired(now time.Time) bool {
	return e.ExpiresAt > 0 && now.UnixMilli() >= e.ExpiresAt
}

func (e *entry) expiry() time.Time {
	if e == nil || e.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.ExpiresAt)
}

// empty reports whether a collection holds no elements; empty collections are deleted.
func (e *entry) empty() bool {
	switch e.Kind {
	case kindHash:
		return len(e.Hash) == 0
	case kindSet:
		return len(e.Set) == 0
	case kindList:
		return len(e.List) == 0
	case kindZSet:
		return len(e.ZSet) == 0
	default:
		return false
	}
}

func (e *entry) ranked() []ScoredMember {
	if e.sorted != nil {
		return e.sorted
	}
	out := make([]ScoredMember, 0, len(e.ZSet))
	for member, score := range e.ZSet {
		out = append(out, ScoredMember{Member: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	e.sorted = out
	return out
}

func encodeEntry(e *entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("store: encode entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*entry, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("store: decode entry: %w", err)
	}
	switch e.Kind {
	case kindHash:
		if e.Hash == nil {
			e.Hash = make(map[string]string)
		}
	case kindSet:
		if e.Set == nil {
			e.Set = make(map[string]struct{})
		}
	case kindZSet:
		if e.ZSet == nil {
			e.ZSet = make(map[string]float64)
		}
	case kindString, kindList:
	default:
		return nil, fmt.Errorf("store: decode entry: unknown kind %q", e.Kind)
	}
	return &e, nil
}

// normaliseRange converts Redis-style inclusive start/stop indexes (negative counts
// from the tail) into a half-open slice range.
func normaliseRange(start, stop, n int) (int, int, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}
