// Package ordering maintains the total order of member ids inside a store
// transaction. Positions are 1-based; position 1 is the front of the line.
package ordering

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/waitlist/internal/store"
)

const (
	StrategyList  = "list"
	StrategyScore = "score"

	DefaultScoreGap    = 10_000_000
	DefaultScoreMinGap = 1.0
)

// ErrPositionOutOfRange is returned when a target lies outside [1, length+1].
var ErrPositionOutOfRange = errors.New("ordering: position out of range")

// Strategy is the order representation. Every method runs inside the caller's
// transaction, so a read followed by a write commits or aborts together.
type Strategy interface {
	Name() string
	Len(tx *store.Tx) (int, error)
	// Append places id at the end and returns its position.
	Append(tx *store.Tx, id string) (int, error)
	// PositionOf returns the 1-based position of id, or 0 when absent.
	PositionOf(tx *store.Tx, id string) (int, error)
	// MoveTo places id at target, shifting the members in between by one slot.
	// An absent id is inserted. It returns the final position.
	MoveTo(tx *store.Tx, id string, target int) (int, error)
	// Remove deletes id and reports whether it was present.
	Remove(tx *store.Tx, id string) (bool, error)
	// Range returns ids between the 0-based inclusive indexes start and stop;
	// negative indexes count from the end.
	Range(tx *store.Tx, start, stop int) ([]string, error)
	// Renumber rewrites internal sort keys without changing the order and
	// returns how many entries it touched.
	Renumber(tx *store.Tx) (int, error)
}

// Config selects and tunes a strategy.
type Config struct {
	Strategy string
	Key      string
	Gap      float64
	MinGap   float64
}

// New builds the strategy named in cfg.
func New(cfg Config) (Strategy, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("ordering: key is required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", StrategyList:
		return NewList(cfg.Key), nil
	case StrategyScore:
		return NewScore(cfg.Key, cfg.Gap, cfg.MinGap), nil
	default:
		return nil, fmt.Errorf("ordering: unknown strategy %q", cfg.Strategy)
	}
}

// IDs returns the full order.
func IDs(tx *store.Tx, s Strategy) ([]string, error) {
	return s.Range(tx, 0, -1)
}

func checkTarget(target, length int) error {
	if target < 1 || target > length+1 {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrPositionOutOfRange, target, length+1)
	}
	return nil
}
