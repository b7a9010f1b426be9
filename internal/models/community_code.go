package models

import "time"

// CommunityCode is a multi-use code capped at MaxUses, granting signup to each
// distinct identity that redeems it.
type CommunityCode struct {
	Code        string    `json:"code"`
	MaxUses     int       `json:"max_uses"`
	CurrentUses int       `json:"current_uses"`
	CreatedAt   time.Time `json:"created_at"`
}

// Remaining returns how many uses are left.
func (c CommunityCode) Remaining() int {
	if c.CurrentUses >= c.MaxUses {
		return 0
	}
	return c.MaxUses - c.CurrentUses
}
