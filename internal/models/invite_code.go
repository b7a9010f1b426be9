package models

import "time"

// InviteCode is a single-use code that bumps its creator forward when redeemed.
type InviteCode struct {
	Code      string     `json:"code"`
	CreatorID string     `json:"creator_id"`
	MinBump   int        `json:"min_bump"`
	UsedBy    string     `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Used reports whether the code has been redeemed.
func (c InviteCode) Used() bool {
	return c.UsedBy != ""
}
