package models

import "time"

// Member is one entry on the waitlist. Position is not stored on the record;
// the order owns it.
type Member struct {
	ID        string         `json:"id"`
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SignupState is the derived gate state of a member.
type SignupState string

const (
	SignupNotEligible SignupState = "not_eligible"
	SignupEligible    SignupState = "eligible"
	SignupSignedUp    SignupState = "signed_up"
)

// MemberStatus combines a member record with its current position and gate state.
type MemberStatus struct {
	Member   Member      `json:"member"`
	Position int         `json:"position"`
	Signup   SignupState `json:"signup"`
}

// Placement is an id at a position, as returned by ordered snapshots.
type Placement struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}
