package services

const (
	keyOrder      = "waitlist:order"
	keyEmailIndex = "waitlist:email"
	keyPhoneIndex = "waitlist:phone"
	keyCutoff     = "waitlist:cutoff"
	keySignedUp   = "waitlist:signed_up"
	keyStrategy   = "waitlist:meta:strategy"

	// OrderLease is the lease resource guarding repositioning of the order.
	OrderLease = "waitlist:order"
)

func memberKey(id string) string          { return "member:" + id }
func inviteKey(code string) string        { return "invite:" + code }
func creatorInvitesKey(id string) string  { return "invites:by-creator:" + id }
func communityKey(code string) string     { return "community:" + code }
func communityUsedKey(code string) string { return "community:" + code + ":used" }
