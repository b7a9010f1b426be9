package models

import (
	"testing"
	"time"
)

func TestInviteCodeUsed(t *testing.T) {
	code := InviteCode{Code: "ABCD2345", CreatorID: "m0"}
	if code.Used() {
		t.Fatal("expected fresh code to be unused")
	}

	now := time.Now()
	code.UsedBy = "m1"
	code.UsedAt = &now
	if !code.Used() {
		t.Fatal("expected code with a user to be used")
	}
}

func TestCommunityCodeRemaining(t *testing.T) {
	cases := []struct {
		max, current, want int
	}{
		{10, 0, 10},
		{10, 7, 3},
		{10, 10, 0},
		{1, 5, 0},
	}
	for _, tc := range cases {
		got := CommunityCode{MaxUses: tc.max, CurrentUses: tc.current}.Remaining()
		if got != tc.want {
			t.Fatalf("max=%d current=%d: expected %d, got %d", tc.max, tc.current, tc.want, got)
		}
	}
}

func TestStoreEntryTableName(t *testing.T) {
	if (StoreEntry{}).TableName() != "store_entries" {
		t.Fatal("unexpected table name")
	}
}
