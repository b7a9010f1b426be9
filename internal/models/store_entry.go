package models

import (
	"time"

	"gorm.io/datatypes"
)

// StoreEntry persists one store key as an encoded entry document.
type StoreEntry struct {
	Key       string         `gorm:"column:entry_key;primaryKey;size:512"`
	Value     datatypes.JSON `gorm:"not null"`
	ExpiresAt *time.Time     `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name regardless of naming strategy.
func (StoreEntry) TableName() string {
	return "store_entries"
}
