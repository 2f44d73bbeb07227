package models

import "time"

// Setting is one row of the generic key-value store. A given (owner, key)
// has zero rows, one row (scalar) or many rows (list, ordered by ID).
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Owner     string    `gorm:"not null;index:settings_owner_key_idx" json:"owner"`
	Key       string    `gorm:"not null;index:settings_owner_key_idx" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }
