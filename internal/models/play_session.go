package models

import "time"

// PlaySession is one continuous interval of tracked play time.
type PlaySession struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserAppID     uint           `gorm:"not null;index" json:"user_app_id"`
	UserApp       UserApp        `gorm:"foreignKey:UserAppID" json:"-"`
	Started       time.Time      `gorm:"not null;index" json:"started"`
	Duration      int64          `gorm:"not null;default:0" json:"duration"` // Duration in seconds
	Note          *string        `json:"note,omitempty"`
	StatusUpdates []StatusUpdate `gorm:"foreignKey:PlaySessionID" json:"status_updates,omitempty"`
}

func (PlaySession) TableName() string { return "play_session" }

// StatusUpdate is an append-only progress snapshot attached to a session.
type StatusUpdate struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PlaySessionID uint      `gorm:"not null;index" json:"play_session_id"`
	Timestamp     time.Time `gorm:"not null;index" json:"timestamp"`
	Note          string    `json:"note"`
}

func (StatusUpdate) TableName() string { return "status_update" }
