package models

import "time"

// Report is a read-only projection of the play history.
type Report struct {
	GeneratedAt  time.Time   `json:"generated_at"`
	Apps         []AppReport `json:"apps"`
	TotalSeconds int64       `json:"total_seconds"`
}

type AppReport struct {
	ID       uint            `json:"id"`
	Name     string          `json:"name"`
	Runtime  int64           `json:"runtime"`
	UserApps []UserAppReport `json:"user_apps"`
}

type UserAppReport struct {
	ID             uint            `json:"id"`
	Note           string          `json:"note,omitempty"`
	InitialRuntime int64           `json:"initial_runtime"`
	Runtime        int64           `json:"runtime"`
	Sessions       []SessionReport `json:"sessions"`
}

type SessionReport struct {
	ID            uint                 `json:"id"`
	Started       time.Time            `json:"started"`
	Duration      int64                `json:"duration"`
	Note          string               `json:"note,omitempty"`
	StatusUpdates []StatusUpdateReport `json:"status_updates,omitempty"`
}

type StatusUpdateReport struct {
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// SessionView is what the presentation layer shows for the running session.
type SessionView struct {
	SessionID    uint   `json:"session_id"`
	UserAppID    uint   `json:"user_app_id"`
	AppName      string `json:"app_name"`
	Manual       bool   `json:"manual"`
	TotalRuntime int64  `json:"total_runtime"`
	Elapsed      int64  `json:"elapsed"`
}
