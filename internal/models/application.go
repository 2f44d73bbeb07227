package models

import "time"

// Application is a conceptual game or program, independent of where it is
// installed. Its runtime is the sum of the runtimes of its UserApps.
type Application struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"not null;index" json:"name"`
	Disambiguation *string   `json:"disambiguation,omitempty"`
	UserApps       []UserApp `gorm:"foreignKey:AppID" json:"user_apps,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Application) TableName() string { return "app" }

func (a Application) String() string {
	if a.Disambiguation != nil && *a.Disambiguation != "" {
		return a.Name + " (" + *a.Disambiguation + ")"
	}
	return a.Name
}

// UserApp is one concrete, trackable configuration of an Application.
//
// A UserApp with no Path, WindowText and IdentifierPlugin is the manual
// UserApp of its Application: it only receives manual sessions and added time.
type UserApp struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	AppID            uint          `gorm:"not null;index" json:"app_id"`
	App              Application   `gorm:"foreignKey:AppID" json:"app"`
	Note             *string       `json:"note,omitempty"`
	Path             *string       `gorm:"index" json:"path,omitempty"`
	IdentifierPlugin *string       `gorm:"index" json:"identifier_plugin,omitempty"`
	IdentifierData   *string       `json:"identifier_data,omitempty"`
	InitialRuntime   int64         `gorm:"not null;default:0" json:"initial_runtime"` // seconds
	WindowText       *string       `gorm:"index" json:"window_text,omitempty"`
	PlaySessions     []PlaySession `gorm:"foreignKey:UserAppID" json:"play_sessions,omitempty"`
	CreatedAt        time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserApp) TableName() string { return "user_app" }

// IsManual reports whether the UserApp has no locator at all.
func (u *UserApp) IsManual() bool {
	return u.Path == nil && u.WindowText == nil && u.IdentifierPlugin == nil
}

// PluginName returns the identifier plugin name or "" for manual apps.
func (u *UserApp) PluginName() string {
	if u.IdentifierPlugin == nil {
		return ""
	}
	return *u.IdentifierPlugin
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
