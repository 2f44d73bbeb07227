package database

import (
	"strconv"
	"strings"

	"github.com/playtrack/playtrack/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gorm.io/gorm"
)

// ErrReplaceList is returned when Set would overwrite a multi-row setting.
var ErrReplaceList = errors.New("cannot replace settings list")

// Settings is the owner/key/value configuration store.
type Settings struct {
	db *gorm.DB
}

// NewSettings creates a settings store on the given database.
func NewSettings(db *DB) *Settings {
	return &Settings{db: db.DB}
}

// Get returns the first value stored for (owner, key).
func (s *Settings) Get(owner, key string) (string, bool, error) {
	var rows []models.Setting
	result := s.db.Where("owner = ? AND key = ?", owner, key).Order("id ASC").Limit(1).Find(&rows)
	if result.Error != nil {
		return "", false, classify("get setting", errors.Wrapf(result.Error, "failed to read %s.%s", owner, key))
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Value, true, nil
}

// GetString returns the value or fallback when unset or unreadable.
func (s *Settings) GetString(owner, key, fallback string) string {
	v, ok, err := s.Get(owner, key)
	if err != nil {
		log.Warn().Err(err).Str("owner", owner).Str("key", key).Msg("failed to read setting")
		return fallback
	}
	if !ok {
		return fallback
	}
	return v
}

// GetInt parses the value as an integer. Unset values yield fallback;
// malformed values yield an error.
func (s *Settings) GetInt(owner, key string, fallback int64) (int64, error) {
	v, ok, err := s.Get(owner, key)
	if err != nil {
		return fallback, err
	}
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback, errors.Wrapf(err, "setting %s.%s is not an integer", owner, key)
	}
	return n, nil
}

// GetBool parses the value as a boolean, returning fallback when unset or
// malformed.
func (s *Settings) GetBool(owner, key string, fallback bool) bool {
	v, ok, err := s.Get(owner, key)
	if err != nil {
		log.Warn().Err(err).Str("owner", owner).Str("key", key).Msg("failed to read setting")
		return fallback
	}
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

// GetList returns every value stored for (owner, key) in insertion order.
func (s *Settings) GetList(owner, key string) ([]string, error) {
	var rows []models.Setting
	result := s.db.Where("owner = ? AND key = ?", owner, key).Order("id ASC").Find(&rows)
	if result.Error != nil {
		return nil, classify("get setting list", errors.Wrapf(result.Error, "failed to read %s.%s", owner, key))
	}
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.Value)
	}
	return values, nil
}

// Set stores a scalar value, replacing the existing one. It refuses to
// replace a list.
func (s *Settings) Set(owner, key, value string) error {
	log.Debug().Str("owner", owner).Str("key", key).Str("value", value).Msg("setting value")
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rows []models.Setting
		if err := tx.Where("owner = ? AND key = ?", owner, key).Order("id ASC").Find(&rows).Error; err != nil {
			return errors.Wrap(err, "failed to read setting")
		}
		switch len(rows) {
		case 0:
			return tx.Create(&models.Setting{Owner: owner, Key: key, Value: value}).Error
		case 1:
			return tx.Model(&rows[0]).Update("value", value).Error
		default:
			return ErrReplaceList
		}
	})
	if errors.Is(err, ErrReplaceList) {
		return err
	}
	return classify("set setting", err)
}

// Append adds one more value to a list setting.
func (s *Settings) Append(owner, key, value string) error {
	log.Debug().Str("owner", owner).Str("key", key).Str("value", value).Msg("appending setting value")
	if err := s.db.Create(&models.Setting{Owner: owner, Key: key, Value: value}).Error; err != nil {
		return classify("append setting", errors.Wrap(err, "failed to insert setting"))
	}
	return nil
}

// Delete removes every value stored for (owner, key).
func (s *Settings) Delete(owner, key string) error {
	if err := s.db.Where("owner = ? AND key = ?", owner, key).Delete(&models.Setting{}).Error; err != nil {
		return classify("delete setting", errors.Wrap(err, "failed to delete setting"))
	}
	return nil
}

// Scoped binds an owner so a component only sees its own keys.
func (s *Settings) Scoped(owner string) *ScopedSettings {
	return &ScopedSettings{settings: s, owner: owner}
}

// ScopedSettings is a Settings view restricted to one owner.
type ScopedSettings struct {
	settings *Settings
	owner    string
}

func (s *ScopedSettings) Owner() string { return s.owner }

func (s *ScopedSettings) GetString(key, fallback string) string {
	return s.settings.GetString(s.owner, key, fallback)
}

func (s *ScopedSettings) GetInt(key string, fallback int64) (int64, error) {
	return s.settings.GetInt(s.owner, key, fallback)
}

func (s *ScopedSettings) GetBool(key string, fallback bool) bool {
	return s.settings.GetBool(s.owner, key, fallback)
}

func (s *ScopedSettings) GetList(key string) ([]string, error) {
	return s.settings.GetList(s.owner, key)
}

func (s *ScopedSettings) Set(key, value string) error {
	return s.settings.Set(s.owner, key, value)
}

func (s *ScopedSettings) Append(key, value string) error {
	return s.settings.Append(s.owner, key, value)
}
