package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsScalar(t *testing.T) {
	t.Parallel()

	s := NewSettings(newTestDB(t))

	_, ok, err := s.Get("Application", "debug")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, s.GetBool("Application", "debug", true))

	require.NoError(t, s.Set("Application", "debug", "true"))
	assert.True(t, s.GetBool("Application", "debug", false))

	require.NoError(t, s.Set("Application", "debug", "false"))
	assert.False(t, s.GetBool("Application", "debug", true))

	require.NoError(t, s.Set("Application", "debug", "not-a-bool"))
	assert.True(t, s.GetBool("Application", "debug", true))

	assert.Equal(t, "fallback", s.GetString("Application", "missing", "fallback"))
}

func TestSettingsInt(t *testing.T) {
	t.Parallel()

	s := NewSettings(newTestDB(t))

	n, err := s.GetInt("Reporter", "interval", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)

	require.NoError(t, s.Set("Reporter", "interval", " 120 "))
	n, err = s.GetInt("Reporter", "interval", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(120), n)

	require.NoError(t, s.Set("Reporter", "interval", "soon"))
	_, err = s.GetInt("Reporter", "interval", 30)
	assert.Error(t, err)
}

func TestSettingsList(t *testing.T) {
	t.Parallel()

	s := NewSettings(newTestDB(t))

	require.NoError(t, s.Append("ProcessIdentifier", "trash_names", "launcher.*"))
	require.NoError(t, s.Append("ProcessIdentifier", "trash_names", "updater"))
	require.NoError(t, s.Append("Other", "trash_names", "ignored"))

	values, err := s.GetList("ProcessIdentifier", "trash_names")
	require.NoError(t, err)
	assert.Equal(t, []string{"launcher.*", "updater"}, values)

	err = s.Set("ProcessIdentifier", "trash_names", "replace")
	assert.ErrorIs(t, err, ErrReplaceList)

	require.NoError(t, s.Delete("ProcessIdentifier", "trash_names"))
	values, err = s.GetList("ProcessIdentifier", "trash_names")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestScopedSettings(t *testing.T) {
	t.Parallel()

	s := NewSettings(newTestDB(t))
	scoped := s.Scoped("PlaySessionNotifier")

	assert.Equal(t, "PlaySessionNotifier", scoped.Owner())
	require.NoError(t, scoped.Set("send_begin", "false"))
	assert.False(t, scoped.GetBool("send_begin", true))
	assert.True(t, s.GetBool("Other", "send_begin", true))
}
