package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserAppGenerationChangesOnWrites(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)

	empty, err := repo.UserAppGeneration()
	require.NoError(t, err)
	assert.Equal(t, Generation{}, empty)

	ua, err := repo.RegisterUserApp(NewUserApp{AppName: "Hades", Path: "/games/hades/Hades.exe"})
	require.NoError(t, err)

	one, err := repo.UserAppGeneration()
	require.NoError(t, err)
	assert.Equal(t, int64(1), one.RowCount)
	assert.Equal(t, ua.ID, one.MaxID)
	assert.NotEmpty(t, one.LastUpdate)

	again, err := repo.UserAppGeneration()
	require.NoError(t, err)
	assert.Equal(t, one, again)

	_, err = repo.AddManualTime(ua.AppID, 60)
	require.NoError(t, err)
	two, err := repo.UserAppGeneration()
	require.NoError(t, err)
	assert.NotEqual(t, one, two)

	require.NoError(t, db.Exec("DELETE FROM user_app WHERE id = ?", ua.ID).Error)
	three, err := repo.UserAppGeneration()
	require.NoError(t, err)
	assert.NotEqual(t, two, three)
}

func TestSettingsGenerationChangesOnWrites(t *testing.T) {
	t.Parallel()

	s := NewSettings(newTestDB(t))

	start, err := s.Generation()
	require.NoError(t, err)

	require.NoError(t, s.Set("Application", "debug", "true"))
	set, err := s.Generation()
	require.NoError(t, err)
	assert.NotEqual(t, start, set)

	require.NoError(t, s.Set("Application", "debug", "false"))
	updated, err := s.Generation()
	require.NoError(t, err)
	assert.Equal(t, set.RowCount, updated.RowCount)
	assert.NotEqual(t, set.LastUpdate, updated.LastUpdate)

	require.NoError(t, s.Delete("Application", "debug"))
	deleted, err := s.Generation()
	require.NoError(t, err)
	assert.Zero(t, deleted.RowCount)
}
