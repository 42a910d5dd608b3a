package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	return s
}

func TestUpsertUser(t *testing.T) {
	s := openTestStore(t)

	u, err := s.UpsertUser(42, "tester", "Test", "User")
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.TgID)
	assert.Equal(t, "tester", u.Username)

	// Same profile: no second row.
	again, err := s.UpsertUser(42, "tester", "Test", "User")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	// Changed username is picked up in place.
	renamed, err := s.UpsertUser(42, "renamed", "Test", "User")
	require.NoError(t, err)
	assert.Equal(t, u.ID, renamed.ID)
	assert.Equal(t, "renamed", renamed.Username)

	var count int64
	require.NoError(t, s.db.Model(&User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	key := SessionKey(42, 77)
	assert.Equal(t, "42:77", key)

	// Absent session reads as empty, not as an error.
	data, err := s.GetSession(key)
	require.NoError(t, err)
	assert.Empty(t, data)

	data["voice_count"] = float64(3)
	data["mode"] = "tables"
	require.NoError(t, s.PutSession(key, data))

	got, err := s.GetSession(key)
	require.NoError(t, err)
	assert.Equal(t, float64(3), got["voice_count"])
	assert.Equal(t, "tables", got["mode"])

	// Overwrite under the same key.
	require.NoError(t, s.PutSession(key, map[string]any{"voice_count": float64(4)}))
	got, err = s.GetSession(key)
	require.NoError(t, err)
	assert.Equal(t, float64(4), got["voice_count"])
	assert.NotContains(t, got, "mode")
}

func TestSaveTranscript(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveTranscript(42, "привет мир"))
	require.NoError(t, s.SaveTranscript(42, "покажи таблицу"))
	require.NoError(t, s.SaveTranscript(7, "другой пользователь"))

	n, err := s.TranscriptCount(42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.TranscriptCount(999)
	require.NoError(t, err)
	assert.Zero(t, n)
}
