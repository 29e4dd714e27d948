package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_JSON(t *testing.T) {
	t.Run("Marshal", func(t *testing.T) {
		out, err := json.Marshal(NewDate(1990, time.March, 14))
		require.NoError(t, err)
		assert.Equal(t, `"1990-03-14"`, string(out))
	})

	t.Run("Unmarshal", func(t *testing.T) {
		var d Date
		require.NoError(t, json.Unmarshal([]byte(`"1990-03-14"`), &d))
		assert.Equal(t, 1990, d.Year())
		assert.Equal(t, time.March, d.Month())
		assert.Equal(t, 14, d.Day())
	})

	t.Run("RoundTrip", func(t *testing.T) {
		original := NewDate(2000, time.December, 31)
		out, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded Date
		require.NoError(t, json.Unmarshal(out, &decoded))
		assert.True(t, decoded.Equal(original.Time))
	})

	t.Run("RejectsBadFormats", func(t *testing.T) {
		for _, raw := range []string{
			`"14.03.1990"`,
			`"1990-03-14T00:00:00Z"`,
			`"not a date"`,
			`19900314`,
		} {
			var d Date
			assert.Error(t, json.Unmarshal([]byte(raw), &d), raw)
		}
	})
}

func TestDate_Scan(t *testing.T) {
	t.Run("FromTime", func(t *testing.T) {
		var d Date
		require.NoError(t, d.Scan(time.Date(1990, time.March, 14, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t, "1990-03-14", d.Format("2006-01-02"))
	})

	t.Run("FromString", func(t *testing.T) {
		var d Date
		require.NoError(t, d.Scan("1990-03-14"))
		assert.Equal(t, 1990, d.Year())
	})

	t.Run("RejectsOtherTypes", func(t *testing.T) {
		var d Date
		assert.Error(t, d.Scan(19900314))
	})
}

func TestUser_Snapshot(t *testing.T) {
	avatar := "https://cdn.example.com/avatars/7/a.png"
	u := &User{
		ID:        7,
		Username:  "anna",
		Email:     "anna@example.com",
		AvatarURL: &avatar,
		Status:    UserStatusVerified,
		Role:      UserRoleAdmin,
	}

	snap := u.Snapshot()
	assert.Equal(t, int64(7), snap.ID)
	assert.Equal(t, "anna", snap.Username)
	assert.Equal(t, UserRoleAdmin, snap.Role)
	require.NotNil(t, snap.AvatarURL)
	assert.Equal(t, avatar, *snap.AvatarURL)
}

func TestUser_PasswordHashNeverSerialized(t *testing.T) {
	out, err := json.Marshal(User{ID: 7, Email: "anna@example.com", PasswordHash: "$2a$10$secret"})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
}
