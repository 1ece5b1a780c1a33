package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_Name(t *testing.T) {
	tests := []struct {
		name     string
		user     User
		expected string
	}{
		{"display name wins", User{DisplayName: "Ada L.", Email: "ada@example.com"}, "Ada L."},
		{"falls back to local part", User{Email: "Ada@Example.com"}, "Ada"},
		{"no at sign", User{Email: "ada"}, "ada"},
		{"leading at sign", User{Email: "@example.com"}, "@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.user.Name())
		})
	}
}

func TestUser_Profile(t *testing.T) {
	u := &User{ID: "u-1", Email: "ada@example.com", PasswordHash: "secret", PhotoURL: "https://example.com/a.png"}

	p := u.Profile()
	assert.Equal(t, &Profile{
		ID:          "u-1",
		Email:       "ada@example.com",
		DisplayName: "ada",
		PhotoURL:    "https://example.com/a.png",
	}, p)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", NormalizeEmail("  Ada@Example.COM "))
}

func TestTimestamps(t *testing.T) {
	var ts Timestamps
	ts.InitTimestamps()
	assert.Equal(t, ts.CreatedAt, ts.UpdatedAt)

	created := ts.CreatedAt
	ts.Touch()
	assert.Equal(t, created, ts.CreatedAt)
	assert.False(t, ts.UpdatedAt.Before(created))
}
