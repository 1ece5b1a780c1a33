package domain

import (
	"strings"
	"time"
)

// User is an account that can sign in and own prompts.
type User struct {
	Timestamps
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash,omitempty"` // never sent to clients
	DisplayName  string `json:"display_name"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

// Profile is the public view of a signed-in user.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Profile returns the public projection of the user.
func (u *User) Profile() *Profile {
	return &Profile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.Name(),
		PhotoURL:    u.PhotoURL,
	}
}

// Name returns the display name, falling back to the local part of the email.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

// NormalizeEmail lower-cases and trims an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Timestamps holds creation and modification times.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InitTimestamps sets both CreatedAt and UpdatedAt to now.
func (t *Timestamps) InitTimestamps() {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
}

// Touch updates the UpdatedAt timestamp.
func (t *Timestamps) Touch() {
	t.UpdatedAt = time.Now().UTC()
}
