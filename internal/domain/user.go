// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 64
)

type (
	UserID         string
	ConversationID string
	ConnID         string
)

// UserProfile is what the user directory knows about a user.
type UserProfile struct {
	ID           UserID   `json:"id"`
	Name         string   `json:"name"`
	Avatar       string   `json:"avatar,omitempty"`
	DeviceTokens []string `json:"-"`
}

// ParseUserID trims and checks an id coming from a client.
func ParseUserID(raw string) (UserID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrInvalidUserID
	}
	if len(id) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(id), nil
}

// ClampName cuts a display name to MaxUsernameLen runes.
func ClampName(name string) string {
	r := []rune(strings.TrimSpace(name))
	if len(r) > MaxUsernameLen {
		r = r[:MaxUsernameLen]
	}
	return string(r)
}
