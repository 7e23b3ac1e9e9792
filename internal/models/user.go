package models

import (
	"fmt"
	"slices"
	"time"
)

// Status is the self-declared presence of a user.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// ParseStatus accepts only the four declared values. Booleans and other
// loosely typed inputs are rejected rather than coerced.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return s, nil
	}
	return "", fmt.Errorf("invalid status %q", raw)
}

// User is a registered account together with its social graph.
type User struct {
	ID             string            `json:"id" bson:"_id"`
	Name           string            `json:"name" bson:"name"`
	Email          string            `json:"email" bson:"email"`
	PasswordHash   string            `json:"-" bson:"passwordHash,omitempty"`
	GoogleID       string            `json:"-" bson:"googleId,omitempty"`
	Avatar         string            `json:"avatar" bson:"avatar"`
	IsOnline       bool              `json:"isOnline" bson:"isOnline"`
	LastSeen       time.Time         `json:"lastSeen" bson:"lastSeen"`
	Status         Status            `json:"status" bson:"status"`
	Friends        []string          `json:"friends" bson:"friends"`
	BlockedUsers   []string          `json:"blockedUsers" bson:"blockedUsers"`
	IncognitoChats []IncognitoRecord `json:"incognitoChats" bson:"incognitoChats"`
	CreatedAt      time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt" bson:"updatedAt"`
}

// IsFriendWith reports whether otherID is in the user's friend set.
func (u User) IsFriendWith(otherID string) bool {
	return slices.Contains(u.Friends, otherID)
}

// HasBlocked reports whether the user has blocked otherID.
func (u User) HasBlocked(otherID string) bool {
	return slices.Contains(u.BlockedUsers, otherID)
}

// IncognitoFor returns the user's record for chatID, if any.
func (u User) IncognitoFor(chatID string) (IncognitoRecord, bool) {
	for _, rec := range u.IncognitoChats {
		if rec.ChatID == chatID {
			return rec, true
		}
	}
	return IncognitoRecord{}, false
}

// UserSummary is the public projection of a user embedded in events.
type UserSummary struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Avatar   string    `json:"avatar"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
	Status   Status    `json:"status"`
}

// Summary projects the user into its public view.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Avatar:   u.Avatar,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
		Status:   u.Status,
	}
}
