package models

import "time"

// IncognitoRecord marks a chat as auto-deleting until ExpiresAt. Each participant
// stores its own copy.
type IncognitoRecord struct {
	ChatID    string    `json:"chatId" bson:"chatId"`
	EnabledAt time.Time `json:"enabledAt" bson:"enabledAt"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`
}

// Live reports whether the record has not yet expired at now.
func (r IncognitoRecord) Live(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// IncognitoStatus is the effective incognito state of a chat.
type IncognitoStatus struct {
	ChatID    string     `json:"chatId"`
	Enabled   bool       `json:"enabled"`
	EnabledAt *time.Time `json:"enabledAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// EffectiveIncognito merges both participants' records for chatID. The chat is
// incognito if either side holds a live record; the earliest live expiry wins.
func EffectiveIncognito(chatID string, now time.Time, a, b []IncognitoRecord) IncognitoStatus {
	status := IncognitoStatus{ChatID: chatID}
	for _, recs := range [][]IncognitoRecord{a, b} {
		for _, rec := range recs {
			if rec.ChatID != chatID || !rec.Live(now) {
				continue
			}
			if status.ExpiresAt == nil || rec.ExpiresAt.Before(*status.ExpiresAt) {
				expires, enabled := rec.ExpiresAt, rec.EnabledAt
				status.ExpiresAt = &expires
				status.EnabledAt = &enabled
			}
			status.Enabled = true
		}
	}
	return status
}

// PartitionIncognito splits records into expired and live at now.
func PartitionIncognito(recs []IncognitoRecord, now time.Time) (expired, live []IncognitoRecord) {
	for _, rec := range recs {
		if rec.Live(now) {
			live = append(live, rec)
		} else {
			expired = append(expired, rec)
		}
	}
	return expired, live
}
