package models

import (
	"errors"
	"strings"
)

// ChatIDSeparator joins the two participant IDs of a chat key.
const ChatIDSeparator = "_"

var ErrInvalidChatID = errors.New("invalid chat id")

// ChatID returns the pairwise key for a one-to-one chat. It is symmetric in its arguments.
func ChatID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ChatIDSeparator + b
}

// ParseChatID splits a chat key back into its two participants.
func ParseChatID(chatID string) (string, string, error) {
	first, second, ok := strings.Cut(chatID, ChatIDSeparator)
	if !ok || first == "" || second == "" || strings.Contains(second, ChatIDSeparator) {
		return "", "", ErrInvalidChatID
	}
	if ChatID(first, second) != chatID {
		return "", "", ErrInvalidChatID
	}
	return first, second, nil
}

// ChatHasMember reports whether userID is one of the two participants of chatID.
func ChatHasMember(chatID, userID string) bool {
	a, b, err := ParseChatID(chatID)
	if err != nil {
		return false
	}
	return a == userID || b == userID
}

// Counterpart returns the other participant of chatID.
func Counterpart(chatID, userID string) (string, bool) {
	a, b, err := ParseChatID(chatID)
	if err != nil {
		return "", false
	}
	switch userID {
	case a:
		return b, true
	case b:
		return a, true
	}
	return "", false
}
