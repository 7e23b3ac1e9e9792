// Package permissions decides whether two users may exchange messages.
package permissions

import (
	"fmt"

	"pairchat/internal/errs"
	"pairchat/internal/models"
)

// Code identifies why messaging was denied.
type Code string

const (
	CodeNoRequest       Code = "NO_REQUEST"
	CodeRequestRejected Code = "REQUEST_REJECTED"
	CodeUserBlocked     Code = "USER_BLOCKED"
	CodeRequestPending  Code = "REQUEST_PENDING"
	CodeNotFriends      Code = "NOT_FRIENDS"
)

// Status is the resolved relationship between two users.
type Status string

const (
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusBlocked  Status = "blocked"
)

// ErrSelfTarget is returned when a user targets themselves.
var ErrSelfTarget = errs.Validation("cannot target yourself")

// DeniedError reports a failed messaging check.
type DeniedError struct {
	Code Code
}

func (e *DeniedError) Error() string {
	switch e.Code {
	case CodeUserBlocked:
		return "messaging is blocked between these users"
	case CodeRequestPending:
		return "chat request is still pending"
	case CodeRequestRejected:
		return "chat request was rejected"
	case CodeNotFriends:
		return "users are no longer friends"
	default:
		return "no chat request exists between these users"
	}
}

func (e *DeniedError) Unwrap() error { return errs.ErrForbidden }

// Permission is the resolved relationship seen from one side.
type Permission struct {
	Status    Status `json:"status"`
	CanChat   bool   `json:"canChat"`
	BlockedBy string `json:"blockedBy,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	SenderID  string `json:"senderId,omitempty"`
}

// AreFriends reports whether a and b share the symmetric friend edge.
func AreFriends(a models.User, b models.User) bool {
	return a.IsFriendWith(b.ID) && b.IsFriendWith(a.ID)
}

// IsBlocked reports whether blocker has blocked target.
func IsBlocked(blocker models.User, targetID string) bool {
	return blocker.HasBlocked(targetID)
}

// Resolve derives the relationship from both users and the latest request of the pair.
func Resolve(a, b models.User, latest *models.ChatRequest) Permission {
	switch {
	case IsBlocked(a, b.ID):
		return Permission{Status: StatusBlocked, BlockedBy: a.ID}
	case IsBlocked(b, a.ID):
		return Permission{Status: StatusBlocked, BlockedBy: b.ID}
	case AreFriends(a, b):
		p := Permission{Status: StatusAccepted, CanChat: true}
		if latest != nil {
			p.RequestID, p.SenderID = latest.ID, latest.SenderID
		}
		return p
	case latest == nil:
		return Permission{Status: StatusNone}
	}

	p := Permission{RequestID: latest.ID, SenderID: latest.SenderID}
	switch latest.Status {
	case models.RequestPending:
		p.Status = StatusPending
	case models.RequestRejected:
		p.Status = StatusRejected
	default:
		p.Status = StatusNone
	}
	return p
}

// CheckMessaging returns nil iff a and b are friends and neither has blocked the other.
func CheckMessaging(a, b models.User, latest *models.ChatRequest) error {
	if a.ID == b.ID {
		return ErrSelfTarget
	}
	if IsBlocked(a, b.ID) || IsBlocked(b, a.ID) {
		return &DeniedError{Code: CodeUserBlocked}
	}
	if AreFriends(a, b) {
		return nil
	}
	if latest == nil {
		return &DeniedError{Code: CodeNoRequest}
	}
	switch latest.Status {
	case models.RequestPending:
		return &DeniedError{Code: CodeRequestPending}
	case models.RequestRejected:
		return &DeniedError{Code: CodeRequestRejected}
	case models.RequestAccepted:
		return &DeniedError{Code: CodeNotFriends}
	}
	return fmt.Errorf("unknown request status %q: %w", latest.Status, &DeniedError{Code: CodeNoRequest})
}
