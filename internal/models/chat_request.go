package models

import "time"

// RequestStatus is the lifecycle state of a chat request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// ChatRequest asks the receiver to open a conversation with the sender.
// PairKey equals ChatID(SenderID, ReceiverID) and carries the one-pending-per-pair rule.
type ChatRequest struct {
	ID         string        `json:"id" db:"id" bson:"_id"`
	SenderID   string        `json:"senderId" db:"sender_id" bson:"senderId"`
	ReceiverID string        `json:"receiverId" db:"receiver_id" bson:"receiverId"`
	PairKey    string        `json:"pairKey" db:"pair_key" bson:"pairKey"`
	Status     RequestStatus `json:"status" db:"status" bson:"status"`
	CreatedAt  time.Time     `json:"createdAt" db:"created_at" bson:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt" db:"updated_at" bson:"updatedAt"`
}

// Involves reports whether userID is the sender or the receiver.
func (r ChatRequest) Involves(userID string) bool {
	return r.SenderID == userID || r.ReceiverID == userID
}

// ChatRequestView is a request with both parties expanded.
type ChatRequestView struct {
	ID        string        `json:"id"`
	Sender    UserSummary   `json:"sender"`
	Receiver  UserSummary   `json:"receiver"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}
