// Package events names the frames exchanged over the event channel and the
// contract services use to push them to connected users.
package events

// Emitter delivers server-originated events to connected clients.
type Emitter interface {
	// ToUser sends to every live connection of userID.
	ToUser(userID, event string, data any)
	// ToRoom sends to every connection that joined chatID.
	ToRoom(chatID, event string, data any)
	// Broadcast sends to every live connection.
	Broadcast(event string, data any)
}

// Presence answers whether a user currently holds a live connection.
type Presence interface {
	IsOnline(userID string) bool
}

// Inbound events.
const (
	SendChatRequest    = "sendChatRequest"
	AcceptChatRequest  = "acceptChatRequest"
	RejectChatRequest  = "rejectChatRequest"
	CancelChatRequest  = "cancelChatRequest"
	BlockUser          = "blockUser"
	UnblockUser        = "unblockUser"
	RemoveFriend       = "removeFriend"
	JoinChat           = "joinChat"
	LeaveChat          = "leaveChat"
	LoadMessages       = "loadMessages"
	SendMessage        = "sendMessage"
	Typing             = "typing"
	StopTyping         = "stopTyping"
	MarkMessageAsRead  = "markMessageAsRead"
	MarkChatAsRead     = "markChatAsRead"
	ClearChat          = "clearChat"
	DeleteMessage      = "deleteMessage"
	UpdateStatus       = "updateStatus"
	UserActivity       = "userActivity"
	AddReaction        = "addReaction"
	RemoveReaction     = "removeReaction"
	GetIncognitoStatus = "getIncognitoStatus"
	ToggleIncognito    = "toggleIncognito"
)

// Outbound events.
const (
	UserStatus                  = "userStatus"
	ChatRequestsLoaded          = "chatRequestsLoaded"
	OfflineMessagesNotification = "offlineMessagesNotification"
	ChatRequestSent             = "chatRequestSent"
	NewChatRequest              = "newChatRequest"
	ChatRequestAccepted         = "chatRequestAccepted"
	ChatRequestRejected         = "chatRequestRejected"
	ChatRequestCancelled        = "chatRequestCancelled"
	ChatRequestError            = "chatRequestError"
	UserBlocked                 = "userBlocked"
	BlockUserError              = "blockUserError"
	UserUnblocked               = "userUnblocked"
	UnblockUserError            = "unblockUserError"
	FriendRemoved               = "friendRemoved"
	RemoveFriendError           = "removeFriendError"
	JoinedChat                  = "joinedChat"
	JoinChatError               = "joinChatError"
	MessagesLoaded              = "messagesLoaded"
	MessagesLoadError           = "messagesLoadError"
	ReceiveMessage              = "receiveMessage"
	NewMessageForSidebar        = "newMessageForSidebar"
	MessageSent                 = "messageSent"
	MessageDelivered            = "messageDelivered"
	SendMessageError            = "sendMessageError"
	MessageRead                 = "messageRead"
	ChatRead                    = "chatRead"
	ReadError                   = "readError"
	ChatCleared                 = "chatCleared"
	ChatClearSuccess            = "chatClearSuccess"
	ChatClearError              = "chatClearError"
	MessageDeleted              = "messageDeleted"
	DeleteMessageError          = "deleteMessageError"
	StatusUpdateSuccess         = "statusUpdateSuccess"
	StatusUpdateError           = "statusUpdateError"
	ReactionUpdated             = "reactionUpdated"
	ReactionError               = "reactionError"
	IncognitoStatus             = "incognitoStatus"
	IncognitoEnabled            = "incognitoEnabled"
	IncognitoDisabled           = "incognitoDisabled"
	IncognitoError              = "incognitoError"
	Error                       = "error"
)

// Reasons carried by messageDeleted and chatCleared.
const (
	ReasonIncognito        = "incognito"
	ReasonIncognitoExpired = "incognito_expired"
	ReasonSender           = "sender"
	ReasonCleared          = "cleared"
)
