package models

import "github.com/goccy/go-json"

// Client -> server events.
const (
	EventJoinGroup      = "joinGroup"
	EventLeaveGroup     = "leaveGroup"
	EventStartTyping    = "startTyping"
	EventStopTyping     = "stopTyping"
	EventGroupMessage   = "groupMessage"
	EventGetTypingUsers = "getTypingUsers"
)

// Server -> client events.
const (
	EventConnection        = "connection"
	EventAck               = "ack"
	EventError             = "error"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventMessageDeleted    = "messageDeleted"
	EventServerMessage     = "message"
)

// Event is the envelope for every frame the server writes.
type Event struct {
	Type      string `json:"type"`
	GroupId   string `json:"groupId,omitempty"`
	Ack       string `json:"ack,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Inbound is a frame received from a client. Data is decoded by the handler
// for Type.
type Inbound struct {
	Type string          `json:"type"`
	Ack  string          `json:"ack,omitempty"`
	Data json.RawMessage `json:"data"`
}

// BroadcastMessage is a pre-encoded event addressed to a group room (or to
// every connection when GroupId is empty). Exclude names a connection that
// must not receive it.
type BroadcastMessage struct {
	GroupId string `json:"groupId"`
	Exclude string `json:"exclude,omitempty"`
	Payload []byte `json:"payload"`
}

// Specific event data structures

type GroupRequest struct {
	GroupId string `json:"groupId"`
}

type GroupMessageRequest struct {
	GroupId string `json:"groupId"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type ConnectionData struct {
	Status   string   `json:"status"`
	ClientId string   `json:"clientId"`
	Message  string   `json:"message"`
	User     Identity `json:"user"`
}

type RoomAck struct {
	Status  string `json:"status"`
	GroupId string `json:"groupId"`
}

type SentAck struct {
	Status    string `json:"status"`
	MessageId string `json:"messageId"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TypingData struct {
	GroupId  string `json:"groupId"`
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

type TypingStoppedData struct {
	GroupId string `json:"groupId"`
	UserId  string `json:"userId"`
}

type TypingUser struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

type TypingUsersData struct {
	GroupId     string       `json:"groupId"`
	TypingUsers []TypingUser `json:"typingUsers"`
}

type MessageDeletedData struct {
	Id      string `json:"id"`
	GroupId string `json:"groupId"`
}

type ServerMessageData struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}
