package models

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

// DefaultImageCaption is stored as the content of image messages sent without
// a caption.
const DefaultImageCaption = "Image message"

type Message struct {
	Id           string
	GroupId      string
	UserId       string
	Username     string
	ProfileImage string
	Type         MessageType
	Content      string
	ImageURL     string
	Embedding    []float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessageView is the client-facing form of a message. URLs are signed and the
// embedding is never included.
type MessageView struct {
	Id               string      `json:"id"`
	GroupId          string      `json:"groupId"`
	UserId           string      `json:"userId"`
	Username         string      `json:"username"`
	UserProfileImage string      `json:"userProfileImage"`
	Content          string      `json:"content"`
	Type             MessageType `json:"type"`
	ImageURL         string      `json:"imageUrl,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}
