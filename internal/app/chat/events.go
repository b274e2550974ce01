package chat

import (
	"fmt"

	"tempchat/internal/app/user"
)

// Events emitted to connections.
const (
	EventMessageCreated     = "message_created"
	EventMessageExpired     = "message_expired"
	EventPresenceCount      = "presence_count"
	EventTypingCount        = "typing_count"
	EventConnectionRejected = "connection_rejected"
	EventProfileUpdated     = "profile_updated"
	EventWelcome            = "welcome"
	EventHistory            = "history"
	EventError              = "error"
)

// AuthorPayload is the author block attached to every message.
type AuthorPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// MessagePayload is the client view of a message.
type MessagePayload struct {
	ID               int64         `json:"id"`
	Author           AuthorPayload `json:"author"`
	Content          string        `json:"content,omitempty"`
	Image            []byte        `json:"image,omitempty"`
	ImageType        string        `json:"imageType,omitempty"`
	ImageURL         string        `json:"imageUrl,omitempty"`
	CreatedAt        int64         `json:"createdAt"`
	ExpiresLabel     string        `json:"expiresLabel"`
	IdempotencyToken string        `json:"idempotencyToken,omitempty"`
}

// ExpiredPayload announces the removal of a message.
type ExpiredPayload struct {
	ID int64 `json:"id"`
}

// CountPayload carries presence and typing aggregates.
type CountPayload struct {
	N int `json:"n"`
}

// RejectedPayload explains why a connection was refused.
type RejectedPayload struct {
	Reason string `json:"reason"`
}

// ProfilePayload announces a display name or color change.
type ProfilePayload struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Color    string `json:"color"`
}

// WelcomePayload tells a newly admitted connection who it is.
type WelcomePayload struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Color    string `json:"color"`
}

// HistoryPayload replays the recent live messages to a new connection.
type HistoryPayload struct {
	Messages []MessagePayload `json:"messages"`
}

// ErrorPayload reports a rejected inbound operation back to its sender.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// ImageURL is the path clients fetch an image from while its message is live.
func ImageURL(id int64) string {
	return fmt.Sprintf("/api/images/%d", id)
}

// newMessagePayload renders msg for clients; token is echoed verbatim.
func newMessagePayload(msg Message, author user.User, token string) MessagePayload {
	payload := MessagePayload{
		ID: msg.ID,
		Author: AuthorPayload{
			ID:    msg.AuthorID,
			Name:  author.Name,
			Color: author.Color,
		},
		Content:          msg.Content,
		CreatedAt:        msg.CreatedAt.UnixMilli(),
		ExpiresLabel:     msg.ExpiresLabel(),
		IdempotencyToken: token,
	}

	if msg.HasImage() {
		payload.ImageType = msg.ImageType
		payload.ImageURL = ImageURL(msg.ID)
		payload.Image = msg.Image
	}

	return payload
}
