package chat

import (
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/apperror"
	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

// Status describes chat thread state.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusClosed   Status = "closed"
)

// MessageType describes message content kind.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// MessageStatus describes message delivery state.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// MaxContentLength bounds a message body in runes.
const MaxContentLength = 4000

const previewLength = 120

// ErrClosed is returned when a human posts to a closed chat.
var ErrClosed error = &apperror.ConflictError{Expected: "active|archived", Actual: string(StatusClosed), Message: "chat is closed"}

// Chat is the message thread attached to one service request.
type Chat struct {
	ID                 uuid.UUID `json:"id"`
	ServiceRequestID   uuid.UUID `json:"serviceRequestId"`
	ClientID           uuid.UUID `json:"clientId"`
	MoverID            uuid.UUID `json:"moverId"`
	Status             Status    `json:"status"`
	UnreadByClient     int       `json:"unreadByClient"`
	UnreadByMover      int       `json:"unreadByMover"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	LastMessagePreview string    `json:"lastMessagePreview,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Message is one append-only entry in a chat.
type Message struct {
	ID          string               `json:"id"`
	ChatID      uuid.UUID            `json:"chatId"`
	SenderType  *servicerequest.Side `json:"senderType,omitempty"`
	SenderID    *uuid.UUID           `json:"senderId,omitempty"`
	MessageType MessageType          `json:"messageType"`
	Content     string               `json:"content"`
	ReplyTo     *string              `json:"replyTo,omitempty"`
	Status      MessageStatus        `json:"status"`
	ReadAt      *time.Time           `json:"readAt,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// NewChat builds the chat for a service request.
func NewChat(req *servicerequest.ServiceRequest, now time.Time) *Chat {
	return &Chat{
		ID:               uuid.New(),
		ServiceRequestID: req.ID,
		ClientID:         req.ClientID,
		MoverID:          req.MoverID,
		Status:           StatusActive,
		LastMessageAt:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// SideOf returns which party userID is.
func (c *Chat) SideOf(userID uuid.UUID) (servicerequest.Side, bool) {
	switch userID {
	case c.ClientID:
		return servicerequest.SideClient, true
	case c.MoverID:
		return servicerequest.SideMover, true
	default:
		return "", false
	}
}

// Counterpart returns the user id opposite to side.
func (c *Chat) Counterpart(side servicerequest.Side) uuid.UUID {
	if side == servicerequest.SideMover {
		return c.ClientID
	}
	return c.MoverID
}

// UnreadFor returns the unread counter of side.
func (c *Chat) UnreadFor(side servicerequest.Side) int {
	if side == servicerequest.SideMover {
		return c.UnreadByMover
	}
	return c.UnreadByClient
}

// AcceptsMessages reports whether humans may still post.
func (c *Chat) AcceptsMessages() bool {
	return c.Status != StatusClosed
}

// StatusForRequest maps a terminal request status to the chat status it implies.
func StatusForRequest(s servicerequest.Status) (Status, bool) {
	switch s {
	case servicerequest.StatusCompleted:
		return StatusArchived, true
	case servicerequest.StatusCancelled:
		return StatusClosed, true
	default:
		return "", false
	}
}

// ValidateContent checks a message body.
func ValidateContent(content string) error {
	if content == "" {
		return apperror.Validation("content", "is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return apperror.Validation("content", "exceeds %d characters", MaxContentLength)
	}
	return nil
}

// ParseHumanMessageType validates a type chosen by a human sender.
func ParseHumanMessageType(raw string) (MessageType, error) {
	if raw == "" {
		return MessageTypeText, nil
	}
	t := MessageType(raw)
	if !slices.Contains([]MessageType{MessageTypeText, MessageTypeImage, MessageTypeFile}, t) {
		return "", apperror.Validation("messageType", "unsupported message type %q", raw)
	}
	return t, nil
}

// Preview shortens content for chat listings.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	r := []rune(content)
	return string(r[:previewLength]) + "…"
}

// UnreadDelta returns the unread increments a new message causes for the
// client and mover sides. System messages change nothing.
func (m *Message) UnreadDelta() (client, mover int) {
	if m.IsSystem() || m.SenderType == nil {
		return 0, 0
	}
	if *m.SenderType == servicerequest.SideMover {
		return 1, 0
	}
	return 0, 1
}

// IsSystem reports whether the message was emitted by the negotiation engine.
func (m *Message) IsSystem() bool {
	return m.MessageType == MessageTypeSystem
}
