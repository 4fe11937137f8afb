package notification

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a push notification.
type EventType string

const (
	EventTypePriceProposed        EventType = "price_proposed"
	EventTypeNegotiationCountered EventType = "negotiation_countered"
	EventTypeNegotiationAccepted  EventType = "negotiation_accepted"
	EventTypeStatusUpdated        EventType = "status_updated"
	EventTypeChatMessage          EventType = "chat_message"
	// EventTypeConnected is the first frame on every new connection. Receivers
	// treat it as a prompt to reconcile.
	EventTypeConnected EventType = "connected"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrPushTimeout      = errors.New("push timed out")
)

// Event is an ephemeral, best-effort hint derived from a durable state change.
// It carries no sequence number; ID only helps receivers drop duplicates.
type Event struct {
	ID           string          `json:"id"`
	Type         EventType       `json:"type"`
	TargetUserID uuid.UUID       `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload"`
	EmittedAt    time.Time       `json:"emittedAt"`
}

// NewEvent creates an event for target with a JSON-encoded payload.
func NewEvent(eventType EventType, target uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		TargetUserID: target,
		Payload:      data,
		EmittedAt:    time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// PriceProposedPayload is sent to the client when the mover proposes a price.
type PriceProposedPayload struct {
	MissionID     uuid.UUID   `json:"missionId"`
	ProposedPrice json.Number `json:"proposedPrice"`
	MoverName     string      `json:"moverName"`
}

// NegotiationCounteredPayload is sent to the mover when the client counters.
type NegotiationCounteredPayload struct {
	MissionID   uuid.UUID   `json:"missionId"`
	ClientPrice json.Number `json:"clientPrice"`
	ClientName  string      `json:"clientName"`
}

// NegotiationAcceptedPayload is sent to the side whose price was accepted.
type NegotiationAcceptedPayload struct {
	MissionID     uuid.UUID   `json:"missionId"`
	AcceptedPrice json.Number `json:"acceptedPrice"`
}

// StatusUpdatedPayload is sent to both sides on every status change.
type StatusUpdatedPayload struct {
	MissionID uuid.UUID `json:"missionId"`
	NewStatus string    `json:"newStatus"`
	Message   string    `json:"message"`
}

// ChatMessagePayload is sent to the non-sending side of a chat.
type ChatMessagePayload struct {
	ChatID         uuid.UUID `json:"chatId"`
	MessageID      string    `json:"messageId"`
	SenderName     string    `json:"senderName"`
	MessageContent string    `json:"messageContent"`
}

// ConnectedPayload opens every push connection.
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	Reconcile    bool   `json:"reconcile"`
}
