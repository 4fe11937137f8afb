package chat

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

// Repository defines persistence for chats and their messages.
type Repository interface {
	// Create inserts c unless a chat already exists for its service request,
	// and returns the stored chat either way.
	Create(ctx context.Context, c *Chat) (*Chat, error)
	GetByID(ctx context.Context, chatID uuid.UUID) (*Chat, error)
	GetByServiceRequest(ctx context.Context, serviceRequestID uuid.UUID) (*Chat, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Chat, error)
	UpdateStatus(ctx context.Context, chatID uuid.UUID, status Status, updatedAt time.Time) error

	// AppendMessage inserts msg, advances lastMessageAt monotonically and, for
	// human messages, increments the unread counter of the side opposite to the
	// sender, all in one transaction. Returns the updated chat.
	AppendMessage(ctx context.Context, msg *Message) (*Chat, error)
	GetMessage(ctx context.Context, chatID uuid.UUID, messageID string) (*Message, error)
	// ListMessages returns messages ordered by creation, oldest first. A non-empty
	// before restricts the page to messages older than that message id.
	ListMessages(ctx context.Context, chatID uuid.UUID, before string, limit int) ([]*Message, error)
	// MarkDelivered moves a sent message to delivered; other states are left alone.
	MarkDelivered(ctx context.Context, messageID string) error
	// MarkRead resets the unread counter of side and marks every message not
	// sent by side as read. Returns the number of messages that changed.
	MarkRead(ctx context.Context, chatID uuid.UUID, side servicerequest.Side, readAt time.Time) (int, error)
}
