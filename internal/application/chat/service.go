// Package chat runs the message threads attached to service requests.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/moving-hub/moving-hub/internal/apperror"
	"github.com/moving-hub/moving-hub/internal/domain/chat"
	"github.com/moving-hub/moving-hub/internal/domain/notification"
	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
	"github.com/moving-hub/moving-hub/internal/domain/user"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Service handles chat operations.
type Service struct {
	chats     chat.Repository
	requests  servicerequest.Repository
	users     user.Repository
	publisher notification.Publisher
	ids       *idGenerator
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService creates a chat service.
func NewService(
	chats chat.Repository,
	requests servicerequest.Repository,
	users user.Repository,
	publisher notification.Publisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		chats:     chats,
		requests:  requests,
		users:     users,
		publisher: publisher,
		ids:       newIDGenerator(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("service", "chat").Logger(),
	}
}

// PostInput is a human message.
type PostInput struct {
	ChatID      uuid.UUID
	SenderID    uuid.UUID
	Content     string
	MessageType string
	ReplyTo     *string
}

// EnsureChat returns the chat of a service request, creating it on first use.
func (s *Service) EnsureChat(ctx context.Context, serviceRequestID uuid.UUID) (*chat.Chat, error) {
	existing, err := s.chats.GetByServiceRequest(ctx, serviceRequestID)
	if err != nil {
		return nil, apperror.Internal("get chat", err)
	}
	if existing != nil {
		return existing, nil
	}

	req, err := s.requests.GetByID(ctx, serviceRequestID)
	if err != nil {
		return nil, apperror.Internal("get service request", err)
	}
	if req == nil {
		return nil, apperror.NotFound("service request", serviceRequestID.String())
	}

	c, err := s.chats.Create(ctx, chat.NewChat(req, s.now()))
	if err != nil {
		return nil, apperror.Internal("create chat", err)
	}
	s.logger.Debug().Str("chat_id", c.ID.String()).Str("request_id", serviceRequestID.String()).Msg("chat ready")
	return c, nil
}

// PostMessage appends a human message and notifies the other side.
func (s *Service) PostMessage(ctx context.Context, in PostInput) (*chat.Message, error) {
	if err := chat.ValidateContent(in.Content); err != nil {
		return nil, err
	}
	msgType, err := chat.ParseHumanMessageType(in.MessageType)
	if err != nil {
		return nil, err
	}
	if in.ReplyTo != nil {
		trimmed := strings.TrimSpace(*in.ReplyTo)
		if trimmed == "" {
			in.ReplyTo = nil
		} else {
			in.ReplyTo = &trimmed
		}
	}

	c, side, err := s.partyChat(ctx, in.ChatID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if !c.AcceptsMessages() {
		return nil, chat.ErrClosed
	}
	if in.ReplyTo != nil {
		parent, err := s.chats.GetMessage(ctx, c.ID, *in.ReplyTo)
		if err != nil {
			return nil, apperror.Internal("get reply target", err)
		}
		if parent == nil {
			return nil, apperror.Validation("replyTo", "message %s is not part of this chat", *in.ReplyTo)
		}
	}

	now := s.now()
	senderID := in.SenderID
	msg := &chat.Message{
		ID:          s.ids.next(now),
		ChatID:      c.ID,
		SenderType:  &side,
		SenderID:    &senderID,
		MessageType: msgType,
		Content:     in.Content,
		ReplyTo:     in.ReplyTo,
		Status:      chat.MessageStatusSent,
		CreatedAt:   now,
	}
	updated, err := s.chats.AppendMessage(ctx, msg)
	if err != nil {
		return nil, apperror.Internal("append message", err)
	}
	if updated == nil {
		return nil, apperror.NotFound("chat", in.ChatID.String())
	}

	s.logger.Info().
		Str("chat_id", c.ID.String()).
		Str("message_id", msg.ID).
		Str("user_id", senderID.String()).
		Msg("message posted")

	s.notify(ctx, updated, msg, side)
	return msg, nil
}

// PostSystemMessage appends an engine-authored message. Unread counters do not
// change and no chat_message event is emitted.
func (s *Service) PostSystemMessage(ctx context.Context, chatID uuid.UUID, content string) (*chat.Message, error) {
	if err := chat.ValidateContent(content); err != nil {
		return nil, err
	}
	now := s.now()
	msg := &chat.Message{
		ID:          s.ids.next(now),
		ChatID:      chatID,
		MessageType: chat.MessageTypeSystem,
		Content:     content,
		Status:      chat.MessageStatusSent,
		CreatedAt:   now,
	}
	updated, err := s.chats.AppendMessage(ctx, msg)
	if err != nil {
		return nil, apperror.Internal("append system message", err)
	}
	if updated == nil {
		return nil, apperror.NotFound("chat", chatID.String())
	}
	return msg, nil
}

// MarkRead clears the unread counter of side and returns how many messages
// changed to read.
func (s *Service) MarkRead(ctx context.Context, chatID uuid.UUID, side servicerequest.Side) (int, error) {
	if side != servicerequest.SideClient && side != servicerequest.SideMover {
		return 0, apperror.Validation("side", "unknown side %q", side)
	}
	n, err := s.chats.MarkRead(ctx, chatID, side, s.now())
	if err != nil {
		return 0, apperror.Internal("mark read", err)
	}
	return n, nil
}

// MarkReadAs marks the chat read for whichever side userID is.
func (s *Service) MarkReadAs(ctx context.Context, chatID, userID uuid.UUID) (*chat.Chat, error) {
	_, side, err := s.partyChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.MarkRead(ctx, chatID, side); err != nil {
		return nil, err
	}
	c, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, apperror.Internal("get chat", err)
	}
	if c == nil {
		return nil, apperror.NotFound("chat", chatID.String())
	}
	return c, nil
}

// SetStatus archives or closes a chat.
func (s *Service) SetStatus(ctx context.Context, chatID uuid.UUID, status chat.Status) error {
	switch status {
	case chat.StatusActive, chat.StatusArchived, chat.StatusClosed:
	default:
		return apperror.Validation("status", "unknown chat status %q", status)
	}
	if err := s.chats.UpdateStatus(ctx, chatID, status, s.now()); err != nil {
		return apperror.Internal("update chat status", err)
	}
	s.logger.Info().Str("chat_id", chatID.String()).Str("chat_status", string(status)).Msg("chat status changed")
	return nil
}

// GetChat returns a chat visible to userID.
func (s *Service) GetChat(ctx context.Context, chatID, userID uuid.UUID) (*chat.Chat, error) {
	c, _, err := s.partyChat(ctx, chatID, userID)
	return c, err
}

// GetChatByRequest returns the chat of a service request visible to userID.
// A party's first access opens the chat, so that the first message has a
// thread to go to.
func (s *Service) GetChatByRequest(ctx context.Context, serviceRequestID, userID uuid.UUID) (*chat.Chat, error) {
	c, err := s.chats.GetByServiceRequest(ctx, serviceRequestID)
	if err != nil {
		return nil, apperror.Internal("get chat", err)
	}
	if c == nil {
		req, err := s.requests.GetByID(ctx, serviceRequestID)
		if err != nil {
			return nil, apperror.Internal("get service request", err)
		}
		if req == nil {
			return nil, apperror.NotFound("chat", serviceRequestID.String())
		}
		if _, ok := req.SideOf(userID); !ok {
			return nil, apperror.NotFound("chat", serviceRequestID.String())
		}
		return s.EnsureChat(ctx, serviceRequestID)
	}
	if _, ok := c.SideOf(userID); !ok {
		return nil, apperror.NotFound("chat", serviceRequestID.String())
	}
	return c, nil
}

// ListChats lists the chats userID takes part in, most recent activity first.
func (s *Service) ListChats(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*chat.Chat, error) {
	if offset < 0 {
		offset = 0
	}
	list, err := s.chats.ListByUser(ctx, userID, pageSize(limit), offset)
	if err != nil {
		return nil, apperror.Internal("list chats", err)
	}
	return list, nil
}

// ListMessages pages through a chat, oldest first. before is an exclusive
// message id cursor.
func (s *Service) ListMessages(ctx context.Context, chatID, userID uuid.UUID, before string, limit int) ([]*chat.Message, error) {
	if _, _, err := s.partyChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	list, err := s.chats.ListMessages(ctx, chatID, before, pageSize(limit))
	if err != nil {
		return nil, apperror.Internal("list messages", err)
	}
	return list, nil
}

func (s *Service) partyChat(ctx context.Context, chatID, userID uuid.UUID) (*chat.Chat, servicerequest.Side, error) {
	c, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, "", apperror.Internal("get chat", err)
	}
	if c == nil {
		return nil, "", apperror.NotFound("chat", chatID.String())
	}
	side, ok := c.SideOf(userID)
	if !ok {
		return nil, "", apperror.NotFound("chat", chatID.String())
	}
	return c, side, nil
}

// notify emits chat_message to the other side. A live delivery moves the
// message to delivered.
func (s *Service) notify(ctx context.Context, c *chat.Chat, msg *chat.Message, senderSide servicerequest.Side) {
	target := c.Counterpart(senderSide)
	evt, err := notification.NewEvent(notification.EventTypeChatMessage, target, notification.ChatMessagePayload{
		ChatID:         c.ID,
		MessageID:      msg.ID,
		SenderName:     s.senderName(ctx, *msg.SenderID, senderSide),
		MessageContent: msg.Content,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to build chat event")
		return
	}

	messageID := msg.ID
	s.publisher.Emit(target, evt, func(delivered int) {
		if delivered == 0 {
			return
		}
		if err := s.chats.MarkDelivered(context.Background(), messageID); err != nil {
			s.logger.Warn().Err(err).Str("message_id", messageID).Msg("failed to mark message delivered")
		}
	})
}

func (s *Service) senderName(ctx context.Context, userID uuid.UUID, side servicerequest.Side) string {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil || u == nil {
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to resolve sender name")
		}
		if side == servicerequest.SideMover {
			return "Mover"
		}
		return "Client"
	}
	return u.Name()
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
