package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moving-hub/moving-hub/internal/domain/chat"
	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

const chatColumns = `id, service_request_id, client_id, mover_id, status, unread_by_client, unread_by_mover,
	last_message_at, last_message_preview, created_at, updated_at`

const messageColumns = `id, chat_id, sender_type, sender_id, message_type, content, reply_to, status, read_at, created_at`

// ChatRepository implements chat.Repository.
type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

func (r *ChatRepository) Create(ctx context.Context, c *chat.Chat) (*chat.Chat, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chats
		(id, service_request_id, client_id, mover_id, status, unread_by_client, unread_by_mover,
		 last_message_at, last_message_preview, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (service_request_id) DO NOTHING
	`, c.ID, c.ServiceRequestID, c.ClientID, c.MoverID, c.Status, c.UnreadByClient, c.UnreadByMover,
		c.LastMessageAt, c.LastMessagePreview, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r.GetByServiceRequest(ctx, c.ServiceRequestID)
}

func (r *ChatRepository) GetByID(ctx context.Context, chatID uuid.UUID) (*chat.Chat, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	return scanChat(row)
}

func (r *ChatRepository) GetByServiceRequest(ctx context.Context, serviceRequestID uuid.UUID) (*chat.Chat, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE service_request_id=$1`, serviceRequestID)
	return scanChat(row)
}

func (r *ChatRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*chat.Chat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+chatColumns+` FROM chats
		WHERE client_id=$1 OR mover_id=$1
		ORDER BY last_message_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*chat.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ChatRepository) UpdateStatus(ctx context.Context, chatID uuid.UUID, status chat.Status, updatedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE chats SET status=$1, updated_at=$2 WHERE id=$3`, status, updatedAt, chatID)
	return err
}

func (r *ChatRepository) AppendMessage(ctx context.Context, msg *chat.Message) (*chat.Chat, error) {
	var result *chat.Chat
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var status chat.Status
		err := tx.QueryRow(ctx, `SELECT status FROM chats WHERE id=$1 FOR UPDATE`, msg.ChatID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if status == chat.StatusClosed && !msg.IsSystem() {
			return chat.ErrClosed
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_messages
			(id, chat_id, sender_type, sender_id, message_type, content, reply_to, status, read_at, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, msg.ID, msg.ChatID, msg.SenderType, msg.SenderID, msg.MessageType, msg.Content, msg.ReplyTo,
			msg.Status, msg.ReadAt, msg.CreatedAt); err != nil {
			return err
		}
		clientDelta, moverDelta := msg.UnreadDelta()
		row := tx.QueryRow(ctx, `
			UPDATE chats
			SET unread_by_client = unread_by_client + $1,
			    unread_by_mover = unread_by_mover + $2,
			    last_message_preview = CASE WHEN $3 >= last_message_at THEN $4 ELSE last_message_preview END,
			    last_message_at = GREATEST(last_message_at, $3),
			    updated_at = $3
			WHERE id=$5
			RETURNING `+chatColumns, clientDelta, moverDelta, msg.CreatedAt, chat.Preview(msg.Content), msg.ChatID)
		result, err = scanChat(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ChatRepository) GetMessage(ctx context.Context, chatID uuid.UUID, messageID string) (*chat.Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE chat_id=$1 AND id=$2`, chatID, messageID)
	return scanMessage(row)
}

func (r *ChatRepository) ListMessages(ctx context.Context, chatID uuid.UUID, before string, limit int) ([]*chat.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE chat_id=$1`
	args := []interface{}{chatID}
	idx := 2
	if before != "" {
		query += " AND (created_at, id) < (SELECT created_at, id FROM chat_messages WHERE id=$" + itoa(idx) + ")"
		args = append(args, before)
		idx++
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT $" + itoa(idx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseMessages(out)
	return out, nil
}

func (r *ChatRepository) MarkDelivered(ctx context.Context, messageID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE chat_messages SET status=$1 WHERE id=$2 AND status=$3`,
		chat.MessageStatusDelivered, messageID, chat.MessageStatusSent)
	return err
}

func (r *ChatRepository) MarkRead(ctx context.Context, chatID uuid.UUID, side servicerequest.Side, readAt time.Time) (int, error) {
	counter := "unread_by_client"
	if side == servicerequest.SideMover {
		counter = "unread_by_mover"
	}
	var changed int
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE chats SET `+counter+`=0, updated_at=$1 WHERE id=$2`, readAt, chatID); err != nil {
			return err
		}
		res, err := tx.Exec(ctx, `
			UPDATE chat_messages SET status=$1, read_at=$2
			WHERE chat_id=$3 AND status<>$1 AND (sender_type IS NULL OR sender_type<>$4)
		`, chat.MessageStatusRead, readAt, chatID, side)
		if err != nil {
			return err
		}
		changed = int(res.RowsAffected())
		return nil
	})
	return changed, err
}

func reverseMessages(msgs []*chat.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func scanChat(row pgx.Row) (*chat.Chat, error) {
	var c chat.Chat
	if err := row.Scan(&c.ID, &c.ServiceRequestID, &c.ClientID, &c.MoverID, &c.Status, &c.UnreadByClient,
		&c.UnreadByMover, &c.LastMessageAt, &c.LastMessagePreview, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func scanMessage(row pgx.Row) (*chat.Message, error) {
	var m chat.Message
	if err := row.Scan(&m.ID, &m.ChatID, &m.SenderType, &m.SenderID, &m.MessageType, &m.Content, &m.ReplyTo,
		&m.Status, &m.ReadAt, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
