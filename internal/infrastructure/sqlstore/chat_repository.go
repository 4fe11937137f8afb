package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/domain/chat"
	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

const chatColumns = `id, service_request_id, client_id, mover_id, status, unread_by_client, unread_by_mover,
	last_message_at, last_message_preview, created_at, updated_at`

const messageColumns = `id, chat_id, sender_type, sender_id, message_type, content, reply_to, status, read_at, created_at`

// ChatRepository implements chat.Repository.
type ChatRepository struct {
	db *DB
}

func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, c *chat.Chat) (*chat.Chat, error) {
	_, err := r.db.ExecContext(ctx, r.db.insertIgnore()+` chats
		(id, service_request_id, client_id, mover_id, status, unread_by_client, unread_by_mover,
		 last_message_at, last_message_preview, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ServiceRequestID, c.ClientID, c.MoverID, c.Status, c.UnreadByClient, c.UnreadByMover,
		toMicros(c.LastMessageAt), c.LastMessagePreview, toMicros(c.CreatedAt), toMicros(c.UpdatedAt))
	if err != nil {
		return nil, err
	}
	return r.GetByServiceRequest(ctx, c.ServiceRequestID)
}

func (r *ChatRepository) GetByID(ctx context.Context, chatID uuid.UUID) (*chat.Chat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, chatID)
	return scanChat(row)
}

func (r *ChatRepository) GetByServiceRequest(ctx context.Context, serviceRequestID uuid.UUID) (*chat.Chat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE service_request_id = ?`, serviceRequestID)
	return scanChat(row)
}

func (r *ChatRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*chat.Chat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chatColumns+` FROM chats
		WHERE client_id = ? OR mover_id = ?
		ORDER BY last_message_at DESC, id LIMIT ? OFFSET ?`, userID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET status = ?, updated_at = ? WHERE id = ?`, status, toMicros(updatedAt), chatID)
	return err
}

func (r *ChatRepository) AppendMessage(ctx context.Context, msg *chat.Message) (*chat.Chat, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := scanChat(tx.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`+r.db.forUpdate(), msg.ChatID))
	if err != nil || c == nil {
		return nil, err
	}
	if !c.AcceptsMessages() && !msg.IsSystem() {
		return nil, chat.ErrClosed
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages
		(id, chat_id, sender_type, sender_id, message_type, content, reply_to, status, read_at, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		msg.ID, msg.ChatID, sideArg(msg.SenderType), nullUUID(msg.SenderID), msg.MessageType, msg.Content,
		nullString(msg.ReplyTo), msg.Status, nullMicros(msg.ReadAt), toMicros(msg.CreatedAt)); err != nil {
		return nil, err
	}

	clientDelta, moverDelta := msg.UnreadDelta()
	c.UnreadByClient += clientDelta
	c.UnreadByMover += moverDelta
	if !msg.CreatedAt.Before(c.LastMessageAt) {
		c.LastMessageAt = msg.CreatedAt
		c.LastMessagePreview = chat.Preview(msg.Content)
	}
	c.UpdatedAt = msg.CreatedAt

	if _, err := tx.ExecContext(ctx, `
		UPDATE chats
		SET unread_by_client = unread_by_client + ?, unread_by_mover = unread_by_mover + ?,
		    last_message_at = ?, last_message_preview = ?, updated_at = ?
		WHERE id = ?`,
		clientDelta, moverDelta, toMicros(c.LastMessageAt), c.LastMessagePreview, toMicros(c.UpdatedAt), c.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ChatRepository) GetMessage(ctx context.Context, chatID uuid.UUID, messageID string) (*chat.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE chat_id = ? AND id = ?`, chatID, messageID)
	return scanMessage(row)
}

// ListMessages pages backwards by id; message ids are ULIDs and sort by creation time.
func (r *ChatRepository) ListMessages(ctx context.Context, chatID uuid.UUID, before string, limit int) ([]*chat.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE chat_id = ?`
	args := []any{chatID}
	if before != "" {
		query += " AND id < ?"
		args = append(args, before)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *ChatRepository) MarkDelivered(ctx context.Context, messageID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET status = ? WHERE id = ? AND status = ?`,
		chat.MessageStatusDelivered, messageID, chat.MessageStatusSent)
	return err
}

func (r *ChatRepository) MarkRead(ctx context.Context, chatID uuid.UUID, side servicerequest.Side, readAt time.Time) (int, error) {
	counter := "unread_by_client"
	if side == servicerequest.SideMover {
		counter = "unread_by_mover"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE chats SET `+counter+` = 0, updated_at = ? WHERE id = ?`, toMicros(readAt), chatID); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE chat_messages SET status = ?, read_at = ?
		WHERE chat_id = ? AND status <> ? AND (sender_type IS NULL OR sender_type <> ?)`,
		chat.MessageStatusRead, toMicros(readAt), chatID, chat.MessageStatusRead, side)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func scanChat(row rowScanner) (*chat.Chat, error) {
	var (
		c                                   chat.Chat
		lastMessageAt, createdAt, updatedAt int64
	)
	err := row.Scan(&c.ID, &c.ServiceRequestID, &c.ClientID, &c.MoverID, &c.Status, &c.UnreadByClient,
		&c.UnreadByMover, &lastMessageAt, &c.LastMessagePreview, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.LastMessageAt = fromMicros(lastMessageAt)
	c.CreatedAt = fromMicros(createdAt)
	c.UpdatedAt = fromMicros(updatedAt)
	return &c, nil
}

func scanMessage(row rowScanner) (*chat.Message, error) {
	var (
		m                   chat.Message
		senderType, replyTo sql.NullString
		senderID            uuid.NullUUID
		readAt              sql.NullInt64
		createdAt           int64
	)
	err := row.Scan(&m.ID, &m.ChatID, &senderType, &senderID, &m.MessageType, &m.Content, &replyTo, &m.Status,
		&readAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if senderType.Valid {
		side := servicerequest.Side(senderType.String)
		m.SenderType = &side
	}
	if senderID.Valid {
		id := senderID.UUID
		m.SenderID = &id
	}
	m.ReplyTo = stringPtr(replyTo)
	m.ReadAt = timePtr(readAt)
	m.CreatedAt = fromMicros(createdAt)
	return &m, nil
}
