package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/domain/session"
)

// SessionRepository implements session.Repository.
type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, token_hash, user_id, created_at, expires_at, last_seen_at, user_agent, ip_address)
		VALUES (?,?,?,?,?,?,?,?)`,
		s.SessionID, s.TokenHash, s.UserID, toMicros(s.CreatedAt), toMicros(s.ExpiresAt), nullMicros(s.LastSeenAt),
		nullString(s.UserAgent), nullString(s.IPAddress))
	return err
}

func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*session.Session, error) {
	var (
		s                    session.Session
		createdAt, expiresAt int64
		lastSeen             sql.NullInt64
		userAgent, ipAddress sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, token_hash, user_id, created_at, expires_at, last_seen_at, user_agent, ip_address
		FROM sessions WHERE token_hash = ?`, tokenHash).
		Scan(&s.SessionID, &s.TokenHash, &s.UserID, &createdAt, &expiresAt, &lastSeen, &userAgent, &ipAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = fromMicros(createdAt)
	s.ExpiresAt = fromMicros(expiresAt)
	s.LastSeenAt = timePtr(lastSeen)
	s.UserAgent = stringPtr(userAgent)
	s.IPAddress = stringPtr(ipAddress)
	return &s, nil
}

func (r *SessionRepository) DeleteByID(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	return err
}

func (r *SessionRepository) UpdateLastSeen(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at = ? WHERE session_id = ?`, toMicros(time.Now().UTC()), sessionID)
	return err
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, toMicros(time.Now().UTC()))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
