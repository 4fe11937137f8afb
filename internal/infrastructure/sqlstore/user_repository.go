package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/domain/user"
)

const userColumns = `user_id, username, display_name, password_hash, role, status, created_at, updated_at`

// UserRepository implements user.Repository.
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, display_name, password_hash, role, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		u.UserID, u.Username, u.DisplayName, u.PasswordHash, u.Role, u.Status, toMicros(u.CreatedAt), toMicros(u.UpdatedAt))
	return err
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, display_name = ?, password_hash = ?, role = ?, status = ?, updated_at = ?
		WHERE user_id = ?`,
		u.Username, u.DisplayName, u.PasswordHash, u.Role, u.Status, toMicros(u.UpdatedAt), u.UserID)
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (r *UserRepository) List(ctx context.Context, filter user.Filter, limit, offset int) ([]*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	args := []any{}
	if filter.Role != nil {
		query += " AND role = ?"
		args = append(args, *filter.Role)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Username != nil {
		query += " AND username = ?"
		args = append(args, *filter.Username)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanUser(row rowScanner) (*user.User, error) {
	var (
		u                    user.User
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.UserID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMicros(createdAt)
	u.UpdatedAt = fromMicros(updatedAt)
	return &u, nil
}
