package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

// maxMutateAttempts bounds optimistic retries of one Mutate call.
const maxMutateAttempts = 16

// ErrContention is returned when Mutate keeps losing the version race.
var ErrContention = errors.New("service request is being modified concurrently")

const requestColumns = `id, client_id, mover_id, status, proposed_price, client_price, client_price_proposed_at,
	accepted_price, service_type, pickup_address, dropoff_address, scheduled_date, details, viewed_by_mover,
	accepted_at, completed_at, cancelled_at, cancelled_by, cancel_reason, version, created_at, updated_at`

// RequestRepository implements servicerequest.Repository with optimistic
// concurrency on the version column.
type RequestRepository struct {
	db *DB
}

func NewRequestRepository(db *DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req *servicerequest.ServiceRequest) error {
	if req.Version == 0 {
		req.Version = 1
	}
	clientPrice, clientProposedAt := negotiationArgs(req)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO service_requests
		(id, client_id, mover_id, status, proposed_price, client_price, client_price_proposed_at, accepted_price,
		 service_type, pickup_address, dropoff_address, scheduled_date, details, viewed_by_mover,
		 accepted_at, completed_at, cancelled_at, cancelled_by, cancel_reason, version, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.ClientID, req.MoverID, req.Status, priceArg(req.ProposedPrice), clientPrice, clientProposedAt,
		priceArg(req.AcceptedPrice), req.ServiceType, req.PickupAddress, req.DropoffAddress,
		toMicros(req.ScheduledDate), detailsArg(req), req.ViewedByMover, nullMicros(req.AcceptedAt),
		nullMicros(req.CompletedAt), nullMicros(req.CancelledAt), sideArg(req.CancelledBy), nullString(req.CancelReason),
		req.Version, toMicros(req.CreatedAt), toMicros(req.UpdatedAt))
	return err
}

func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*servicerequest.ServiceRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = ?`, id)
	return scanRequest(row)
}

func (r *RequestRepository) List(ctx context.Context, filter servicerequest.Filter, limit, offset int) ([]*servicerequest.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE 1=1`
	args := []any{}
	if filter.ClientID != nil {
		query += " AND client_id = ?"
		args = append(args, *filter.ClientID)
	}
	if filter.MoverID != nil {
		query += " AND mover_id = ?"
		args = append(args, *filter.MoverID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*servicerequest.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Mutate reads the record, applies fn and writes it back only if nobody else
// wrote in between. On a lost race fn is re-applied to the fresh state, which
// lets its precondition checks reject the now-stale transition.
func (r *RequestRepository) Mutate(ctx context.Context, id uuid.UUID, fn servicerequest.MutateFunc) (*servicerequest.ServiceRequest, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		req, err := r.GetByID(ctx, id)
		if err != nil || req == nil {
			return nil, err
		}
		expected := req.Version
		if err := fn(req); err != nil {
			return nil, err
		}
		req.Version = expected + 1

		clientPrice, clientProposedAt := negotiationArgs(req)
		res, err := r.db.ExecContext(ctx, `
			UPDATE service_requests
			SET status = ?, proposed_price = ?, client_price = ?, client_price_proposed_at = ?, accepted_price = ?,
			    accepted_at = ?, completed_at = ?, cancelled_at = ?, cancelled_by = ?, cancel_reason = ?,
			    version = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			req.Status, priceArg(req.ProposedPrice), clientPrice, clientProposedAt, priceArg(req.AcceptedPrice),
			nullMicros(req.AcceptedAt), nullMicros(req.CompletedAt), nullMicros(req.CancelledAt),
			sideArg(req.CancelledBy), nullString(req.CancelReason), req.Version, toMicros(req.UpdatedAt),
			req.ID, expected)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 1 {
			return req, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("mutate %s: %w", id, ErrContention)
}

func (r *RequestRepository) MarkViewedByMover(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE service_requests SET viewed_by_mover = 1 WHERE id = ? AND viewed_by_mover = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func negotiationArgs(req *servicerequest.ServiceRequest) (sql.NullString, sql.NullInt64) {
	if req.PriceNegotiation == nil {
		return sql.NullString{}, sql.NullInt64{}
	}
	at := req.PriceNegotiation.ProposedAt
	return priceArg(&req.PriceNegotiation.ClientPrice), nullMicros(&at)
}

func detailsArg(req *servicerequest.ServiceRequest) sql.NullString {
	if len(req.Details) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(req.Details), Valid: true}
}

func sideArg(s *servicerequest.Side) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*servicerequest.ServiceRequest, error) {
	var (
		req                                       servicerequest.ServiceRequest
		proposed, clientPrice, accepted           sql.NullString
		clientProposedAt, acceptedAt, completedAt sql.NullInt64
		cancelledAt                               sql.NullInt64
		details, cancelledBy, cancelReason        sql.NullString
		scheduled, createdAt, updatedAt           int64
	)
	err := row.Scan(&req.ID, &req.ClientID, &req.MoverID, &req.Status, &proposed, &clientPrice, &clientProposedAt,
		&accepted, &req.ServiceType, &req.PickupAddress, &req.DropoffAddress, &scheduled, &details,
		&req.ViewedByMover, &acceptedAt, &completedAt, &cancelledAt, &cancelledBy, &cancelReason, &req.Version,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if req.ProposedPrice, err = priceValue(proposed); err != nil {
		return nil, err
	}
	if req.AcceptedPrice, err = priceValue(accepted); err != nil {
		return nil, err
	}
	cp, err := priceValue(clientPrice)
	if err != nil {
		return nil, err
	}
	if cp != nil && clientProposedAt.Valid {
		req.PriceNegotiation = &servicerequest.PriceNegotiation{ClientPrice: *cp, ProposedAt: fromMicros(clientProposedAt.Int64)}
	}
	if details.Valid && details.String != "" {
		req.Details = []byte(details.String)
	}
	if cancelledBy.Valid {
		side := servicerequest.Side(cancelledBy.String)
		req.CancelledBy = &side
	}
	req.CancelReason = stringPtr(cancelReason)
	req.ScheduledDate = fromMicros(scheduled)
	req.AcceptedAt = timePtr(acceptedAt)
	req.CompletedAt = timePtr(completedAt)
	req.CancelledAt = timePtr(cancelledAt)
	req.CreatedAt = fromMicros(createdAt)
	req.UpdatedAt = fromMicros(updatedAt)
	return &req, nil
}
