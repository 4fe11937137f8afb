package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

const requestColumns = `id, client_id, mover_id, status, proposed_price::text, client_price::text,
	client_price_proposed_at, accepted_price::text, service_type, pickup_address, dropoff_address,
	scheduled_date, details, viewed_by_mover, accepted_at, completed_at, cancelled_at, cancelled_by,
	cancel_reason, version, created_at, updated_at`

// RequestRepository implements servicerequest.Repository.
type RequestRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

func (r *RequestRepository) Create(ctx context.Context, req *servicerequest.ServiceRequest) error {
	if req.Version == 0 {
		req.Version = 1
	}
	clientPrice, clientProposedAt := negotiationArgs(req)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO service_requests
		(id, client_id, mover_id, status, proposed_price, client_price, client_price_proposed_at, accepted_price,
		 service_type, pickup_address, dropoff_address, scheduled_date, details, viewed_by_mover,
		 accepted_at, completed_at, cancelled_at, cancelled_by, cancel_reason, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::text::numeric,$6::text::numeric,$7,$8::text::numeric,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`, req.ID, req.ClientID, req.MoverID, req.Status, priceArg(req.ProposedPrice), clientPrice, clientProposedAt,
		priceArg(req.AcceptedPrice), req.ServiceType, req.PickupAddress, req.DropoffAddress, req.ScheduledDate,
		detailsArg(req.Details), req.ViewedByMover, req.AcceptedAt, req.CompletedAt, req.CancelledAt, req.CancelledBy,
		req.CancelReason, req.Version, req.CreatedAt, req.UpdatedAt)
	return err
}

func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*servicerequest.ServiceRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id=$1`, id)
	return scanRequest(row)
}

func (r *RequestRepository) List(ctx context.Context, filter servicerequest.Filter, limit, offset int) ([]*servicerequest.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests`
	args := []interface{}{}
	idx := 1
	if filter.ClientID != nil {
		query += " WHERE client_id=$" + itoa(idx)
		args = append(args, *filter.ClientID)
		idx++
	}
	if filter.MoverID != nil {
		query += addWhere(query) + " mover_id=$" + itoa(idx)
		args = append(args, *filter.MoverID)
		idx++
	}
	if filter.Status != nil {
		query += addWhere(query) + " status=$" + itoa(idx)
		args = append(args, *filter.Status)
		idx++
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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

// Mutate locks the row for the duration of fn, so concurrent transitions on the
// same request are serialized and each sees the previous one's result.
func (r *RequestRepository) Mutate(ctx context.Context, id uuid.UUID, fn servicerequest.MutateFunc) (*servicerequest.ServiceRequest, error) {
	var result *servicerequest.ServiceRequest
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id=$1 FOR UPDATE`, id)
		req, err := scanRequest(row)
		if err != nil || req == nil {
			return err
		}
		if err := fn(req); err != nil {
			return err
		}
		req.Version++
		clientPrice, clientProposedAt := negotiationArgs(req)
		_, err = tx.Exec(ctx, `
			UPDATE service_requests
			SET status=$1, proposed_price=$2::text::numeric, client_price=$3::text::numeric, client_price_proposed_at=$4,
			    accepted_price=$5::text::numeric, accepted_at=$6, completed_at=$7, cancelled_at=$8, cancelled_by=$9,
			    cancel_reason=$10, version=$11, updated_at=$12
			WHERE id=$13
		`, req.Status, priceArg(req.ProposedPrice), clientPrice, clientProposedAt, priceArg(req.AcceptedPrice),
			req.AcceptedAt, req.CompletedAt, req.CancelledAt, req.CancelledBy, req.CancelReason, req.Version,
			req.UpdatedAt, req.ID)
		if err != nil {
			return err
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RequestRepository) MarkViewedByMover(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.pool.Exec(ctx, `UPDATE service_requests SET viewed_by_mover=TRUE WHERE id=$1 AND NOT viewed_by_mover`, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func negotiationArgs(req *servicerequest.ServiceRequest) (*string, *time.Time) {
	if req.PriceNegotiation == nil {
		return nil, nil
	}
	at := req.PriceNegotiation.ProposedAt
	return priceArg(&req.PriceNegotiation.ClientPrice), &at
}

func detailsArg(details json.RawMessage) []byte {
	if len(details) == 0 {
		return nil
	}
	return details
}

func scanRequest(row pgx.Row) (*servicerequest.ServiceRequest, error) {
	var (
		req                             servicerequest.ServiceRequest
		proposed, clientPrice, accepted *string
		clientProposedAt                *time.Time
		details                         []byte
		cancelledBy                     *servicerequest.Side
	)
	if err := row.Scan(&req.ID, &req.ClientID, &req.MoverID, &req.Status, &proposed, &clientPrice,
		&clientProposedAt, &accepted, &req.ServiceType, &req.PickupAddress, &req.DropoffAddress,
		&req.ScheduledDate, &details, &req.ViewedByMover, &req.AcceptedAt, &req.CompletedAt, &req.CancelledAt,
		&cancelledBy, &req.CancelReason, &req.Version, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var err error
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
	if cp != nil && clientProposedAt != nil {
		req.PriceNegotiation = &servicerequest.PriceNegotiation{ClientPrice: *cp, ProposedAt: *clientProposedAt}
	}
	if len(details) > 0 {
		req.Details = details
	}
	req.CancelledBy = cancelledBy
	return &req, nil
}
