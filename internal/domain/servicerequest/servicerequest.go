package servicerequest

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/moving-hub/moving-hub/internal/apperror"
)

// Status represents service request status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Side identifies one of the two parties of a request.
type Side string

const (
	SideClient Side = "client"
	SideMover  Side = "mover"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// advancePredecessor maps a mover-driven status to the only status it may follow.
var advancePredecessor = map[Status]Status{
	StatusInProgress: StatusAccepted,
	StatusCompleted:  StatusInProgress,
}

// ParseStatus validates a status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := transitions[s]; !ok {
		return "", apperror.Validation("status", "unknown status %q", raw)
	}
	return s, nil
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ServiceRequest is the unit of work between one client and one mover.
type ServiceRequest struct {
	ID               uuid.UUID         `json:"id"`
	ClientID         uuid.UUID         `json:"clientId"`
	MoverID          uuid.UUID         `json:"moverId"`
	Status           Status            `json:"status"`
	ProposedPrice    *decimal.Decimal  `json:"proposedPrice,omitempty"`
	PriceNegotiation *PriceNegotiation `json:"priceNegotiation,omitempty"`
	AcceptedPrice    *decimal.Decimal  `json:"acceptedPrice,omitempty"`
	ServiceType      string            `json:"serviceType"`
	PickupAddress    string            `json:"pickupAddress"`
	DropoffAddress   string            `json:"dropoffAddress"`
	ScheduledDate    time.Time         `json:"scheduledDate"`
	Details          json.RawMessage   `json:"details,omitempty"`
	ViewedByMover    bool              `json:"viewedByMover"`
	AcceptedAt       *time.Time        `json:"acceptedAt,omitempty"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
	CancelledAt      *time.Time        `json:"cancelledAt,omitempty"`
	CancelledBy      *Side             `json:"cancelledBy,omitempty"`
	CancelReason     *string           `json:"cancelReason,omitempty"`
	Version          int64             `json:"version"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// PriceNegotiation is the client's counter-offer to the current proposed price.
type PriceNegotiation struct {
	ClientPrice decimal.Decimal `json:"clientPrice"`
	ProposedAt  time.Time       `json:"proposedAt"`
}

// Filter narrows listing by party and status.
type Filter struct {
	ClientID *uuid.UUID
	MoverID  *uuid.UUID
	Status   *Status
}

// CanTransitionTo validates a status transition.
func (r *ServiceRequest) CanTransitionTo(target Status) bool {
	return slices.Contains(transitions[r.Status], target)
}

// SideOf returns which party userID is.
func (r *ServiceRequest) SideOf(userID uuid.UUID) (Side, bool) {
	switch userID {
	case r.ClientID:
		return SideClient, true
	case r.MoverID:
		return SideMover, true
	default:
		return "", false
	}
}

// PartyID returns the user id of the given side.
func (r *ServiceRequest) PartyID(side Side) uuid.UUID {
	if side == SideMover {
		return r.MoverID
	}
	return r.ClientID
}

// Counterpart returns the user id of the side opposite to side.
func (r *ServiceRequest) Counterpart(side Side) uuid.UUID {
	if side == SideMover {
		return r.ClientID
	}
	return r.MoverID
}

// Clone returns a deep copy.
func (r *ServiceRequest) Clone() *ServiceRequest {
	c := *r
	if r.ProposedPrice != nil {
		p := *r.ProposedPrice
		c.ProposedPrice = &p
	}
	if r.PriceNegotiation != nil {
		n := *r.PriceNegotiation
		c.PriceNegotiation = &n
	}
	if r.AcceptedPrice != nil {
		p := *r.AcceptedPrice
		c.AcceptedPrice = &p
	}
	if r.Details != nil {
		c.Details = append(json.RawMessage(nil), r.Details...)
	}
	c.AcceptedAt = cloneTime(r.AcceptedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	if r.CancelledBy != nil {
		s := *r.CancelledBy
		c.CancelledBy = &s
	}
	if r.CancelReason != nil {
		s := *r.CancelReason
		c.CancelReason = &s
	}
	return &c
}

// ProposePrice sets the mover's price and supersedes any outstanding counter-offer.
func (r *ServiceRequest) ProposePrice(amount decimal.Decimal, now time.Time) error {
	if r.Status != StatusPending {
		return apperror.Conflict(string(StatusPending), string(r.Status), "cannot propose a price")
	}
	r.ProposedPrice = &amount
	r.PriceNegotiation = nil
	r.touch(now)
	return nil
}

// CounterOffer records the client's counter-offer to the current proposal.
func (r *ServiceRequest) CounterOffer(amount decimal.Decimal, now time.Time) error {
	if r.Status != StatusPending {
		return apperror.Conflict(string(StatusPending), string(r.Status), "cannot counter-offer")
	}
	if r.ProposedPrice == nil {
		return apperror.Conflict("price_proposed", "no_price", "no proposed price to counter")
	}
	r.PriceNegotiation = &PriceNegotiation{ClientPrice: amount, ProposedAt: now}
	r.touch(now)
	return nil
}

// AcceptPrice accepts the mover's proposed price on behalf of the client.
func (r *ServiceRequest) AcceptPrice(now time.Time) error {
	if r.Status != StatusPending {
		return apperror.Conflict(string(StatusPending), string(r.Status), "cannot accept price")
	}
	if r.ProposedPrice == nil {
		return apperror.Conflict("price_proposed", "no_price", "no proposed price to accept")
	}
	price := *r.ProposedPrice
	r.accept(price, now)
	return nil
}

// AcceptCounter accepts the client's counter-offer on behalf of the mover.
func (r *ServiceRequest) AcceptCounter(now time.Time) error {
	if r.Status != StatusPending {
		return apperror.Conflict(string(StatusPending), string(r.Status), "cannot accept counter-offer")
	}
	if r.PriceNegotiation == nil {
		return apperror.Conflict("counter_offered", "no_counter", "no counter-offer to accept")
	}
	price := r.PriceNegotiation.ClientPrice
	r.accept(price, now)
	return nil
}

// Advance moves an accepted request along accepted → in_progress → completed.
// next must be the single legal successor of the current status.
func (r *ServiceRequest) Advance(next Status, now time.Time) error {
	pred, ok := advancePredecessor[next]
	if !ok {
		return apperror.Validation("status", "cannot advance to %q", next)
	}
	if r.Status != pred {
		return apperror.Conflict(string(pred), string(r.Status), "cannot advance status")
	}
	r.Status = next
	if next == StatusCompleted {
		r.CompletedAt = &now
	}
	r.touch(now)
	return nil
}

// Cancel terminates a pending or accepted request.
func (r *ServiceRequest) Cancel(by Side, reason string, now time.Time) error {
	if !r.CanTransitionTo(StatusCancelled) {
		return apperror.Conflict("pending|accepted", string(r.Status), "cannot cancel")
	}
	r.Status = StatusCancelled
	r.PriceNegotiation = nil
	r.CancelledAt = &now
	r.CancelledBy = &by
	if reason = strings.TrimSpace(reason); reason != "" {
		r.CancelReason = &reason
	}
	r.touch(now)
	return nil
}

func (r *ServiceRequest) accept(price decimal.Decimal, now time.Time) {
	r.Status = StatusAccepted
	r.AcceptedPrice = &price
	r.AcceptedAt = &now
	r.PriceNegotiation = nil
	r.touch(now)
}

func (r *ServiceRequest) touch(now time.Time) {
	r.UpdatedAt = now
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
