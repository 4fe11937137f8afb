// Package negotiation owns the service request lifecycle: the status machine,
// the price negotiation protocol and the side effects of every transition.
package negotiation

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_chatlog.go -package=mocks . ChatLog

import (
	"context"
	"encoding/json"
	"fmt"
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
	defaultListLimit = 50
	maxListLimit     = 200
)

// ChatLog is the part of the chat subsystem the engine writes to after a
// transition commits.
type ChatLog interface {
	EnsureChat(ctx context.Context, serviceRequestID uuid.UUID) (*chat.Chat, error)
	PostSystemMessage(ctx context.Context, chatID uuid.UUID, content string) (*chat.Message, error)
	SetStatus(ctx context.Context, chatID uuid.UUID, status chat.Status) error
}

// Engine validates and applies negotiation actions.
type Engine struct {
	requests  servicerequest.Repository
	users     user.Repository
	chats     ChatLog
	publisher notification.Publisher
	policy    *PricePolicy
	now       func() time.Time
	logger    zerolog.Logger
}

func NewEngine(
	requests servicerequest.Repository,
	users user.Repository,
	chats ChatLog,
	publisher notification.Publisher,
	policy *PricePolicy,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		requests:  requests,
		users:     users,
		chats:     chats,
		publisher: publisher,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("service", "negotiation").Logger(),
	}
}

// Action carries the parameters shared by every negotiation action.
type Action struct {
	RequestID uuid.UUID
	ActorID   uuid.UUID
	// IfVersion, when set, makes the action fail with a ConflictError unless
	// the stored record is still at this version.
	IfVersion *int64
}

// CreateInput describes a new service request.
type CreateInput struct {
	MoverID        uuid.UUID
	ServiceType    string
	PickupAddress  string
	DropoffAddress string
	ScheduledDate  time.Time
	Details        json.RawMessage
}

// CreateRequest opens a pending request from clientID to a mover. The chat
// is opened later, on acceptance or when a party first asks for it.
func (e *Engine) CreateRequest(ctx context.Context, clientID uuid.UUID, in CreateInput) (*servicerequest.ServiceRequest, error) {
	in.ServiceType = strings.TrimSpace(in.ServiceType)
	in.PickupAddress = strings.TrimSpace(in.PickupAddress)
	in.DropoffAddress = strings.TrimSpace(in.DropoffAddress)
	switch {
	case in.MoverID == uuid.Nil:
		return nil, apperror.Validation("moverId", "is required")
	case in.MoverID == clientID:
		return nil, apperror.Validation("moverId", "must differ from the client")
	case in.ServiceType == "":
		return nil, apperror.Validation("serviceType", "is required")
	case in.PickupAddress == "":
		return nil, apperror.Validation("pickupAddress", "is required")
	case in.DropoffAddress == "":
		return nil, apperror.Validation("dropoffAddress", "is required")
	case in.ScheduledDate.IsZero():
		return nil, apperror.Validation("scheduledDate", "is required")
	}
	if len(in.Details) > 0 && !json.Valid(in.Details) {
		return nil, apperror.Validation("details", "must be valid JSON")
	}

	mover, err := e.users.GetByID(ctx, in.MoverID)
	if err != nil {
		return nil, apperror.Internal("get mover", err)
	}
	if mover == nil || !mover.IsActive() {
		return nil, apperror.NotFound("mover", in.MoverID.String())
	}
	if mover.Role != user.RoleMover {
		return nil, apperror.Validation("moverId", "user is not a mover")
	}

	now := e.now()
	req := &servicerequest.ServiceRequest{
		ID:             uuid.New(),
		ClientID:       clientID,
		MoverID:        in.MoverID,
		Status:         servicerequest.StatusPending,
		ServiceType:    in.ServiceType,
		PickupAddress:  in.PickupAddress,
		DropoffAddress: in.DropoffAddress,
		ScheduledDate:  in.ScheduledDate.UTC(),
		Details:        in.Details,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.requests.Create(ctx, req); err != nil {
		return nil, apperror.Internal("create service request", err)
	}
	e.logger.Info().
		Str("request_id", req.ID.String()).
		Str("client_id", clientID.String()).
		Str("mover_id", in.MoverID.String()).
		Msg("service request created")
	return req, nil
}

// GetRequest returns a request visible to actorID. The mover's first read
// flips viewedByMover.
func (e *Engine) GetRequest(ctx context.Context, requestID, actorID uuid.UUID) (*servicerequest.ServiceRequest, error) {
	req, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, apperror.Internal("get service request", err)
	}
	if req == nil {
		return nil, apperror.NotFound("service request", requestID.String())
	}
	side, ok := req.SideOf(actorID)
	if !ok {
		return nil, apperror.NotFound("service request", requestID.String())
	}
	if side == servicerequest.SideMover && !req.ViewedByMover {
		if _, err := e.requests.MarkViewedByMover(ctx, requestID); err != nil {
			e.logger.Warn().Err(err).Str("request_id", requestID.String()).Msg("failed to mark request viewed")
		} else {
			req.ViewedByMover = true
		}
	}
	return req, nil
}

// ListRequests lists requests where actor is the client or the mover, by role.
// Admins see every request.
func (e *Engine) ListRequests(ctx context.Context, actorID uuid.UUID, role user.Role, status *servicerequest.Status, limit, offset int) ([]*servicerequest.ServiceRequest, error) {
	filter := servicerequest.Filter{Status: status}
	switch role {
	case user.RoleClient:
		filter.ClientID = &actorID
	case user.RoleMover:
		filter.MoverID = &actorID
	case user.RoleAdmin:
	default:
		return nil, apperror.Validation("role", "unknown role %q", role)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	list, err := e.requests.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, apperror.Internal("list service requests", err)
	}
	return list, nil
}

// ProposePrice sets the mover's price. A fresh proposal supersedes any
// outstanding counter-offer.
func (e *Engine) ProposePrice(ctx context.Context, a Action, amount string) (*servicerequest.ServiceRequest, error) {
	price, err := servicerequest.ParsePrice(amount)
	if err != nil {
		return nil, err
	}
	req, _, err := e.transition(ctx, a, "propose a price", servicerequest.SideMover,
		func(req *servicerequest.ServiceRequest, now time.Time) error {
			if err := req.ProposePrice(price, now); err != nil {
				return err
			}
			return e.policy.Check(price, OfferProposal, req.ServiceType)
		})
	if err != nil {
		return nil, err
	}

	e.emit(req.ClientID, notification.EventTypePriceProposed, notification.PriceProposedPayload{
		MissionID:     req.ID,
		ProposedPrice: priceNumber(price),
		MoverName:     e.displayName(ctx, req.MoverID, "Your mover"),
	})
	return req, nil
}

// CounterOffer records the client's counter to the current proposal.
func (e *Engine) CounterOffer(ctx context.Context, a Action, amount string) (*servicerequest.ServiceRequest, error) {
	price, err := servicerequest.ParsePrice(amount)
	if err != nil {
		return nil, err
	}
	req, _, err := e.transition(ctx, a, "counter-offer", servicerequest.SideClient,
		func(req *servicerequest.ServiceRequest, now time.Time) error {
			if err := req.CounterOffer(price, now); err != nil {
				return err
			}
			return e.policy.Check(price, OfferCounter, req.ServiceType)
		})
	if err != nil {
		return nil, err
	}

	e.emit(req.MoverID, notification.EventTypeNegotiationCountered, notification.NegotiationCounteredPayload{
		MissionID:   req.ID,
		ClientPrice: priceNumber(price),
		ClientName:  e.displayName(ctx, req.ClientID, "Your client"),
	})
	return req, nil
}

// AcceptPrice accepts the mover's proposed price.
func (e *Engine) AcceptPrice(ctx context.Context, a Action) (*servicerequest.ServiceRequest, error) {
	req, side, err := e.transition(ctx, a, "accept the proposed price", servicerequest.SideClient,
		func(req *servicerequest.ServiceRequest, now time.Time) error {
			return req.AcceptPrice(now)
		})
	if err != nil {
		return nil, err
	}
	e.afterAccept(ctx, req, side)
	return req, nil
}

// AcceptCounter accepts the client's counter-offer.
func (e *Engine) AcceptCounter(ctx context.Context, a Action) (*servicerequest.ServiceRequest, error) {
	req, side, err := e.transition(ctx, a, "accept the counter-offer", servicerequest.SideMover,
		func(req *servicerequest.ServiceRequest, now time.Time) error {
			return req.AcceptCounter(now)
		})
	if err != nil {
		return nil, err
	}
	e.afterAccept(ctx, req, side)
	return req, nil
}

// AdvanceStatus moves an accepted request to in_progress, then completed.
func (e *Engine) AdvanceStatus(ctx context.Context, a Action, next string) (*servicerequest.ServiceRequest, error) {
	status, err := servicerequest.ParseStatus(next)
	if err != nil {
		return nil, err
	}
	if status != servicerequest.StatusInProgress && status != servicerequest.StatusCompleted {
		return nil, apperror.Validation("status", "cannot advance to %q", status)
	}
	req, _, err := e.transition(ctx, a, "advance the status", servicerequest.SideMover,
		func(req *servicerequest.ServiceRequest, now time.Time) error {
			return req.Advance(status, now)
		})
	if err != nil {
		return nil, err
	}
	e.afterStatusChange(ctx, req)
	return req, nil
}

// Cancel terminates a pending or accepted request on behalf of either party.
func (e *Engine) Cancel(ctx context.Context, a Action, reason string) (*servicerequest.ServiceRequest, error) {
	if len(reason) > 1000 {
		return nil, apperror.Validation("reason", "is too long")
	}
	req, _, err := e.transition(ctx, a, "cancel", "",
		func(req *servicerequest.ServiceRequest, now time.Time) error {
			side, _ := req.SideOf(a.ActorID)
			return req.Cancel(side, reason, now)
		})
	if err != nil {
		return nil, err
	}
	e.afterStatusChange(ctx, req)
	return req, nil
}

type applyFunc func(req *servicerequest.ServiceRequest, now time.Time) error

// transition runs apply inside the store's atomic read-modify-write after
// checking that the actor is a party with the required side. An empty
// required side admits either party.
func (e *Engine) transition(ctx context.Context, a Action, verb string, required servicerequest.Side, apply applyFunc) (*servicerequest.ServiceRequest, servicerequest.Side, error) {
	var actorSide servicerequest.Side
	now := e.now()
	req, err := e.requests.Mutate(ctx, a.RequestID, func(req *servicerequest.ServiceRequest) error {
		side, ok := req.SideOf(a.ActorID)
		if !ok {
			return apperror.NotFound("service request", a.RequestID.String())
		}
		if required != "" && side != required {
			return apperror.Validation("actor", "only the %s may %s", required, verb)
		}
		if a.IfVersion != nil && *a.IfVersion != req.Version {
			return apperror.Conflict(fmt.Sprintf("version %d", *a.IfVersion), fmt.Sprintf("version %d", req.Version), "service request has changed")
		}
		actorSide = side
		return apply(req, now)
	})
	if err != nil {
		e.logger.Debug().Err(err).Str("request_id", a.RequestID.String()).Str("action", verb).Msg("transition rejected")
		return nil, "", apperror.Internal(verb, err)
	}
	if req == nil {
		return nil, "", apperror.NotFound("service request", a.RequestID.String())
	}

	e.logger.Info().
		Str("request_id", req.ID.String()).
		Str("user_id", a.ActorID.String()).
		Str("action", verb).
		Str("status", string(req.Status)).
		Int64("version", req.Version).
		Msg("transition committed")
	return req, actorSide, nil
}

// afterAccept notifies the side whose price was accepted, then runs the
// common status-change effects.
func (e *Engine) afterAccept(ctx context.Context, req *servicerequest.ServiceRequest, acceptedBy servicerequest.Side) {
	target := req.Counterpart(acceptedBy)
	e.emit(target, notification.EventTypeNegotiationAccepted, notification.NegotiationAcceptedPayload{
		MissionID:     req.ID,
		AcceptedPrice: priceNumber(*req.AcceptedPrice),
	})
	e.afterStatusChange(ctx, req)
}

// afterStatusChange appends the system chat message, updates the chat status
// for terminal requests and tells both parties about the new status.
func (e *Engine) afterStatusChange(ctx context.Context, req *servicerequest.ServiceRequest) {
	text := statusMessage(req)
	log := e.logger.With().Str("request_id", req.ID.String()).Logger()

	if c, err := e.chats.EnsureChat(ctx, req.ID); err != nil {
		log.Error().Err(err).Msg("failed to open chat for system message")
	} else {
		if _, err := e.chats.PostSystemMessage(ctx, c.ID, text); err != nil {
			log.Error().Err(err).Msg("failed to post system message")
		}
		if status, ok := chat.StatusForRequest(req.Status); ok {
			if err := e.chats.SetStatus(ctx, c.ID, status); err != nil {
				log.Error().Err(err).Str("chat_status", string(status)).Msg("failed to update chat status")
			}
		}
	}

	payload := notification.StatusUpdatedPayload{
		MissionID: req.ID,
		NewStatus: string(req.Status),
		Message:   text,
	}
	e.emit(req.ClientID, notification.EventTypeStatusUpdated, payload)
	e.emit(req.MoverID, notification.EventTypeStatusUpdated, payload)
}

func (e *Engine) emit(target uuid.UUID, eventType notification.EventType, payload any) {
	evt, err := notification.NewEvent(eventType, target, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	e.publisher.Emit(target, evt, nil)
}

func (e *Engine) displayName(ctx context.Context, userID uuid.UUID, fallback string) string {
	u, err := e.users.GetByID(ctx, userID)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to resolve display name")
		return fallback
	}
	if u == nil {
		return fallback
	}
	return u.Name()
}
