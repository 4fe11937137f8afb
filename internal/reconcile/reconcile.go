// Package reconcile keeps a receiver's local view of its service requests and
// chats consistent with the server. Push events are applied optimistically as
// hints; the authoritative state is re-fetched on conflicts and reconnects.
package reconcile

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_fetcher.go -package=mocks . Fetcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/moving-hub/moving-hub/internal/domain/chat"
	"github.com/moving-hub/moving-hub/internal/domain/notification"
	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

// Snapshot is the authoritative state visible to one user.
type Snapshot struct {
	Requests []*servicerequest.ServiceRequest `json:"requests"`
	Chats    []*chat.Chat                     `json:"chats"`
}

// Fetcher reads authoritative state.
type Fetcher interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	// Request returns nil, nil when the request is gone or no longer visible.
	Request(ctx context.Context, id uuid.UUID) (*servicerequest.ServiceRequest, error)
}

// Reconciler is the local view of one user.
type Reconciler struct {
	userID  uuid.UUID
	fetcher Fetcher
	logger  zerolog.Logger

	mu       sync.RWMutex
	requests map[uuid.UUID]*servicerequest.ServiceRequest
	chats    map[uuid.UUID]*chat.Chat
	// counted holds chat message ids already reflected in unread counters.
	counted map[string]struct{}
}

func New(userID uuid.UUID, fetcher Fetcher, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		userID:   userID,
		fetcher:  fetcher,
		logger:   logger.With().Str("service", "reconcile").Str("user_id", userID.String()).Logger(),
		requests: make(map[uuid.UUID]*servicerequest.ServiceRequest),
		chats:    make(map[uuid.UUID]*chat.Chat),
		counted:  make(map[string]struct{}),
	}
}

// Apply folds one event into the local view. Applying the same event twice
// leaves the same state as applying it once. An event about a request the view
// does not hold, or one the local state graph cannot explain (a stale or
// out-of-order delivery), triggers a fetch of that request instead.
func (r *Reconciler) Apply(ctx context.Context, evt *notification.Event) error {
	switch evt.Type {
	case notification.EventTypeConnected:
		return r.OnReconnect(ctx)
	case notification.EventTypeChatMessage:
		var p notification.ChatMessagePayload
		if err := evt.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		if !r.applyChatMessage(p) {
			return r.Resync(ctx)
		}
		return nil
	}

	missionID, apply, err := requestPatch(evt)
	if err != nil {
		return err
	}
	if apply == nil {
		r.logger.Debug().Str("event_type", string(evt.Type)).Msg("ignoring unknown event")
		return nil
	}

	r.mu.Lock()
	req, ok := r.requests[missionID]
	consistent := ok && apply(req)
	r.mu.Unlock()
	if !consistent {
		if ok {
			r.logger.Debug().
				Str("event_type", string(evt.Type)).
				Str("request_id", missionID.String()).
				Msg("event contradicts local view, refetching")
		}
		return r.OnConflict(ctx, missionID)
	}
	return nil
}

// OnConflict replaces the local copy of one request with the stored one. It is
// the response to a ConflictError from the server.
func (r *Reconciler) OnConflict(ctx context.Context, requestID uuid.UUID) error {
	req, err := r.fetcher.Request(ctx, requestID)
	if err != nil {
		return fmt.Errorf("fetch request %s: %w", requestID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if req == nil {
		delete(r.requests, requestID)
		return nil
	}
	r.requests[requestID] = req
	return nil
}

// Resync replaces the whole local view with a fresh snapshot. Message ids
// already counted stay known, so a late duplicate of a message the snapshot
// includes is not counted a second time.
func (r *Reconciler) Resync(ctx context.Context) error {
	snap, err := r.fetcher.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	requests := make(map[uuid.UUID]*servicerequest.ServiceRequest, len(snap.Requests))
	for _, req := range snap.Requests {
		requests[req.ID] = req
	}
	chats := make(map[uuid.UUID]*chat.Chat, len(snap.Chats))
	for _, c := range snap.Chats {
		chats[c.ID] = c
	}

	r.mu.Lock()
	r.requests = requests
	r.chats = chats
	r.mu.Unlock()

	r.logger.Debug().Int("requests", len(requests)).Int("chats", len(chats)).Msg("resynced")
	return nil
}

// OnReconnect runs after a push connection is re-established. Anything pushed
// while disconnected is lost, so the view is rebuilt from the store.
func (r *Reconciler) OnReconnect(ctx context.Context) error {
	return r.Resync(ctx)
}

// Request returns a copy of the local view of one request.
func (r *Reconciler) Request(id uuid.UUID) (*servicerequest.ServiceRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, false
	}
	return req.Clone(), true
}

// Chat returns a copy of the local view of one chat.
func (r *Reconciler) Chat(id uuid.UUID) (*chat.Chat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chats[id]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

func (r *Reconciler) applyChatMessage(p notification.ChatMessagePayload) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[p.ChatID]
	if !ok {
		return false
	}
	if _, dup := r.counted[p.MessageID]; dup {
		return true
	}
	r.counted[p.MessageID] = struct{}{}
	c.LastMessagePreview = chat.Preview(p.MessageContent)
	if side, ok := c.SideOf(r.userID); ok {
		if side == servicerequest.SideMover {
			c.UnreadByMover++
		} else {
			c.UnreadByClient++
		}
	}
	return true
}

// patch applies an event to a local request. It reports false, leaving req
// untouched, when the event cannot follow from req's current state.
type patch func(req *servicerequest.ServiceRequest) bool

// requestPatch decodes a request-scoped event into the mutation it implies.
// Every mutation assigns absolute values, which keeps re-application harmless.
func requestPatch(evt *notification.Event) (uuid.UUID, patch, error) {
	switch evt.Type {
	case notification.EventTypePriceProposed:
		var p notification.PriceProposedPayload
		if err := evt.Decode(&p); err != nil {
			return uuid.Nil, nil, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		price, err := servicerequest.ParsePrice(p.ProposedPrice.String())
		if err != nil {
			return uuid.Nil, nil, err
		}
		return p.MissionID, func(req *servicerequest.ServiceRequest) bool {
			if req.Status != servicerequest.StatusPending {
				return false
			}
			req.ProposedPrice = &price
			req.PriceNegotiation = nil
			return true
		}, nil

	case notification.EventTypeNegotiationCountered:
		var p notification.NegotiationCounteredPayload
		if err := evt.Decode(&p); err != nil {
			return uuid.Nil, nil, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		price, err := servicerequest.ParsePrice(p.ClientPrice.String())
		if err != nil {
			return uuid.Nil, nil, err
		}
		at := evt.EmittedAt
		return p.MissionID, func(req *servicerequest.ServiceRequest) bool {
			if req.Status != servicerequest.StatusPending || req.ProposedPrice == nil {
				return false
			}
			req.PriceNegotiation = &servicerequest.PriceNegotiation{ClientPrice: price, ProposedAt: at}
			return true
		}, nil

	case notification.EventTypeNegotiationAccepted:
		var p notification.NegotiationAcceptedPayload
		if err := evt.Decode(&p); err != nil {
			return uuid.Nil, nil, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		price, err := servicerequest.ParsePrice(p.AcceptedPrice.String())
		if err != nil {
			return uuid.Nil, nil, err
		}
		return p.MissionID, func(req *servicerequest.ServiceRequest) bool {
			switch {
			case req.Status == servicerequest.StatusAccepted && req.AcceptedPrice != nil && req.AcceptedPrice.Equal(price):
				return true
			case req.Status != servicerequest.StatusPending:
				return false
			}
			req.Status = servicerequest.StatusAccepted
			req.AcceptedPrice = &price
			req.PriceNegotiation = nil
			return true
		}, nil

	case notification.EventTypeStatusUpdated:
		var p notification.StatusUpdatedPayload
		if err := evt.Decode(&p); err != nil {
			return uuid.Nil, nil, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		status, err := servicerequest.ParseStatus(p.NewStatus)
		if err != nil {
			return uuid.Nil, nil, err
		}
		return p.MissionID, func(req *servicerequest.ServiceRequest) bool {
			if req.Status == status {
				return true
			}
			if !req.CanTransitionTo(status) {
				return false
			}
			req.Status = status
			return true
		}, nil
	}
	return uuid.Nil, nil, nil
}
