package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/moving-hub/moving-hub/internal/apperror"
	"github.com/moving-hub/moving-hub/internal/domain/notification"
)

// Dispatcher delivers events to the live connections of a user. Delivery is
// best effort: a connection that fails or times out is unregistered, and an
// event for a user with no connection is dropped.
type Dispatcher struct {
	registry    *Registry
	pushTimeout time.Duration
	logger      zerolog.Logger
	inflight    sync.WaitGroup
}

func NewDispatcher(registry *Registry, pushTimeout time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		pushTimeout: pushTimeout,
		logger:      logger.With().Str("service", "dispatcher").Logger(),
	}
}

func (d *Dispatcher) Publish(ctx context.Context, userID uuid.UUID, evt *notification.Event) int {
	conns := d.registry.ConnectionsFor(userID)
	if len(conns) == 0 {
		d.logger.Debug().
			Str("user_id", userID.String()).
			Str("event_type", string(evt.Type)).
			Msg("no live connection, event dropped")
		return 0
	}

	var delivered atomic.Int64
	var g errgroup.Group
	for _, conn := range conns {
		g.Go(func() error {
			pushCtx, cancel := context.WithTimeout(ctx, d.pushTimeout)
			defer cancel()
			if err := conn.Send(pushCtx, evt); err != nil {
				d.drop(userID, conn, err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(delivered.Load())
	d.logger.Debug().
		Str("user_id", userID.String()).
		Str("event_type", string(evt.Type)).
		Int("delivered", n).
		Msg("event published")
	return n
}

func (d *Dispatcher) Emit(userID uuid.UUID, evt *notification.Event, done func(delivered int)) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		n := d.Publish(context.Background(), userID, evt)
		if done != nil {
			done(n)
		}
	}()
}

// Drain waits for background emissions to finish or ctx to end.
func (d *Dispatcher) Drain(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) drop(userID uuid.UUID, conn notification.Connection, err error) {
	failure := &apperror.DeliveryFailure{UserID: userID.String(), ConnectionID: conn.ID(), Err: err}
	if d.registry.Unregister(userID, conn) {
		d.logger.Warn().
			Err(failure).
			Str("user_id", userID.String()).
			Str("connection_id", conn.ID()).
			Msg("push failed, connection unregistered")
	}
}
