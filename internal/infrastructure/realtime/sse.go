package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/domain/notification"
)

// SSEConnection buffers events for an HTTP handler that streams them as
// server-sent events.
type SSEConnection struct {
	id        string
	userID    uuid.UUID
	events    chan *notification.Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewSSEConnection(userID uuid.UUID, buffer int) *SSEConnection {
	if buffer < 0 {
		buffer = 0
	}
	return &SSEConnection{
		id:     uuid.NewString(),
		userID: userID,
		events: make(chan *notification.Event, buffer),
		done:   make(chan struct{}),
	}
}

func (c *SSEConnection) ID() string        { return c.id }
func (c *SSEConnection) UserID() uuid.UUID { return c.userID }

// Events is drained by the streaming handler.
func (c *SSEConnection) Events() <-chan *notification.Event { return c.events }

// Done is closed once the connection is closed.
func (c *SSEConnection) Done() <-chan struct{} { return c.done }

func (c *SSEConnection) Send(ctx context.Context, evt *notification.Event) error {
	select {
	case <-c.done:
		return notification.ErrConnectionClosed
	default:
	}
	select {
	case c.events <- evt:
		return nil
	case <-c.done:
		return notification.ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", notification.ErrPushTimeout, ctx.Err())
	}
}

func (c *SSEConnection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// WriteSSE writes evt as one server-sent event frame.
func WriteSSE(w io.Writer, evt *notification.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Type, data)
	return err
}
