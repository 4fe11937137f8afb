package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/domain/notification"
)

// WSConnection pushes events as JSON text messages over a WebSocket.
type WSConnection struct {
	id        string
	userID    uuid.UUID
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func NewWSConnection(userID uuid.UUID, conn *websocket.Conn) *WSConnection {
	return &WSConnection{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		done:   make(chan struct{}),
	}
}

func (c *WSConnection) ID() string        { return c.id }
func (c *WSConnection) UserID() uuid.UUID { return c.userID }

// Done is closed once the connection is closed.
func (c *WSConnection) Done() <-chan struct{} { return c.done }

func (c *WSConnection) Send(ctx context.Context, evt *notification.Event) error {
	select {
	case <-c.done:
		return notification.ErrConnectionClosed
	default:
	}
	if err := wsjson.Write(ctx, c.conn, evt); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", notification.ErrPushTimeout, err)
		}
		return err
	}
	return nil
}

func (c *WSConnection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	})
}
