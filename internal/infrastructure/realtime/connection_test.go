package realtime

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moving-hub/moving-hub/internal/domain/notification"
)

func TestSSEConnection_SendAndClose(t *testing.T) {
	user := uuid.New()
	conn := NewSSEConnection(user, 1)
	assert.Equal(t, user, conn.UserID())
	assert.NotEmpty(t, conn.ID())

	evt := newEvent(t, user)
	require.NoError(t, conn.Send(context.Background(), evt))
	assert.Same(t, evt, <-conn.Events())

	conn.Close()
	conn.Close()
	assert.ErrorIs(t, conn.Send(context.Background(), evt), notification.ErrConnectionClosed)
}

func TestSSEConnection_SendTimesOut(t *testing.T) {
	conn := NewSSEConnection(uuid.New(), 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, conn.Send(ctx, newEvent(t, conn.UserID())), notification.ErrPushTimeout)
}

func TestWriteSSE(t *testing.T) {
	evt := newEvent(t, uuid.New())
	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, evt))

	frame := buf.String()
	assert.True(t, strings.HasPrefix(frame, "id: "+evt.ID+"\nevent: status_updated\ndata: {"))
	assert.True(t, strings.HasSuffix(frame, "}\n\n"))
}

func TestWSConnection_Send(t *testing.T) {
	user := uuid.New()
	registered := make(chan *WSConnection, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWSConnection(user, c)
		registered <- conn
		<-c.CloseRead(r.Context()).Done()
		conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.CloseNow()

	conn := <-registered
	evt := newEvent(t, user)
	require.NoError(t, conn.Send(ctx, evt))

	var got notification.Event
	require.NoError(t, wsjson.Read(ctx, client, &got))
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, notification.EventTypeStatusUpdated, got.Type)

	require.NoError(t, client.Close(websocket.StatusNormalClosure, ""))
	conn.Close()
	assert.ErrorIs(t, conn.Send(ctx, evt), notification.ErrConnectionClosed)
}
