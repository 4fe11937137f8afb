package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/moving-hub/moving-hub/internal/domain/notification"
)

func newEvent(t *testing.T, target uuid.UUID) *notification.Event {
	t.Helper()
	evt, err := notification.NewEvent(notification.EventTypeStatusUpdated, target, notification.StatusUpdatedPayload{
		MissionID: uuid.New(),
		NewStatus: "accepted",
		Message:   "Price accepted",
	})
	require.NoError(t, err)
	return evt
}

func TestDispatcher_PublishToEveryConnection(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := NewRegistry()
	d := NewDispatcher(reg, time.Second, zerolog.Nop())
	user := uuid.New()
	evt := newEvent(t, user)

	c1 := newMockConn(ctrl, user)
	c2 := newMockConn(ctrl, user)
	c1.EXPECT().Send(gomock.Any(), evt).Return(nil)
	c2.EXPECT().Send(gomock.Any(), evt).Return(nil)
	reg.Register(user, c1)
	reg.Register(user, c2)

	assert.Equal(t, 2, d.Publish(context.Background(), user, evt))
	assert.Equal(t, 2, reg.Count())
}

func TestDispatcher_FailedConnectionIsUnregistered(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := NewRegistry()
	d := NewDispatcher(reg, time.Second, zerolog.Nop())
	user := uuid.New()
	evt := newEvent(t, user)

	good := newMockConn(ctrl, user)
	dead := newMockConn(ctrl, user)
	good.EXPECT().Send(gomock.Any(), evt).Return(nil)
	dead.EXPECT().Send(gomock.Any(), evt).Return(errors.New("broken pipe"))
	dead.EXPECT().Close().Times(1)
	reg.Register(user, good)
	reg.Register(user, dead)

	assert.Equal(t, 1, d.Publish(context.Background(), user, evt))
	conns := reg.ConnectionsFor(user)
	require.Len(t, conns, 1)
	assert.Equal(t, good.ID(), conns[0].ID())
}

func TestDispatcher_NoConnectionDropsEvent(t *testing.T) {
	d := NewDispatcher(NewRegistry(), time.Second, zerolog.Nop())
	user := uuid.New()

	assert.Zero(t, d.Publish(context.Background(), user, newEvent(t, user)))
}

func TestDispatcher_PushTimeoutUnregisters(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, 20*time.Millisecond, zerolog.Nop())
	user := uuid.New()

	// Unbuffered and never drained, so the push can only time out.
	stuck := NewSSEConnection(user, 0)
	reg.Register(user, stuck)

	assert.Zero(t, d.Publish(context.Background(), user, newEvent(t, user)))
	assert.Zero(t, reg.Count())
	select {
	case <-stuck.Done():
	default:
		t.Fatal("timed out connection should be closed")
	}
}

func TestDispatcher_EmitAndDrain(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, time.Second, zerolog.Nop())
	user := uuid.New()
	conn := NewSSEConnection(user, 4)
	reg.Register(user, conn)

	var delivered atomic.Int64
	d.Emit(user, newEvent(t, user), func(n int) { delivered.Add(int64(n)) })
	d.Emit(user, newEvent(t, user), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Drain(ctx))
	assert.Equal(t, int64(1), delivered.Load())
	assert.Len(t, conn.Events(), 2)
}

func TestDispatcher_DrainHonoursContext(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, time.Second, zerolog.Nop())
	user := uuid.New()
	reg.Register(user, NewSSEConnection(user, 0))

	d.Emit(user, newEvent(t, user), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Drain(ctx), context.DeadlineExceeded)

	require.NoError(t, d.Drain(context.Background()))
}
