package sqlstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moving-hub/moving-hub/internal/apperror"
	"github.com/moving-hub/moving-hub/internal/domain/chat"
	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
	"github.com/moving-hub/moving-hub/internal/domain/session"
	"github.com/moving-hub/moving-hub/internal/domain/user"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, username string, role user.Role) *user.User {
	t.Helper()
	now := time.Now().UTC()
	u := &user.User{
		UserID:       uuid.New(),
		Username:     username,
		DisplayName:  username + " display",
		PasswordHash: "hash",
		Role:         role,
		Status:       user.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func seedRequest(t *testing.T, db *DB) *servicerequest.ServiceRequest {
	t.Helper()
	client := seedUser(t, db, "client"+uuid.NewString()[:8], user.RoleClient)
	mover := seedUser(t, db, "mover"+uuid.NewString()[:8], user.RoleMover)
	now := time.Now().UTC()
	req := &servicerequest.ServiceRequest{
		ID:             uuid.New(),
		ClientID:       client.UserID,
		MoverID:        mover.UserID,
		Status:         servicerequest.StatusPending,
		ServiceType:    "apartment",
		PickupAddress:  "1 Main St",
		DropoffAddress: "2 Side St",
		ScheduledDate:  now.Add(72 * time.Hour),
		Details:        json.RawMessage(`{"rooms":3}`),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, NewRequestRepository(db).Create(context.Background(), req))
	return req
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, uint(1), result.Version)
	assert.False(t, result.Dirty)
}

func TestUserRepository(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := seedUser(t, db, "alice", user.RoleClient)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.UserID, got.UserID)
	assert.Equal(t, user.RoleClient, got.Role)
	assert.Equal(t, u.CreatedAt.UnixMicro(), got.CreatedAt.UnixMicro())

	got.DisplayName = "Alice A."
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.GetByID(ctx, u.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", again.DisplayName)

	role := user.RoleClient
	list, err := repo.List(ctx, user.Filter{Role: &role}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRequestRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewRequestRepository(db)
	req := seedRequest(t, db)

	got, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, servicerequest.StatusPending, got.Status)
	assert.Nil(t, got.ProposedPrice)
	assert.Nil(t, got.PriceNegotiation)
	assert.JSONEq(t, `{"rooms":3}`, string(got.Details))
	assert.Equal(t, req.ScheduledDate.UnixMicro(), got.ScheduledDate.UnixMicro())
	assert.False(t, got.ViewedByMover)
}

func TestRequestRepository_Mutate(t *testing.T) {
	db := testDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	req := seedRequest(t, db)

	price := decimal.RequireFromString("250.00")
	updated, err := repo.Mutate(ctx, req.ID, func(r *servicerequest.ServiceRequest) error {
		return r.ProposePrice(price, time.Now().UTC())
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	counter := decimal.RequireFromString("200.00")
	_, err = repo.Mutate(ctx, req.ID, func(r *servicerequest.ServiceRequest) error {
		return r.CounterOffer(counter, time.Now().UTC())
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ProposedPrice)
	assert.True(t, price.Equal(*got.ProposedPrice))
	require.NotNil(t, got.PriceNegotiation)
	assert.True(t, counter.Equal(got.PriceNegotiation.ClientPrice))
	assert.Equal(t, int64(3), got.Version)

	t.Run("error aborts the write", func(t *testing.T) {
		_, err := repo.Mutate(ctx, req.ID, func(r *servicerequest.ServiceRequest) error {
			return r.Advance(servicerequest.StatusInProgress, time.Now().UTC())
		})
		require.True(t, apperror.IsConflict(err))

		after, err := repo.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), after.Version)
		assert.Equal(t, servicerequest.StatusPending, after.Status)
	})

	t.Run("missing record", func(t *testing.T) {
		got, err := repo.Mutate(ctx, uuid.New(), func(*servicerequest.ServiceRequest) error { return nil })
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("accept then cancel persists terminal fields", func(t *testing.T) {
		_, err := repo.Mutate(ctx, req.ID, func(r *servicerequest.ServiceRequest) error {
			return r.AcceptCounter(time.Now().UTC())
		})
		require.NoError(t, err)
		_, err = repo.Mutate(ctx, req.ID, func(r *servicerequest.ServiceRequest) error {
			return r.Cancel(servicerequest.SideClient, "changed plans", time.Now().UTC())
		})
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, servicerequest.StatusCancelled, got.Status)
		require.NotNil(t, got.AcceptedPrice)
		assert.True(t, counter.Equal(*got.AcceptedPrice))
		require.NotNil(t, got.CancelledBy)
		assert.Equal(t, servicerequest.SideClient, *got.CancelledBy)
		require.NotNil(t, got.CancelReason)
		assert.Equal(t, "changed plans", *got.CancelReason)
		assert.NotNil(t, got.CancelledAt)
		assert.Nil(t, got.PriceNegotiation)
	})
}

func TestRequestRepository_MutateRetriesOnVersionConflict(t *testing.T) {
	db := testDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	req := seedRequest(t, db)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Mutate(ctx, req.ID, func(r *servicerequest.ServiceRequest) error {
				return r.ProposePrice(decimal.NewFromInt(int64(100+i)), time.Now().UTC())
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1+writers), got.Version)
}

func TestRequestRepository_ConcurrentAcceptsExactlyOneWins(t *testing.T) {
	db := testDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	req := seedRequest(t, db)
	_, err := repo.Mutate(ctx, req.ID, func(r *servicerequest.ServiceRequest) error {
		return r.ProposePrice(decimal.NewFromInt(300), time.Now().UTC())
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, req.ID, func(r *servicerequest.ServiceRequest) error {
				return r.AcceptPrice(time.Now().UTC())
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case apperror.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
}

func TestRequestRepository_ListAndViewed(t *testing.T) {
	db := testDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	req := seedRequest(t, db)

	pending := servicerequest.StatusPending
	list, err := repo.List(ctx, servicerequest.Filter{MoverID: &req.MoverID, Status: &pending}, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, req.ID, list[0].ID)

	accepted := servicerequest.StatusAccepted
	list, err = repo.List(ctx, servicerequest.Filter{ClientID: &req.ClientID, Status: &accepted}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	flipped, err := repo.MarkViewedByMover(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = repo.MarkViewedByMover(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, flipped)
}

func newMessage(chatID uuid.UUID, side *servicerequest.Side, sender *uuid.UUID, content string, at time.Time) *chat.Message {
	mt := chat.MessageTypeText
	if side == nil {
		mt = chat.MessageTypeSystem
	}
	return &chat.Message{
		ID:          ulid.Make().String(),
		ChatID:      chatID,
		SenderType:  side,
		SenderID:    sender,
		MessageType: mt,
		Content:     content,
		Status:      chat.MessageStatusSent,
		CreatedAt:   at,
	}
}

func TestChatRepository(t *testing.T) {
	db := testDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()
	req := seedRequest(t, db)
	now := time.Now().UTC()

	first, err := repo.Create(ctx, chat.NewChat(req, now))
	require.NoError(t, err)
	second, err := repo.Create(ctx, chat.NewChat(req, now))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	client := servicerequest.SideClient
	mover := servicerequest.SideMover

	c, err := repo.AppendMessage(ctx, newMessage(first.ID, &client, &req.ClientID, "hi", now.Add(time.Millisecond)))
	require.NoError(t, err)
	assert.Equal(t, 1, c.UnreadByMover)
	assert.Equal(t, 0, c.UnreadByClient)

	moverMsg := newMessage(first.ID, &mover, &req.MoverID, "hello there", now.Add(2*time.Millisecond))
	c, err = repo.AppendMessage(ctx, moverMsg)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UnreadByClient)
	assert.Equal(t, "hello there", c.LastMessagePreview)

	c, err = repo.AppendMessage(ctx, newMessage(first.ID, nil, nil, "Price accepted", now.Add(3*time.Millisecond)))
	require.NoError(t, err)
	assert.Equal(t, 1, c.UnreadByClient)
	assert.Equal(t, 1, c.UnreadByMover)

	stored, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, c.UnreadByClient, stored.UnreadByClient)
	assert.Equal(t, now.Add(3*time.Millisecond).UnixMicro(), stored.LastMessageAt.UnixMicro())

	require.NoError(t, repo.MarkDelivered(ctx, moverMsg.ID))
	got, err := repo.GetMessage(ctx, first.ID, moverMsg.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.MessageStatusDelivered, got.Status)
	require.NotNil(t, got.SenderType)
	assert.Equal(t, mover, *got.SenderType)

	changed, err := repo.MarkRead(ctx, first.ID, client, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	changed, err = repo.MarkRead(ctx, first.ID, client, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Zero(t, changed)

	stored, err = repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.UnreadByClient)
	assert.Equal(t, 1, stored.UnreadByMover)

	msgs, err := repo.ListMessages(ctx, first.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, chat.MessageStatusSent, msgs[0].Status)
	assert.Equal(t, chat.MessageStatusRead, msgs[1].Status)
	assert.NotNil(t, msgs[1].ReadAt)

	older, err := repo.ListMessages(ctx, first.ID, msgs[2].ID, 10)
	require.NoError(t, err)
	assert.Len(t, older, 2)

	list, err := repo.ListByUser(ctx, req.MoverID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestChatRepository_ClosedChat(t *testing.T) {
	db := testDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()
	req := seedRequest(t, db)
	now := time.Now().UTC()

	c, err := repo.Create(ctx, chat.NewChat(req, now))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, c.ID, chat.StatusClosed, now))

	client := servicerequest.SideClient
	_, err = repo.AppendMessage(ctx, newMessage(c.ID, &client, &req.ClientID, "still there?", now))
	require.ErrorIs(t, err, chat.ErrClosed)

	_, err = repo.AppendMessage(ctx, newMessage(c.ID, nil, nil, "Request cancelled", now))
	require.NoError(t, err)

	msgs, err := repo.ListMessages(ctx, c.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsSystem())

	missing, err := repo.AppendMessage(ctx, newMessage(uuid.New(), nil, nil, "x", now))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSessionRepository(t *testing.T) {
	db := testDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "sessionuser", user.RoleMover)
	now := time.Now().UTC()

	live := &session.Session{SessionID: uuid.New(), TokenHash: "live", UserID: u.UserID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	stale := &session.Session{SessionID: uuid.New(), TokenHash: "stale", UserID: u.UserID, CreatedAt: now, ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, repo.Create(ctx, live))
	require.NoError(t, repo.Create(ctx, stale))

	got, err := repo.GetByTokenHash(ctx, "live")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.UserID, got.UserID)
	assert.Nil(t, got.LastSeenAt)

	require.NoError(t, repo.UpdateLastSeen(ctx, live.SessionID))
	got, err = repo.GetByTokenHash(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, got.LastSeenAt)

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.DeleteByTokenHash(ctx, "live"))
	got, err = repo.GetByTokenHash(ctx, "live")
	require.NoError(t, err)
	assert.Nil(t, got)
}
