package negotiation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/moving-hub/moving-hub/internal/application/negotiation/mocks"
	"github.com/moving-hub/moving-hub/internal/apperror"
	"github.com/moving-hub/moving-hub/internal/domain/chat"
	"github.com/moving-hub/moving-hub/internal/domain/notification"
	notificationMocks "github.com/moving-hub/moving-hub/internal/domain/notification/mocks"
	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
	requestMocks "github.com/moving-hub/moving-hub/internal/domain/servicerequest/mocks"
	"github.com/moving-hub/moving-hub/internal/domain/user"
	userMocks "github.com/moving-hub/moving-hub/internal/domain/user/mocks"
)

type mockDeps struct {
	requests  *requestMocks.MockRepository
	users     *userMocks.MockRepository
	chats     *mocks.MockChatLog
	publisher *notificationMocks.MockPublisher
}

func newMockEngine(t *testing.T, policy string) (*Engine, mockDeps) {
	ctrl := gomock.NewController(t)
	deps := mockDeps{
		requests:  requestMocks.NewMockRepository(ctrl),
		users:     userMocks.NewMockRepository(ctrl),
		chats:     mocks.NewMockChatLog(ctrl),
		publisher: notificationMocks.NewMockPublisher(ctrl),
	}
	p, err := NewPricePolicy(policy)
	require.NoError(t, err)
	return NewEngine(deps.requests, deps.users, deps.chats, deps.publisher, p, zerolog.Nop()), deps
}

func pendingRequest() *servicerequest.ServiceRequest {
	now := time.Now().UTC()
	return &servicerequest.ServiceRequest{
		ID:            uuid.New(),
		ClientID:      uuid.New(),
		MoverID:       uuid.New(),
		Status:        servicerequest.StatusPending,
		ServiceType:   "apartment",
		ScheduledDate: now.Add(48 * time.Hour),
		Version:       3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// applyTo makes the mocked Mutate behave like a store holding stored.
func applyTo(stored *servicerequest.ServiceRequest) func(context.Context, uuid.UUID, servicerequest.MutateFunc) (*servicerequest.ServiceRequest, error) {
	return func(_ context.Context, _ uuid.UUID, fn servicerequest.MutateFunc) (*servicerequest.ServiceRequest, error) {
		next := stored.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.Version++
		return next, nil
	}
}

func TestPriceActions_RejectMalformedAmounts(t *testing.T) {
	engine, _ := newMockEngine(t, "")
	a := Action{RequestID: uuid.New(), ActorID: uuid.New()}

	for _, amount := range []string{"", "0", "-5", "12.345", "abc"} {
		t.Run(amount, func(t *testing.T) {
			_, err := engine.ProposePrice(context.Background(), a, amount)
			assert.True(t, apperror.IsValidation(err), "got %v", err)

			_, err = engine.CounterOffer(context.Background(), a, amount)
			assert.True(t, apperror.IsValidation(err), "got %v", err)
		})
	}
}

func TestAdvanceStatus_PendingRequestIsConflict(t *testing.T) {
	engine, deps := newMockEngine(t, "")
	stored := pendingRequest()
	deps.requests.EXPECT().Mutate(gomock.Any(), stored.ID, gomock.Any()).DoAndReturn(applyTo(stored))

	_, err := engine.AdvanceStatus(context.Background(), Action{RequestID: stored.ID, ActorID: stored.MoverID}, "in_progress")

	var ce *apperror.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "accepted", ce.Expected)
	assert.Equal(t, "pending", ce.Actual)
}

func TestAdvanceStatus_RejectsNonAdvanceTargets(t *testing.T) {
	engine, _ := newMockEngine(t, "")
	a := Action{RequestID: uuid.New(), ActorID: uuid.New()}

	for _, next := range []string{"pending", "accepted", "cancelled", "shipped"} {
		_, err := engine.AdvanceStatus(context.Background(), a, next)
		assert.True(t, apperror.IsValidation(err), "%s: got %v", next, err)
	}
}

func TestTransition_StoreFailureIsInternal(t *testing.T) {
	engine, deps := newMockEngine(t, "")
	id := uuid.New()
	deps.requests.EXPECT().Mutate(gomock.Any(), id, gomock.Any()).Return(nil, errors.New("disk full"))

	_, err := engine.AcceptPrice(context.Background(), Action{RequestID: id, ActorID: uuid.New()})

	var ie *apperror.InternalError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Error(), "disk full")
}

func TestTransition_MissingRequestIsNotFound(t *testing.T) {
	engine, deps := newMockEngine(t, "")
	id := uuid.New()
	deps.requests.EXPECT().Mutate(gomock.Any(), id, gomock.Any()).Return(nil, nil)

	_, err := engine.Cancel(context.Background(), Action{RequestID: id, ActorID: uuid.New()}, "")
	assert.True(t, apperror.IsNotFound(err))
}

func TestTransition_ActorChecks(t *testing.T) {
	stored := pendingRequest()

	tests := []struct {
		name  string
		run   func(e *Engine) error
		check func(error) bool
	}{
		{
			name: "stranger proposes",
			run: func(e *Engine) error {
				_, err := e.ProposePrice(context.Background(), Action{RequestID: stored.ID, ActorID: uuid.New()}, "100")
				return err
			},
			check: apperror.IsNotFound,
		},
		{
			name: "client proposes",
			run: func(e *Engine) error {
				_, err := e.ProposePrice(context.Background(), Action{RequestID: stored.ID, ActorID: stored.ClientID}, "100")
				return err
			},
			check: apperror.IsValidation,
		},
		{
			name: "mover accepts own price",
			run: func(e *Engine) error {
				_, err := e.AcceptPrice(context.Background(), Action{RequestID: stored.ID, ActorID: stored.MoverID})
				return err
			},
			check: apperror.IsValidation,
		},
		{
			name: "client advances",
			run: func(e *Engine) error {
				_, err := e.AdvanceStatus(context.Background(), Action{RequestID: stored.ID, ActorID: stored.ClientID}, "completed")
				return err
			},
			check: apperror.IsValidation,
		},
		{
			name: "stale version",
			run: func(e *Engine) error {
				v := stored.Version - 1
				_, err := e.Cancel(context.Background(), Action{RequestID: stored.ID, ActorID: stored.ClientID, IfVersion: &v}, "")
				return err
			},
			check: apperror.IsConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, deps := newMockEngine(t, "")
			deps.requests.EXPECT().Mutate(gomock.Any(), stored.ID, gomock.Any()).DoAndReturn(applyTo(stored))

			err := tt.run(engine)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestProposePrice_NotifiesClient(t *testing.T) {
	engine, deps := newMockEngine(t, "")
	stored := pendingRequest()
	deps.requests.EXPECT().Mutate(gomock.Any(), stored.ID, gomock.Any()).DoAndReturn(applyTo(stored))
	deps.users.EXPECT().GetByID(gomock.Any(), stored.MoverID).Return(&user.User{UserID: stored.MoverID, Username: "bob", DisplayName: "Bob Movers"}, nil)

	var got *notification.Event
	deps.publisher.EXPECT().Emit(stored.ClientID, gomock.Any(), gomock.Any()).
		Do(func(_ uuid.UUID, evt *notification.Event, _ func(int)) { got = evt })

	req, err := engine.ProposePrice(context.Background(), Action{RequestID: stored.ID, ActorID: stored.MoverID}, "250")
	require.NoError(t, err)
	assert.True(t, req.ProposedPrice.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, stored.Version+1, req.Version)

	require.NotNil(t, got)
	assert.Equal(t, notification.EventTypePriceProposed, got.Type)
	var p notification.PriceProposedPayload
	require.NoError(t, got.Decode(&p))
	assert.Equal(t, stored.ID, p.MissionID)
	assert.Equal(t, "250.00", p.ProposedPrice.String())
	assert.Equal(t, "Bob Movers", p.MoverName)
}

func TestProposePrice_PolicyRejection(t *testing.T) {
	engine, deps := newMockEngine(t, "amount >= 50")
	stored := pendingRequest()
	deps.requests.EXPECT().Mutate(gomock.Any(), stored.ID, gomock.Any()).DoAndReturn(applyTo(stored))

	_, err := engine.ProposePrice(context.Background(), Action{RequestID: stored.ID, ActorID: stored.MoverID}, "20")
	assert.True(t, apperror.IsValidation(err))
}

// An out-of-policy amount on a request that has left pending reports the
// status conflict, which is what the caller needs to reconcile.
func TestPriceActions_StatusCheckedBeforePolicy(t *testing.T) {
	engine, deps := newMockEngine(t, "amount >= 50")
	stored := pendingRequest()
	price := decimal.NewFromInt(300)
	stored.ProposedPrice = &price
	stored.AcceptedPrice = &price
	stored.Status = servicerequest.StatusAccepted
	deps.requests.EXPECT().Mutate(gomock.Any(), stored.ID, gomock.Any()).DoAndReturn(applyTo(stored)).Times(2)

	_, err := engine.ProposePrice(context.Background(), Action{RequestID: stored.ID, ActorID: stored.MoverID}, "20")
	var ce *apperror.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "pending", ce.Expected)
	assert.Equal(t, "accepted", ce.Actual)

	_, err = engine.CounterOffer(context.Background(), Action{RequestID: stored.ID, ActorID: stored.ClientID}, "20")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "pending", ce.Expected)
	assert.Equal(t, "accepted", ce.Actual)
}

func TestCancel_ChatFailureDoesNotFailAction(t *testing.T) {
	engine, deps := newMockEngine(t, "")
	stored := pendingRequest()
	deps.requests.EXPECT().Mutate(gomock.Any(), stored.ID, gomock.Any()).DoAndReturn(applyTo(stored))
	deps.chats.EXPECT().EnsureChat(gomock.Any(), stored.ID).Return(nil, errors.New("chat store down"))
	deps.publisher.EXPECT().Emit(stored.ClientID, gomock.Any(), nil)
	deps.publisher.EXPECT().Emit(stored.MoverID, gomock.Any(), nil)

	req, err := engine.Cancel(context.Background(), Action{RequestID: stored.ID, ActorID: stored.ClientID}, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, servicerequest.StatusCancelled, req.Status)
	require.NotNil(t, req.CancelledBy)
	assert.Equal(t, servicerequest.SideClient, *req.CancelledBy)
}

func TestCancel_ClosesChat(t *testing.T) {
	engine, deps := newMockEngine(t, "")
	stored := pendingRequest()
	chatID := uuid.New()
	deps.requests.EXPECT().Mutate(gomock.Any(), stored.ID, gomock.Any()).DoAndReturn(applyTo(stored))
	deps.chats.EXPECT().EnsureChat(gomock.Any(), stored.ID).Return(&chat.Chat{ID: chatID}, nil)
	deps.chats.EXPECT().PostSystemMessage(gomock.Any(), chatID, "Request cancelled by the mover").Return(&chat.Message{}, nil)
	deps.chats.EXPECT().SetStatus(gomock.Any(), chatID, chat.StatusClosed).Return(nil)
	deps.publisher.EXPECT().Emit(gomock.Any(), gomock.Any(), nil).Times(2)

	_, err := engine.Cancel(context.Background(), Action{RequestID: stored.ID, ActorID: stored.MoverID}, "  ")
	require.NoError(t, err)
}

func TestCreateRequest(t *testing.T) {
	clientID := uuid.New()
	mover := &user.User{UserID: uuid.New(), Username: "mover", Role: user.RoleMover, Status: user.StatusActive}
	valid := CreateInput{
		MoverID:        mover.UserID,
		ServiceType:    "apartment",
		PickupAddress:  "1 Main St",
		DropoffAddress: "2 Side St",
		ScheduledDate:  time.Now().Add(24 * time.Hour),
	}

	t.Run("creates pending request without a chat", func(t *testing.T) {
		engine, deps := newMockEngine(t, "")
		deps.users.EXPECT().GetByID(gomock.Any(), mover.UserID).Return(mover, nil)
		deps.requests.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		deps.chats.EXPECT().EnsureChat(gomock.Any(), gomock.Any()).Times(0)

		req, err := engine.CreateRequest(context.Background(), clientID, valid)
		require.NoError(t, err)
		assert.Equal(t, servicerequest.StatusPending, req.Status)
		assert.Equal(t, clientID, req.ClientID)
		assert.Equal(t, int64(1), req.Version)
	})

	t.Run("missing fields", func(t *testing.T) {
		engine, _ := newMockEngine(t, "")
		in := valid
		in.PickupAddress = " "
		_, err := engine.CreateRequest(context.Background(), clientID, in)
		assert.True(t, apperror.IsValidation(err))

		in = valid
		in.Details = []byte(`{bad`)
		_, err = engine.CreateRequest(context.Background(), clientID, in)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("target is not a mover", func(t *testing.T) {
		engine, deps := newMockEngine(t, "")
		other := *mover
		other.Role = user.RoleClient
		deps.users.EXPECT().GetByID(gomock.Any(), mover.UserID).Return(&other, nil)

		_, err := engine.CreateRequest(context.Background(), clientID, valid)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("unknown mover", func(t *testing.T) {
		engine, deps := newMockEngine(t, "")
		deps.users.EXPECT().GetByID(gomock.Any(), mover.UserID).Return(nil, nil)

		_, err := engine.CreateRequest(context.Background(), clientID, valid)
		assert.True(t, apperror.IsNotFound(err))
	})
}

func TestGetRequest_MarksViewedOnFirstMoverRead(t *testing.T) {
	engine, deps := newMockEngine(t, "")
	stored := pendingRequest()
	deps.requests.EXPECT().GetByID(gomock.Any(), stored.ID).Return(stored.Clone(), nil).Times(3)
	deps.requests.EXPECT().MarkViewedByMover(gomock.Any(), stored.ID).Return(true, nil)

	req, err := engine.GetRequest(context.Background(), stored.ID, stored.ClientID)
	require.NoError(t, err)
	assert.False(t, req.ViewedByMover)

	req, err = engine.GetRequest(context.Background(), stored.ID, stored.MoverID)
	require.NoError(t, err)
	assert.True(t, req.ViewedByMover)

	_, err = engine.GetRequest(context.Background(), stored.ID, uuid.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestListRequests_ScopesByRole(t *testing.T) {
	engine, deps := newMockEngine(t, "")
	actor := uuid.New()

	deps.requests.EXPECT().List(gomock.Any(), gomock.Any(), maxListLimit, 0).
		DoAndReturn(func(_ context.Context, f servicerequest.Filter, _, _ int) ([]*servicerequest.ServiceRequest, error) {
			require.NotNil(t, f.MoverID)
			assert.Equal(t, actor, *f.MoverID)
			assert.Nil(t, f.ClientID)
			return nil, nil
		})
	_, err := engine.ListRequests(context.Background(), actor, user.RoleMover, nil, 10_000, -1)
	require.NoError(t, err)

	_, err = engine.ListRequests(context.Background(), actor, user.Role("GUEST"), nil, 0, 0)
	assert.True(t, apperror.IsValidation(err))
}
