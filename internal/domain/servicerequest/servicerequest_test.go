package servicerequest

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moving-hub/moving-hub/internal/apperror"
)

func newPending() *ServiceRequest {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &ServiceRequest{
		ID:        uuid.New(),
		ClientID:  uuid.New(),
		MoverID:   uuid.New(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireConflict(t *testing.T, err error, expected, actual string) {
	t.Helper()
	var ce *apperror.ConflictError
	require.True(t, errors.As(err, &ce), "expected ConflictError, got %v", err)
	assert.Equal(t, expected, ce.Expected)
	assert.Equal(t, actual, ce.Actual)
}

func TestServiceRequest_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from   Status
		to     Status
		expect bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusInProgress, false},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			r := &ServiceRequest{Status: tt.from}
			assert.Equal(t, tt.expect, r.CanTransitionTo(tt.to))
		})
	}
}

func TestProposeThenAccept(t *testing.T) {
	r := newPending()
	now := r.CreatedAt.Add(time.Minute)

	require.NoError(t, r.ProposePrice(price("250.00"), now))
	require.NoError(t, r.AcceptPrice(now))

	assert.Equal(t, StatusAccepted, r.Status)
	require.NotNil(t, r.AcceptedPrice)
	assert.Equal(t, "250.00", FormatPrice(*r.AcceptedPrice))
	assert.Nil(t, r.PriceNegotiation)
	require.NotNil(t, r.AcceptedAt)
	assert.Equal(t, now, r.UpdatedAt)
}

func TestCounterThenAcceptCounter(t *testing.T) {
	r := newPending()
	now := r.CreatedAt

	require.NoError(t, r.ProposePrice(price("250.00"), now))
	require.NoError(t, r.CounterOffer(price("200.00"), now))
	require.NotNil(t, r.PriceNegotiation)
	require.NoError(t, r.AcceptCounter(now))

	assert.Equal(t, StatusAccepted, r.Status)
	assert.Equal(t, "200.00", FormatPrice(*r.AcceptedPrice))
	assert.Nil(t, r.PriceNegotiation)
}

func TestProposeSupersedesCounter(t *testing.T) {
	r := newPending()
	require.NoError(t, r.ProposePrice(price("300"), r.CreatedAt))
	require.NoError(t, r.CounterOffer(price("200"), r.CreatedAt))
	require.NoError(t, r.ProposePrice(price("260"), r.CreatedAt))

	assert.Nil(t, r.PriceNegotiation)
	assert.Equal(t, "260.00", FormatPrice(*r.ProposedPrice))

	err := r.AcceptCounter(r.CreatedAt)
	requireConflict(t, err, "counter_offered", "no_counter")
}

func TestPreconditionFailures(t *testing.T) {
	t.Run("counter without proposal", func(t *testing.T) {
		r := newPending()
		requireConflict(t, r.CounterOffer(price("10"), r.CreatedAt), "price_proposed", "no_price")
	})

	t.Run("accept without proposal", func(t *testing.T) {
		r := newPending()
		requireConflict(t, r.AcceptPrice(r.CreatedAt), "price_proposed", "no_price")
		assert.Equal(t, StatusPending, r.Status)
	})

	t.Run("advance pending request", func(t *testing.T) {
		r := newPending()
		err := r.Advance(StatusInProgress, r.CreatedAt)
		requireConflict(t, err, "accepted", "pending")
		assert.Equal(t, StatusPending, r.Status)
	})

	t.Run("advance skipping a step", func(t *testing.T) {
		r := newPending()
		require.NoError(t, r.ProposePrice(price("10"), r.CreatedAt))
		require.NoError(t, r.AcceptPrice(r.CreatedAt))
		requireConflict(t, r.Advance(StatusCompleted, r.CreatedAt), "in_progress", "accepted")
	})

	t.Run("advance to non-advanceable status", func(t *testing.T) {
		r := newPending()
		err := r.Advance(StatusCancelled, r.CreatedAt)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("propose after acceptance", func(t *testing.T) {
		r := newPending()
		require.NoError(t, r.ProposePrice(price("10"), r.CreatedAt))
		require.NoError(t, r.AcceptPrice(r.CreatedAt))
		requireConflict(t, r.ProposePrice(price("20"), r.CreatedAt), "pending", "accepted")
	})

	t.Run("cancel in progress", func(t *testing.T) {
		r := newPending()
		require.NoError(t, r.ProposePrice(price("10"), r.CreatedAt))
		require.NoError(t, r.AcceptPrice(r.CreatedAt))
		require.NoError(t, r.Advance(StatusInProgress, r.CreatedAt))
		requireConflict(t, r.Cancel(SideClient, "", r.CreatedAt), "pending|accepted", "in_progress")
	})
}

func TestCancel(t *testing.T) {
	r := newPending()
	require.NoError(t, r.ProposePrice(price("100"), r.CreatedAt))
	require.NoError(t, r.CounterOffer(price("90"), r.CreatedAt))
	require.NoError(t, r.Cancel(SideMover, "  truck broke down ", r.CreatedAt))

	assert.Equal(t, StatusCancelled, r.Status)
	assert.Nil(t, r.PriceNegotiation)
	require.NotNil(t, r.CancelledBy)
	assert.Equal(t, SideMover, *r.CancelledBy)
	require.NotNil(t, r.CancelReason)
	assert.Equal(t, "truck broke down", *r.CancelReason)

	requireConflict(t, r.Cancel(SideClient, "", r.CreatedAt), "pending|accepted", "cancelled")
}

func TestSideOf(t *testing.T) {
	r := newPending()
	side, ok := r.SideOf(r.ClientID)
	require.True(t, ok)
	assert.Equal(t, SideClient, side)
	assert.Equal(t, r.MoverID, r.Counterpart(side))

	side, ok = r.SideOf(r.MoverID)
	require.True(t, ok)
	assert.Equal(t, SideMover, side)
	assert.Equal(t, r.ClientID, r.Counterpart(side))
	assert.Equal(t, r.MoverID, r.PartyID(SideMover))

	_, ok = r.SideOf(uuid.New())
	assert.False(t, ok)
}

func TestClone(t *testing.T) {
	r := newPending()
	require.NoError(t, r.ProposePrice(price("10"), r.CreatedAt))
	require.NoError(t, r.CounterOffer(price("9"), r.CreatedAt))

	c := r.Clone()
	c.PriceNegotiation.ClientPrice = price("1")
	*c.ProposedPrice = price("2")

	assert.Equal(t, "9.00", FormatPrice(r.PriceNegotiation.ClientPrice))
	assert.Equal(t, "10.00", FormatPrice(*r.ProposedPrice))
}

// Random action sequences must only walk the state graph.
func TestRandomWalkStaysOnGraph(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	valid := map[Status]bool{
		StatusPending: true, StatusAccepted: true, StatusInProgress: true,
		StatusCompleted: true, StatusCancelled: true,
	}
	for round := 0; round < 500; round++ {
		r := newPending()
		for step := 0; step < 12; step++ {
			before := r.Status
			now := r.CreatedAt.Add(time.Duration(step) * time.Second)
			var err error
			switch rng.IntN(7) {
			case 0:
				err = r.ProposePrice(price("100"), now)
			case 1:
				err = r.CounterOffer(price("80"), now)
			case 2:
				err = r.AcceptPrice(now)
			case 3:
				err = r.AcceptCounter(now)
			case 4:
				err = r.Advance(StatusInProgress, now)
			case 5:
				err = r.Advance(StatusCompleted, now)
			case 6:
				err = r.Cancel(SideClient, "", now)
			}
			require.True(t, valid[r.Status])
			if err != nil {
				assert.Equal(t, before, r.Status, "failed action must not change status")
				continue
			}
			if r.Status != before {
				assert.True(t, (&ServiceRequest{Status: before}).CanTransitionTo(r.Status),
					"illegal edge %s -> %s", before, r.Status)
			}
			if r.Status == StatusInProgress || r.Status == StatusCompleted {
				require.NotNil(t, r.AcceptedPrice, "work started without an accepted price")
			}
			if r.Status != StatusPending {
				assert.Nil(t, r.PriceNegotiation)
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" In_Progress ")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)
	assert.False(t, s.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())

	_, err = ParseStatus("archived")
	assert.True(t, apperror.IsValidation(err))
}
