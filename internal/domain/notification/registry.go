package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_registry.go -package=mocks . Connection,Publisher

import (
	"context"

	"github.com/google/uuid"
)

// Connection is one live push channel of an authenticated user.
type Connection interface {
	ID() string
	UserID() uuid.UUID
	// Send pushes evt, giving up when ctx is done. An error means the
	// connection is no longer live.
	Send(ctx context.Context, evt *Event) error
	Close()
}

// Publisher hands events to the push layer.
type Publisher interface {
	// Publish pushes evt to every live connection of userID and returns how
	// many accepted it.
	Publish(ctx context.Context, userID uuid.UUID, evt *Event) int
	// Emit publishes in the background without blocking the caller. done, when
	// not nil, receives the delivered count.
	Emit(userID uuid.UUID, evt *Event, done func(delivered int))
}
