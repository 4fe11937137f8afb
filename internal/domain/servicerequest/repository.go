package servicerequest

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"

	"github.com/google/uuid"
)

// MutateFunc applies a transition to the current stored record. Returning an
// error aborts the write.
type MutateFunc func(req *ServiceRequest) error

// Repository defines the Request Store for service requests.
type Repository interface {
	Create(ctx context.Context, req *ServiceRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ServiceRequest, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*ServiceRequest, error)

	// Mutate performs an atomic read-modify-write of one record. fn always sees
	// the latest committed state and may run more than once; the stored version
	// is incremented on success. Returns nil, nil when the record does not exist.
	Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*ServiceRequest, error)

	// MarkViewedByMover flips viewedByMover once and reports whether this call flipped it.
	MarkViewedByMover(ctx context.Context, id uuid.UUID) (bool, error)
}
