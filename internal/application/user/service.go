package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/moving-hub/moving-hub/internal/apperror"
	domain "github.com/moving-hub/moving-hub/internal/domain/user"
)

// Service handles user management.
type Service struct {
	repo   domain.Repository
	logger zerolog.Logger
}

// NewService creates a user service.
func NewService(repo domain.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("service", "user").Logger(),
	}
}

// CreateInput defines user creation input.
type CreateInput struct {
	Username    string
	DisplayName string
	Password    string
	Role        domain.Role
	Status      domain.Status
}

// UpdateInput defines user update input.
type UpdateInput struct {
	DisplayName *string
	Role        *domain.Role
	Status      *domain.Status
}

func (s *Service) CreateUser(ctx context.Context, input CreateInput) (*domain.User, error) {
	username := domain.NormalizeUsername(input.Username)
	if err := domain.ValidateUsername(username); err != nil {
		return nil, apperror.Validation("username", "%s", err)
	}
	if err := domain.ValidateDisplayName(input.DisplayName); err != nil {
		return nil, apperror.Validation("displayName", "%s", err)
	}
	if err := domain.ValidatePassword(input.Password, username); err != nil {
		return nil, apperror.Validation("password", "%s", err)
	}
	if err := domain.ValidateRole(input.Role); err != nil {
		return nil, apperror.Validation("role", "%s", err)
	}
	if input.Status == "" {
		input.Status = domain.StatusActive
	}
	if err := domain.ValidateStatus(input.Status); err != nil {
		return nil, apperror.Validation("status", "%s", err)
	}

	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperror.Internal("get user", err)
	}
	if existing != nil {
		return nil, apperror.Conflict("unused username", "taken", "username already exists")
	}

	hash, err := domain.HashPassword(input.Password)
	if err != nil {
		return nil, apperror.Internal("hash password", err)
	}

	now := time.Now().UTC()
	u := &domain.User{
		UserID:       uuid.New(),
		Username:     username,
		DisplayName:  input.DisplayName,
		PasswordHash: hash,
		Role:         input.Role,
		Status:       input.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, apperror.Internal("create user", err)
	}

	s.logger.Info().Str("user_id", u.UserID.String()).Str("username", u.Username).Str("role", string(u.Role)).Msg("user created")
	return u, nil
}

func (s *Service) UpdateUser(ctx context.Context, userID uuid.UUID, input UpdateInput) (*domain.User, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if input.DisplayName != nil {
		if err := domain.ValidateDisplayName(*input.DisplayName); err != nil {
			return nil, apperror.Validation("displayName", "%s", err)
		}
		u.DisplayName = *input.DisplayName
	}
	if input.Role != nil {
		if err := domain.ValidateRole(*input.Role); err != nil {
			return nil, apperror.Validation("role", "%s", err)
		}
		u.Role = *input.Role
	}
	if input.Status != nil {
		if err := domain.ValidateStatus(*input.Status); err != nil {
			return nil, apperror.Validation("status", "%s", err)
		}
		u.Status = *input.Status
	}
	u.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, apperror.Internal("update user", err)
	}
	return u, nil
}

func (s *Service) SetPassword(ctx context.Context, userID uuid.UUID, password string) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := domain.ValidatePassword(password, u.Username); err != nil {
		return apperror.Validation("password", "%s", err)
	}
	hash, err := domain.HashPassword(password)
	if err != nil {
		return apperror.Internal("hash password", err)
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return apperror.Internal("update user", s.repo.Update(ctx, u))
}

// GetUser returns a user or a NotFoundError.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("get user", err)
	}
	if u == nil {
		return nil, apperror.NotFound("user", userID.String())
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, filter domain.Filter, limit, offset int) ([]*domain.User, error) {
	list, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, apperror.Internal("list users", err)
	}
	return list, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
