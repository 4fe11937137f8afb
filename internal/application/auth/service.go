package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appUser "github.com/moving-hub/moving-hub/internal/application/user"
	"github.com/moving-hub/moving-hub/internal/apperror"
	domainSession "github.com/moving-hub/moving-hub/internal/domain/session"
	domainUser "github.com/moving-hub/moving-hub/internal/domain/user"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnauthenticated is returned for a missing, unknown or expired session.
	ErrUnauthenticated = errors.New("authentication required")
	ErrUserDisabled    = errors.New("user is disabled")
)

// Service handles authentication.
type Service struct {
	userRepo    domainUser.Repository
	sessionRepo domainSession.Repository
	users       *appUser.Service
	sessionTTL  time.Duration
	logger      zerolog.Logger
}

// NewService creates an auth service.
func NewService(userRepo domainUser.Repository, sessionRepo domainSession.Repository, users *appUser.Service, sessionTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		users:       users,
		sessionTTL:  sessionTTL,
		logger:      logger.With().Str("service", "auth").Logger(),
	}
}

// LoginResult contains login response.
type LoginResult struct {
	User    *domainUser.User
	Session *domainSession.Session
	Token   string
}

// RegisterInput is a self-service sign-up.
type RegisterInput struct {
	Username    string
	DisplayName string
	Password    string
	Role        domainUser.Role
	UserAgent   *string
	IPAddress   *string
}

// Register creates a client or mover account and logs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	if err := domainUser.ValidateSelfServiceRole(in.Role); err != nil {
		return nil, apperror.Validation("role", "%s", err)
	}
	u, err := s.users.CreateUser(ctx, appUser.CreateInput{
		Username:    in.Username,
		DisplayName: in.DisplayName,
		Password:    in.Password,
		Role:        in.Role,
	})
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, u, in.UserAgent, in.IPAddress)
}

// Login authenticates a user and creates a session.
func (s *Service) Login(ctx context.Context, username, password string, userAgent, ipAddress *string) (*LoginResult, error) {
	username = domainUser.NormalizeUsername(username)
	u, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperror.Internal("get user", err)
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive() {
		return nil, ErrUserDisabled
	}
	if !domainUser.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, u, userAgent, ipAddress)
}

func (s *Service) startSession(ctx context.Context, u *domainUser.User, userAgent, ipAddress *string) (*LoginResult, error) {
	token, err := generateToken()
	if err != nil {
		return nil, apperror.Internal("generate token", err)
	}

	now := time.Now().UTC()
	sess := &domainSession.Session{
		SessionID:  uuid.New(),
		TokenHash:  hashToken(token),
		UserID:     u.UserID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.sessionTTL),
		LastSeenAt: &now,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, apperror.Internal("create session", err)
	}

	s.logger.Info().Str("user_id", u.UserID.String()).Msg("user login")
	return &LoginResult{User: u, Session: sess, Token: token}, nil
}

// Authenticate validates a session token and returns the user.
func (s *Service) Authenticate(ctx context.Context, token string) (*domainUser.User, *domainSession.Session, error) {
	if token == "" {
		return nil, nil, ErrUnauthenticated
	}
	sess, err := s.sessionRepo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, nil, apperror.Internal("get session", err)
	}
	if sess == nil {
		return nil, nil, ErrUnauthenticated
	}
	if sess.IsExpired(time.Now().UTC()) {
		_ = s.sessionRepo.DeleteByID(ctx, sess.SessionID)
		return nil, nil, ErrUnauthenticated
	}
	u, err := s.userRepo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, apperror.Internal("get user", err)
	}
	if u == nil || !u.IsActive() {
		return nil, nil, ErrUnauthenticated
	}
	_ = s.sessionRepo.UpdateLastSeen(ctx, sess.SessionID)
	return u, sess, nil
}

// Logout deletes a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return apperror.Internal("delete session", s.sessionRepo.DeleteByTokenHash(ctx, hashToken(token)))
}

// PurgeExpired removes expired sessions and returns how many were deleted.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, apperror.Internal("delete expired sessions", err)
	}
	if n > 0 {
		s.logger.Debug().Int("count", n).Msg("expired sessions purged")
	}
	return n, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
