package auth

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/internal/storage"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/internal/validation"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
)

// Session is an issued login
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// Service registers and authenticates accounts
type Service struct {
	users  storage.UserRepository
	tokens *TokenManager
	logger *zap.Logger
}

func NewService(users storage.UserRepository, tokens *TokenManager, log *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger.OrNop(log)}
}

// Register creates a user account and logs it in
func (s *Service) Register(ctx context.Context, email, name, password string) (*Session, error) {
	email, err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	name, err = validation.ValidateName(name)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, email, name, password, models.RoleUser)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

// Login checks credentials and issues a token
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := validation.ValidateEmail(email)
	if err != nil {
		return nil, errors.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			CheckPassword(string(dummyHash), password)
			return nil, errors.ErrInvalidCredentials
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		s.logger.Info("Failed login", zap.String("user_id", user.ID))
		return nil, errors.ErrInvalidCredentials
	}

	return s.issue(user)
}

// Me returns the current account
func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap administrator, or promotes the existing
// account with that email. The password of an existing account is left alone.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*models.User, error) {
	email, err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			return existing, nil
		}
		s.logger.Info("Promoting bootstrap administrator", zap.String("user_id", existing.ID))
		return s.users.UpdateUserRole(ctx, existing.ID, models.RoleAdmin)
	case !stderrors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, email, "Administrator", password, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Bootstrap administrator created", zap.String("user_id", user.ID))
	return user, nil
}

func (s *Service) createUser(ctx context.Context, email, name, password string, role models.Role) (*models.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, errors.ErrInternal.WithError(err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if stderrors.Is(err, storage.ErrDuplicate) {
			return nil, errors.ErrEmailTaken
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	return user, nil
}

func (s *Service) issue(user *models.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, errors.ErrInternal.WithError(err)
	}
	return &Session{User: user, Token: token, ExpiresAt: expires}, nil
}
