package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/bcnelson/agent-access-manager/internal/validation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UserService resolves and registers users.
type UserService struct {
	store  storage.Storage
	logger logrus.FieldLogger
	now    Clock
}

// NewUserService creates a new UserService.
func NewUserService(store storage.Storage, logger logrus.FieldLogger, now Clock) *UserService {
	return &UserService{
		store:  store,
		logger: logger.WithField("component", "user_service"),
		now:    now,
	}
}

// Resolve returns the user identified by ref.
func (s *UserService) Resolve(ctx context.Context, ref domain.UserRef) (*domain.User, error) {
	return resolveUser(ctx, s.store, ref)
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return resolveUser(ctx, s.store, domain.UserRef{ID: id})
}

// GetByEmail returns a user by email address.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	normalized, err := validation.NormalizeEmail("email", email)
	if err != nil {
		return nil, err
	}
	return resolveUser(ctx, s.store, domain.UserRef{Email: normalized})
}

// Register creates a user record for an identity-provider account.
func (s *UserService) Register(ctx context.Context, email string, authID *string) (*domain.User, error) {
	normalized, err := validation.NormalizeEmail("email", email)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:             uuid.New().String(),
		Email:          normalized,
		AuthID:         authID,
		SelectedAgents: []domain.AgentName{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, domain.Conflictf("user with email %s already exists", normalized)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("user registered")
	return user, nil
}
