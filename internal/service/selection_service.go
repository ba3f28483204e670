package service

import (
	"context"
	"slices"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/sirupsen/logrus"
)

// SelectionService maintains the selection mirror: a plain ordered list of
// agents on the user record. It has no expiry and is independent of the
// assignment engines.
type SelectionService struct {
	store  storage.Storage
	users  *UserService
	logger logrus.FieldLogger
}

// NewSelectionService creates a new SelectionService.
func NewSelectionService(store storage.Storage, users *UserService, logger logrus.FieldLogger) *SelectionService {
	return &SelectionService{
		store:  store,
		users:  users,
		logger: logger.WithField("component", "selection_service"),
	}
}

// Get returns the user's selection.
func (s *SelectionService) Get(ctx context.Context, ref domain.UserRef) (*domain.SelectionResponse, error) {
	user, err := s.users.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &domain.SelectionResponse{UserID: user.ID, Agents: nonNil(user.SelectedAgents)}, nil
}

// Set replaces the selection.
func (s *SelectionService) Set(ctx context.Context, ref domain.UserRef, agents []domain.AgentName) (*domain.SelectionResponse, error) {
	return s.update(ctx, ref, func([]domain.AgentName) []domain.AgentName {
		return agents
	})
}

// Add appends agent unless it is already selected.
func (s *SelectionService) Add(ctx context.Context, ref domain.UserRef, agent domain.AgentName) (*domain.SelectionResponse, error) {
	return s.update(ctx, ref, func(current []domain.AgentName) []domain.AgentName {
		return append(current, agent)
	})
}

// Remove drops agent from the selection.
func (s *SelectionService) Remove(ctx context.Context, ref domain.UserRef, agent domain.AgentName) (*domain.SelectionResponse, error) {
	return s.update(ctx, ref, func(current []domain.AgentName) []domain.AgentName {
		return slices.DeleteFunc(current, func(a domain.AgentName) bool { return a == agent })
	})
}

// Toggle removes agent when selected and adds it otherwise.
func (s *SelectionService) Toggle(ctx context.Context, ref domain.UserRef, agent domain.AgentName) (*domain.SelectionResponse, error) {
	return s.update(ctx, ref, func(current []domain.AgentName) []domain.AgentName {
		if slices.Contains(current, agent) {
			return slices.DeleteFunc(current, func(a domain.AgentName) bool { return a == agent })
		}
		return append(current, agent)
	})
}

// Clear empties the selection.
func (s *SelectionService) Clear(ctx context.Context, ref domain.UserRef) (*domain.SelectionResponse, error) {
	return s.update(ctx, ref, func([]domain.AgentName) []domain.AgentName {
		return nil
	})
}

// Apply dispatches a single-agent action.
func (s *SelectionService) Apply(ctx context.Context, ref domain.UserRef, action domain.SelectionAction, agent domain.AgentName) (*domain.SelectionResponse, error) {
	switch action {
	case domain.SelectionAdd:
		return s.Add(ctx, ref, agent)
	case domain.SelectionRemove:
		return s.Remove(ctx, ref, agent)
	case domain.SelectionToggle:
		return s.Toggle(ctx, ref, agent)
	default:
		return nil, domain.Invalidf("action must be one of add, remove, toggle")
	}
}

// update reads the selection, applies fn and writes the full list back in
// one transaction.
func (s *SelectionService) update(ctx context.Context, ref domain.UserRef, fn func(current []domain.AgentName) []domain.AgentName) (*domain.SelectionResponse, error) {
	var resp *domain.SelectionResponse
	err := storage.WithTx(ctx, s.store, func(tx storage.Storage) error {
		user, err := resolveUser(ctx, tx, ref)
		if err != nil {
			return err
		}
		agents := nonNil(domain.UniqueAgentNames(fn(slices.Clone(user.SelectedAgents))))
		if err := tx.UpdateSelectedAgents(ctx, user.ID, agents); err != nil {
			return err
		}
		resp = &domain.SelectionResponse{UserID: user.ID, Agents: agents}
		return nil
	})
	if err != nil {
		return nil, wrapf(err, "updating selection")
	}

	s.logger.WithFields(logrus.Fields{"user_id": resp.UserID, "agents": resp.Agents}).Debug("selection updated")
	return resp, nil
}

func nonNil(agents []domain.AgentName) []domain.AgentName {
	if agents == nil {
		return []domain.AgentName{}
	}
	return agents
}
