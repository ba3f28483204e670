package service

import (
	"context"
	"errors"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AssignmentService manages direct (user, agent) assignments.
type AssignmentService struct {
	store  storage.Storage
	users  *UserService
	logger logrus.FieldLogger
	now    Clock
}

// NewAssignmentService creates a new AssignmentService.
func NewAssignmentService(store storage.Storage, users *UserService, logger logrus.FieldLogger, now Clock) *AssignmentService {
	return &AssignmentService{
		store:  store,
		users:  users,
		logger: logger.WithField("component", "assignment_service"),
		now:    now,
	}
}

// Assign creates or refreshes the active assignment of agent to the user.
// On an existing active row only the supplied window fields are overwritten.
func (s *AssignmentService) Assign(ctx context.Context, ref domain.UserRef, agent domain.AgentName, w domain.Window, isActive *bool) (*domain.AssignedAgent, error) {
	rows, err := s.AssignBulk(ctx, ref, []domain.AgentName{agent}, w, isActive)
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

// AssignBulk upserts an active assignment for every agent in one transaction.
func (s *AssignmentService) AssignBulk(ctx context.Context, ref domain.UserRef, agents []domain.AgentName, w domain.Window, isActive *bool) ([]*domain.AssignedAgent, error) {
	user, err := s.users.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return s.upsertMany(ctx, user, domain.UniqueAgentNames(agents), w.Resolve(now), isActive, now)
}

// upsertMany is the shared materialization step of direct and group assignment.
func (s *AssignmentService) upsertMany(ctx context.Context, user *domain.User, agents []domain.AgentName, r domain.ResolvedWindow, isActive *bool, now time.Time) ([]*domain.AssignedAgent, error) {
	var rows []*domain.AssignedAgent
	err := retryOnConflict(kindAgent, func() error {
		rows = make([]*domain.AssignedAgent, 0, len(agents))
		return storage.WithTx(ctx, s.store, func(tx storage.Storage) error {
			for _, agent := range agents {
				row, err := upsertAssignedAgent(ctx, tx, user.ID, agent, r, isActive, now)
				if err != nil {
					return err
				}
				rows = append(rows, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapf(err, "assigning agents to user %s", user.Email)
	}

	assignmentOpsTotal.WithLabelValues(kindAgent, opUpsert).Add(float64(len(rows)))
	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"agents":  agents,
	}).Info("agents assigned")
	return rows, nil
}

func upsertAssignedAgent(ctx context.Context, tx storage.Storage, userID string, agent domain.AgentName, r domain.ResolvedWindow, isActive *bool, now time.Time) (*domain.AssignedAgent, error) {
	existing, err := tx.GetActiveAssignedAgent(ctx, userID, agent)
	switch {
	case err == nil:
		existing.Patch(r, isActive)
		existing.UpdatedAt = now
		if err := tx.UpdateAssignedAgent(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, domain.ErrNotFound):
		row := &domain.AssignedAgent{
			ID:        uuid.New().String(),
			UserID:    userID,
			AgentName: agent,
			Validity:  domain.NewValidity(r, isActive, now),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateAssignedAgent(ctx, row); err != nil {
			return nil, err
		}
		return row, nil
	default:
		return nil, err
	}
}

// Deactivate marks the active assignment of agent as inactive. The row is kept.
func (s *AssignmentService) Deactivate(ctx context.Context, ref domain.UserRef, agent domain.AgentName) (*domain.AssignedAgent, error) {
	user, err := s.users.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	var row *domain.AssignedAgent
	err = storage.WithTx(ctx, s.store, func(tx storage.Storage) error {
		row, err = tx.GetActiveAssignedAgent(ctx, user.ID, agent)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("no active assignment of agent %s for user %s", agent, user.Email)
		} else if err != nil {
			return err
		}
		row.IsActive = false
		row.UpdatedAt = s.now()
		return tx.UpdateAssignedAgent(ctx, row)
	})
	if err != nil {
		return nil, wrapf(err, "deactivating agent %s", agent)
	}

	assignmentOpsTotal.WithLabelValues(kindAgent, opDeactivate).Inc()
	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "agent": agent}).Info("agent assignment deactivated")
	return row, nil
}

// List returns the user's assignments, newest first.
func (s *AssignmentService) List(ctx context.Context, ref domain.UserRef, activeOnly bool) ([]*domain.AssignedAgent, error) {
	user, err := s.users.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListAssignedAgents(ctx, user.ID, activeOnly)
	if err != nil {
		return nil, wrapf(err, "listing assignments")
	}
	return rows, nil
}

// Selected returns the agents the user can use right now: active and not
// expired, newest-created first.
func (s *AssignmentService) Selected(ctx context.Context, ref domain.UserRef) (*domain.SelectedAgentsResponse, error) {
	user, err := s.users.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	names, err := s.store.ListSelectedAgentNames(ctx, user.ID, s.now())
	if err != nil {
		return nil, wrapf(err, "listing selected agents")
	}
	return &domain.SelectedAgentsResponse{UserID: user.ID, Agents: names}, nil
}
