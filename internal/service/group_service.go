package service

import (
	"context"
	"errors"
	"slices"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/bcnelson/agent-access-manager/internal/validation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GroupService manages agent groups and their membership.
type GroupService struct {
	store  storage.Storage
	logger logrus.FieldLogger
	now    Clock
}

// NewGroupService creates a new GroupService.
func NewGroupService(store storage.Storage, logger logrus.FieldLogger, now Clock) *GroupService {
	return &GroupService{
		store:  store,
		logger: logger.WithField("component", "group_service"),
		now:    now,
	}
}

// GroupParams are the attributes of a new group.
type GroupParams struct {
	Name        string
	Description *string
	IsActive    *bool
}

func (s *GroupService) newGroup(p GroupParams) (*domain.AgentGroup, error) {
	name, err := validation.ValidateGroupName(p.Name)
	if err != nil {
		return nil, err
	}
	now := s.now()
	g := &domain.AgentGroup{
		ID:          uuid.New().String(),
		Name:        name,
		Description: p.Description,
		IsActive:    true,
		Agents:      []domain.AgentName{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.IsActive != nil {
		g.IsActive = *p.IsActive
	}
	return g, nil
}

func groupNotFound(err error, id string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFoundf("group %s not found", id)
	}
	return err
}

func groupNameTaken(err error, name string) error {
	if errors.Is(err, domain.ErrAlreadyExists) {
		return domain.Conflictf("group %q already exists", name)
	}
	return err
}

// Create creates an empty group. Names are unique.
func (s *GroupService) Create(ctx context.Context, p GroupParams) (*domain.AgentGroup, error) {
	g, err := s.newGroup(p)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAgentGroup(ctx, g); err != nil {
		return nil, wrapf(groupNameTaken(err, g.Name), "creating group")
	}

	s.logger.WithFields(logrus.Fields{"group_id": g.ID, "name": g.Name}).Info("group created")
	return g, nil
}

// CreateWithMembers creates a group and its members in one transaction.
func (s *GroupService) CreateWithMembers(ctx context.Context, p GroupParams, agents []domain.AgentName) (*domain.AgentGroup, error) {
	if len(agents) == 0 {
		return nil, validation.NewValidationError("agentNames", "", "must contain at least one agent name")
	}
	g, err := s.newGroup(p)
	if err != nil {
		return nil, err
	}
	agents = domain.UniqueAgentNames(agents)

	err = storage.WithTx(ctx, s.store, func(tx storage.Storage) error {
		if err := tx.CreateAgentGroup(ctx, g); err != nil {
			return groupNameTaken(err, g.Name)
		}
		_, err := tx.AddAgentGroupItems(ctx, g.ID, agents)
		return err
	})
	if err != nil {
		return nil, wrapf(err, "creating group %q", g.Name)
	}
	g.Agents = agents

	s.logger.WithFields(logrus.Fields{"group_id": g.ID, "name": g.Name, "agents": agents}).Info("group created with agents")
	return g, nil
}

// Get returns a group with its member agents.
func (s *GroupService) Get(ctx context.Context, id string) (*domain.AgentGroup, error) {
	g, err := s.store.GetAgentGroup(ctx, id)
	if err != nil {
		return nil, wrapf(groupNotFound(err, id), "getting group %s", id)
	}
	return g, nil
}

// List returns one page of groups matching filter plus the total match count.
func (s *GroupService) List(ctx context.Context, filter domain.GroupListFilter) (*domain.GroupPage, error) {
	groups, total, err := s.store.ListAgentGroups(ctx, filter)
	if err != nil {
		return nil, wrapf(err, "listing groups")
	}
	return &domain.GroupPage{
		Items:    groups,
		Total:    total,
		Page:     max(filter.Page, 1),
		PageSize: filter.PageSize,
	}, nil
}

// Update changes only the fields present in req.
func (s *GroupService) Update(ctx context.Context, id string, req domain.UpdateGroupRequest) (*domain.AgentGroup, error) {
	var g *domain.AgentGroup
	err := storage.WithTx(ctx, s.store, func(tx storage.Storage) error {
		var err error
		g, err = tx.GetAgentGroup(ctx, id)
		if err != nil {
			return groupNotFound(err, id)
		}

		if req.Name != nil {
			name, err := validation.ValidateGroupName(*req.Name)
			if err != nil {
				return err
			}
			g.Name = name
		}
		if req.Description.Set {
			g.Description = req.Description.Ptr()
		}
		if req.IsActive != nil {
			g.IsActive = *req.IsActive
		}
		g.UpdatedAt = s.now()

		return groupNameTaken(tx.UpdateAgentGroup(ctx, g), g.Name)
	})
	if err != nil {
		return nil, wrapf(err, "updating group %s", id)
	}

	s.logger.WithField("group_id", id).Info("group updated")
	return g, nil
}

// Delete removes a group, its members and every assignment of it.
func (s *GroupService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAgentGroup(ctx, id); err != nil {
		return wrapf(groupNotFound(err, id), "deleting group %s", id)
	}
	s.logger.WithField("group_id", id).Info("group deleted")
	return nil
}

// Members returns the group's agents in insertion order.
func (s *GroupService) Members(ctx context.Context, id string) ([]domain.AgentName, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.Agents, nil
}

// AddMembers inserts the agents that are not members yet and returns the group.
func (s *GroupService) AddMembers(ctx context.Context, id string, agents []domain.AgentName) (*domain.AgentGroup, error) {
	return s.editMembers(ctx, id, "agents added", func(tx storage.Storage, current []domain.AgentName) error {
		_, err := tx.AddAgentGroupItems(ctx, id, domain.UniqueAgentNames(agents))
		return err
	})
}

// RemoveMembers deletes the named agents. Non-members are ignored.
func (s *GroupService) RemoveMembers(ctx context.Context, id string, agents []domain.AgentName) (*domain.AgentGroup, error) {
	return s.editMembers(ctx, id, "agents removed", func(tx storage.Storage, current []domain.AgentName) error {
		_, err := tx.RemoveAgentGroupItems(ctx, id, agents)
		return err
	})
}

// ReplaceMembers makes agents the exact member set. An empty set clears the group.
func (s *GroupService) ReplaceMembers(ctx context.Context, id string, agents []domain.AgentName) (*domain.AgentGroup, error) {
	agents = domain.UniqueAgentNames(agents)
	return s.editMembers(ctx, id, "agents replaced", func(tx storage.Storage, current []domain.AgentName) error {
		var stale, missing []domain.AgentName
		for _, a := range current {
			if !slices.Contains(agents, a) {
				stale = append(stale, a)
			}
		}
		for _, a := range agents {
			if !slices.Contains(current, a) {
				missing = append(missing, a)
			}
		}
		if _, err := tx.RemoveAgentGroupItems(ctx, id, stale); err != nil {
			return err
		}
		_, err := tx.AddAgentGroupItems(ctx, id, missing)
		return err
	})
}

// editMembers runs a membership change in one transaction and returns the
// group as it is after the change.
func (s *GroupService) editMembers(ctx context.Context, id, msg string, edit func(tx storage.Storage, current []domain.AgentName) error) (*domain.AgentGroup, error) {
	var g *domain.AgentGroup
	err := storage.WithTx(ctx, s.store, func(tx storage.Storage) error {
		current, err := tx.GetAgentGroup(ctx, id)
		if err != nil {
			return groupNotFound(err, id)
		}
		if err := edit(tx, current.Agents); err != nil {
			return err
		}
		current.UpdatedAt = s.now()
		if err := tx.UpdateAgentGroup(ctx, current); err != nil {
			return err
		}
		g, err = tx.GetAgentGroup(ctx, id)
		return err
	})
	if err != nil {
		return nil, wrapf(err, "editing members of group %s", id)
	}

	s.logger.WithFields(logrus.Fields{"group_id": id, "agents": g.Agents}).Info(msg)
	return g, nil
}
