package service

import (
	"context"
	"errors"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/bcnelson/agent-access-manager/internal/validation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GroupAssignmentService manages (user, group) assignments and materializes
// them into direct agent assignments.
//
// Materialization happens once, at assignment time. Later membership edits do
// not touch agent rows that were already created, and deactivating a group
// assignment leaves its agent rows active.
type GroupAssignmentService struct {
	store         storage.Storage
	users         *UserService
	groups        *GroupService
	assignments   *AssignmentService
	logger        logrus.FieldLogger
	now           Clock
	maxExtendDays int
}

// NewGroupAssignmentService creates a new GroupAssignmentService.
func NewGroupAssignmentService(
	store storage.Storage,
	users *UserService,
	groups *GroupService,
	assignments *AssignmentService,
	logger logrus.FieldLogger,
	now Clock,
	maxExtendDays int,
) *GroupAssignmentService {
	return &GroupAssignmentService{
		store:         store,
		users:         users,
		groups:        groups,
		assignments:   assignments,
		logger:        logger.WithField("component", "group_assignment_service"),
		now:           now,
		maxExtendDays: maxExtendDays,
	}
}

// ResolveGroup finds the group named by sel, by id or by unique name.
func (s *GroupAssignmentService) ResolveGroup(ctx context.Context, sel domain.GroupSelector) (*domain.AgentGroup, error) {
	sel, err := validation.ValidateSelector("selector", &sel)
	if err != nil {
		return nil, err
	}

	var g *domain.AgentGroup
	if sel.GroupID != "" {
		g, err = s.store.GetAgentGroup(ctx, sel.GroupID)
	} else {
		g, err = s.store.GetAgentGroupByName(ctx, sel.GroupName)
	}
	switch {
	case errors.Is(err, domain.ErrNotFound) && sel.GroupID != "":
		return nil, domain.NotFoundf("group %s not found", sel.GroupID)
	case errors.Is(err, domain.ErrNotFound):
		return nil, domain.NotFoundf("group %q not found", sel.GroupName)
	case err != nil:
		return nil, wrapf(err, "resolving group")
	}
	return g, nil
}

// ExpandGroup reads the group's current members, deduplicated and in
// insertion order. A group without members cannot be assigned.
func (s *GroupAssignmentService) ExpandGroup(ctx context.Context, g *domain.AgentGroup) ([]domain.AgentName, error) {
	agents, err := s.members(ctx, g)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, domain.Invalidf("group %q has no agents", g.Name)
	}
	return agents, nil
}

func (s *GroupAssignmentService) members(ctx context.Context, g *domain.AgentGroup) ([]domain.AgentName, error) {
	items, err := s.store.ListAgentGroupItems(ctx, g.ID)
	if err != nil {
		return nil, wrapf(err, "reading members of group %q", g.Name)
	}
	agents := make([]domain.AgentName, 0, len(items))
	for _, it := range items {
		agents = append(agents, it.AgentName)
	}
	return domain.UniqueAgentNames(agents), nil
}

// AssignGroup upserts the user's assignment of one group and materializes its
// members as direct assignments.
//
// The group row and the agent rows are written in separate transactions. If
// the second one fails the group row stays recorded; calling AssignGroup
// again is idempotent and completes the materialization.
func (s *GroupAssignmentService) AssignGroup(ctx context.Context, ref domain.UserRef, sel domain.GroupSelector, w domain.Window, isActive *bool) (*domain.GroupAssignmentResult, error) {
	return s.AssignGroups(ctx, ref, []domain.GroupSelector{sel}, w, isActive)
}

// AssignGroups assigns several groups at once and materializes the union of
// their members with one bulk upsert. Individual groups may be empty as long
// as the union is not.
func (s *GroupAssignmentService) AssignGroups(ctx context.Context, ref domain.UserRef, sels []domain.GroupSelector, w domain.Window, isActive *bool) (*domain.GroupAssignmentResult, error) {
	user, err := s.users.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	var (
		groups []*domain.AgentGroup
		seen   = make(map[string]bool)
	)
	for _, sel := range sels {
		g, err := s.ResolveGroup(ctx, sel)
		if err != nil {
			return nil, err
		}
		if !seen[g.ID] {
			seen[g.ID] = true
			groups = append(groups, g)
		}
	}

	// A lone group must have members; repeated selectors of it count once.
	var union []domain.AgentName
	for _, g := range groups {
		var agents []domain.AgentName
		if len(groups) == 1 {
			agents, err = s.ExpandGroup(ctx, g)
		} else {
			agents, err = s.members(ctx, g)
		}
		if err != nil {
			return nil, err
		}
		union = append(union, agents...)
	}
	union = domain.UniqueAgentNames(union)
	if len(union) == 0 {
		return nil, domain.Invalidf("selected groups have no agents")
	}

	now := s.now()
	r := w.Resolve(now)

	rows, err := s.upsertGroupRows(ctx, user, groups, r, isActive, now)
	if err != nil {
		return nil, err
	}
	agentRows, err := s.assignments.upsertMany(ctx, user, union, r, isActive, now)
	if err != nil {
		return nil, err
	}

	return &domain.GroupAssignmentResult{Assignments: rows, Agents: agentRows}, nil
}

// UpsertGroupAssignment writes only the (user, group) row, without
// materializing agents.
func (s *GroupAssignmentService) UpsertGroupAssignment(ctx context.Context, ref domain.UserRef, sel domain.GroupSelector, w domain.Window, isActive *bool) (*domain.AssignedGroup, error) {
	user, err := s.users.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	g, err := s.ResolveGroup(ctx, sel)
	if err != nil {
		return nil, err
	}
	now := s.now()
	rows, err := s.upsertGroupRows(ctx, user, []*domain.AgentGroup{g}, w.Resolve(now), isActive, now)
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (s *GroupAssignmentService) upsertGroupRows(ctx context.Context, user *domain.User, groups []*domain.AgentGroup, r domain.ResolvedWindow, isActive *bool, now time.Time) ([]*domain.AssignedGroup, error) {
	var rows []*domain.AssignedGroup
	err := retryOnConflict(kindGroup, func() error {
		rows = make([]*domain.AssignedGroup, 0, len(groups))
		return storage.WithTx(ctx, s.store, func(tx storage.Storage) error {
			for _, g := range groups {
				row, err := upsertAssignedGroup(ctx, tx, user.ID, g.ID, r, isActive, now)
				if err != nil {
					return err
				}
				rows = append(rows, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapf(err, "assigning groups to user %s", user.Email)
	}

	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	assignmentOpsTotal.WithLabelValues(kindGroup, opUpsert).Add(float64(len(rows)))
	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "group_ids": ids}).Info("groups assigned")
	return rows, nil
}

func upsertAssignedGroup(ctx context.Context, tx storage.Storage, userID, groupID string, r domain.ResolvedWindow, isActive *bool, now time.Time) (*domain.AssignedGroup, error) {
	existing, err := tx.GetActiveAssignedGroup(ctx, userID, groupID)
	switch {
	case err == nil:
		existing.Patch(r, isActive)
		existing.UpdatedAt = now
		if err := tx.UpdateAssignedGroup(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, domain.ErrNotFound):
		row := &domain.AssignedGroup{
			ID:        uuid.New().String(),
			UserID:    userID,
			GroupID:   groupID,
			Validity:  domain.NewValidity(r, isActive, now),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateAssignedGroup(ctx, row); err != nil {
			return nil, err
		}
		return row, nil
	default:
		return nil, err
	}
}

// CreateGroupAndAssign creates a group with members and assigns it to the
// user. The user is resolved first so an unknown user leaves no group behind.
func (s *GroupAssignmentService) CreateGroupAndAssign(ctx context.Context, p GroupParams, agents []domain.AgentName, ref domain.UserRef, w domain.Window) (*domain.GroupWithAssignment, error) {
	if _, err := s.users.Resolve(ctx, ref); err != nil {
		return nil, err
	}
	g, err := s.groups.CreateWithMembers(ctx, p, agents)
	if err != nil {
		return nil, err
	}
	result, err := s.AssignGroup(ctx, ref, domain.GroupSelector{GroupID: g.ID}, w, nil)
	if err != nil {
		return nil, err
	}
	return &domain.GroupWithAssignment{Group: g, GroupAssignmentResult: *result}, nil
}

// DeactivateGroup marks the user's active assignment of the group inactive.
// Agent rows materialized from it are left as they are.
func (s *GroupAssignmentService) DeactivateGroup(ctx context.Context, ref domain.UserRef, sel domain.GroupSelector) (*domain.AssignedGroup, error) {
	row, err := s.patchActive(ctx, ref, sel, func(a *domain.AssignedGroup) error {
		a.IsActive = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	assignmentOpsTotal.WithLabelValues(kindGroup, opDeactivate).Inc()
	return row, nil
}

// ListGroupAssignments returns the user's group assignments, newest first.
func (s *GroupAssignmentService) ListGroupAssignments(ctx context.Context, ref domain.UserRef, activeOnly bool) ([]*domain.AssignedGroup, error) {
	user, err := s.users.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListAssignedGroups(ctx, user.ID, activeOnly)
	if err != nil {
		return nil, wrapf(err, "listing group assignments")
	}
	return rows, nil
}

// UpdateMyAssignment patches the caller's own active assignment of a group.
func (s *GroupAssignmentService) UpdateMyAssignment(ctx context.Context, callerEmail string, sel domain.GroupSelector, w domain.Window, isActive *bool) (*domain.AssignedGroup, error) {
	r := w.Resolve(s.now())
	return s.patchActive(ctx, domain.UserRef{Email: callerEmail}, sel, func(a *domain.AssignedGroup) error {
		a.Patch(r, isActive)
		return nil
	})
}

// ExtendMyAssignment shifts the caller's expiry by addDays calendar days,
// counting from the current expiry or from now when there is none.
func (s *GroupAssignmentService) ExtendMyAssignment(ctx context.Context, callerEmail string, sel domain.GroupSelector, addDays *int) (*domain.AssignedGroup, error) {
	days, err := validation.ValidateAddDays(addDays, s.maxExtendDays)
	if err != nil {
		return nil, err
	}
	row, err := s.patchActive(ctx, domain.UserRef{Email: callerEmail}, sel, func(a *domain.AssignedGroup) error {
		base := s.now()
		if a.ExpiresAt != nil {
			base = *a.ExpiresAt
		}
		expires := base.AddDate(0, 0, days)
		a.ExpiresAt = &expires
		return nil
	})
	if err != nil {
		return nil, err
	}
	assignmentOpsTotal.WithLabelValues(kindGroup, opExtend).Inc()
	return row, nil
}

// DeactivateMyAssignment deactivates the caller's own assignment of a group.
func (s *GroupAssignmentService) DeactivateMyAssignment(ctx context.Context, callerEmail string, sel domain.GroupSelector) (*domain.AssignedGroup, error) {
	return s.DeactivateGroup(ctx, domain.UserRef{Email: callerEmail}, sel)
}

// patchActive loads the active (user, group) row, applies fn and saves it in
// one transaction.
func (s *GroupAssignmentService) patchActive(ctx context.Context, ref domain.UserRef, sel domain.GroupSelector, fn func(a *domain.AssignedGroup) error) (*domain.AssignedGroup, error) {
	user, err := s.users.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	g, err := s.ResolveGroup(ctx, sel)
	if err != nil {
		return nil, err
	}

	var row *domain.AssignedGroup
	err = storage.WithTx(ctx, s.store, func(tx storage.Storage) error {
		var err error
		row, err = tx.GetActiveAssignedGroup(ctx, user.ID, g.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundf("no active assignment of group %q for user %s", g.Name, user.Email)
		} else if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
		row.UpdatedAt = s.now()
		return tx.UpdateAssignedGroup(ctx, row)
	})
	if err != nil {
		return nil, wrapf(err, "updating assignment of group %q", g.Name)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   user.ID,
		"group_id":  g.ID,
		"is_active": row.IsActive,
	}).Info("group assignment updated")
	return row, nil
}
