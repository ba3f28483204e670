package handler

import (
	"context"
	"net/http"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/service"
	"github.com/bcnelson/agent-access-manager/internal/validation"
	"github.com/sirupsen/logrus"
)

// GroupHandler handles agent group endpoints.
type GroupHandler struct {
	groups           *service.GroupService
	groupAssignments *service.GroupAssignmentService
	logger           logrus.FieldLogger
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groups *service.GroupService, groupAssignments *service.GroupAssignmentService, logger logrus.FieldLogger) *GroupHandler {
	return &GroupHandler{
		groups:           groups,
		groupAssignments: groupAssignments,
		logger:           logger.WithField("handler", "groups"),
	}
}

// Create creates an empty group.
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	group, err := h.groups.Create(r.Context(), service.GroupParams{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, group)
}

// List lists groups with filtering, sorting and pagination.
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := validation.ParseGroupListFilter(r.URL.Query())
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	page, err := h.groups.List(r.Context(), filter)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// Get gets a group with its members.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	group, err := h.groups.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// Update patches a group's name, description or active flag.
func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	group, err := h.groups.Update(r.Context(), pathParam(r, "id"), req)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// Delete deletes a group, its members and every assignment of it.
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.groups.Delete(r.Context(), pathParam(r, "id")); err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Members lists a group's agents.
func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	agents, err := h.groups.Members(r.Context(), pathParam(r, "id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, &domain.GroupAgentsResponse{
		GroupID: pathParam(r, "id"),
		Agents:  nonNil(agents),
	})
}

// AddMembers adds agents, skipping existing members.
func (h *GroupHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	h.editMembers(w, r, false, h.groups.AddMembers)
}

// RemoveMembers removes agents; unknown members are ignored.
func (h *GroupHandler) RemoveMembers(w http.ResponseWriter, r *http.Request) {
	h.editMembers(w, r, false, h.groups.RemoveMembers)
}

// ReplaceMembers makes the membership exactly the given list.
func (h *GroupHandler) ReplaceMembers(w http.ResponseWriter, r *http.Request) {
	h.editMembers(w, r, true, h.groups.ReplaceMembers)
}

type memberEdit func(ctx context.Context, id string, agents []domain.AgentName) (*domain.AgentGroup, error)

func (h *GroupHandler) editMembers(w http.ResponseWriter, r *http.Request, allowEmpty bool, edit memberEdit) {
	var req domain.GroupAgentsRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	agents, err := validation.ValidateAgentNames("agentNames", req.AgentNames, allowEmpty)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	group, err := edit(r.Context(), pathParam(r, "id"), agents)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// CreateWithAgents creates a group and its members in one step.
func (h *GroupHandler) CreateWithAgents(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateGroupWithAgentsRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	agents, err := validation.ValidateAgentNames("agentNames", req.AgentNames, false)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	group, err := h.groups.CreateWithMembers(r.Context(), groupParams(&req), agents)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, group)
}

// CreateWithAgentsAndAssign creates a group with members and assigns it to a
// user, materializing the agents.
func (h *GroupHandler) CreateWithAgentsAndAssign(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateGroupWithAgentsRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	var errs validation.ValidationErrors
	agents, err := validation.ValidateAgentNames("agentNames", req.AgentNames, false)
	errs.Merge(err)
	ref, err := validation.ValidateUserRef(req.UserID, req.Email)
	errs.Merge(err)
	window, err := validation.ParseWindow(req.Window())
	errs.Merge(err)
	if err := errs.Err(); err != nil {
		handleError(w, h.logger, err)
		return
	}

	result, err := h.groupAssignments.CreateGroupAndAssign(r.Context(), groupParams(&req), agents, ref, window)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func groupParams(req *domain.CreateGroupWithAgentsRequest) service.GroupParams {
	return service.GroupParams{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	}
}
