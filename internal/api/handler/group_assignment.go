package handler

import (
	"net/http"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/service"
	"github.com/bcnelson/agent-access-manager/internal/validation"
	"github.com/sirupsen/logrus"
)

// GroupAssignmentHandler handles group assignment and self-service endpoints.
type GroupAssignmentHandler struct {
	groupAssignments *service.GroupAssignmentService
	logger           logrus.FieldLogger
}

// NewGroupAssignmentHandler creates a new GroupAssignmentHandler.
func NewGroupAssignmentHandler(groupAssignments *service.GroupAssignmentService, logger logrus.FieldLogger) *GroupAssignmentHandler {
	return &GroupAssignmentHandler{
		groupAssignments: groupAssignments,
		logger:           logger.WithField("handler", "group_assignments"),
	}
}

// AssignGroup assigns one group and materializes its agents.
func (h *GroupAssignmentHandler) AssignGroup(w http.ResponseWriter, r *http.Request) {
	var req domain.AssignGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	var errs validation.ValidationErrors
	ref, err := validation.ValidateUserRef(req.UserID, req.Email)
	errs.Merge(err)
	sel, err := validation.ValidateSelector("selector", req.Selector)
	errs.Merge(err)
	window, err := validation.ParseWindow(req.WindowRequest)
	errs.Merge(err)
	if err := errs.Err(); err != nil {
		handleError(w, h.logger, err)
		return
	}

	result, err := h.groupAssignments.AssignGroup(r.Context(), ref, sel, window, req.IsActive)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// AssignGroups assigns several groups and materializes the union of their agents.
func (h *GroupAssignmentHandler) AssignGroups(w http.ResponseWriter, r *http.Request) {
	var req domain.AssignGroupsRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	var errs validation.ValidationErrors
	ref, err := validation.ValidateUserRef(req.UserID, req.Email)
	errs.Merge(err)
	sels, err := validation.ValidateSelectors("selectors", req.Selectors)
	errs.Merge(err)
	window, err := validation.ParseWindow(req.WindowRequest)
	errs.Merge(err)
	if err := errs.Err(); err != nil {
		handleError(w, h.logger, err)
		return
	}

	result, err := h.groupAssignments.AssignGroups(r.Context(), ref, sels, window, req.IsActive)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Upsert writes the group assignment row only; agents are not materialized.
func (h *GroupAssignmentHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req domain.AssignGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	var errs validation.ValidationErrors
	ref, err := validation.ValidateUserRef(req.UserID, req.Email)
	errs.Merge(err)
	sel, err := validation.ValidateSelector("selector", req.Selector)
	errs.Merge(err)
	window, err := validation.ParseWindow(req.WindowRequest)
	errs.Merge(err)
	if err := errs.Err(); err != nil {
		handleError(w, h.logger, err)
		return
	}

	row, err := h.groupAssignments.UpsertGroupAssignment(r.Context(), ref, sel, window, req.IsActive)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, row)
}

// List lists a user's group assignments.
func (h *GroupAssignmentHandler) List(w http.ResponseWriter, r *http.Request) {
	ref, err := userRefFromQuery(r)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	activeOnly, err := validation.ParseBool("activeOnly", r.URL.Query().Get("activeOnly"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	rows, err := h.groupAssignments.ListGroupAssignments(r.Context(), ref, activeOnly != nil && *activeOnly)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(rows))
}

// Deactivate deactivates a user's active assignment of a group. Materialized
// agent rows are left alone.
func (h *GroupAssignmentHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req domain.DeactivateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	var errs validation.ValidationErrors
	ref, err := validation.ValidateUserRef(req.UserID, req.Email)
	errs.Merge(err)
	sel, err := validation.ValidateSelector("selector", req.Selector)
	errs.Merge(err)
	if err := errs.Err(); err != nil {
		handleError(w, h.logger, err)
		return
	}

	row, err := h.groupAssignments.DeactivateGroup(r.Context(), ref, sel)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, row)
}

// UpdateMine patches the caller's own group assignment.
func (h *GroupAssignmentHandler) UpdateMine(w http.ResponseWriter, r *http.Request) {
	email, err := callerEmail(r)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	var req domain.MyGroupAssignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	var errs validation.ValidationErrors
	sel, err := validation.ValidateSelector("selector", req.Selector)
	errs.Merge(err)
	window, err := validation.ParseWindow(req.WindowRequest)
	errs.Merge(err)
	if err := errs.Err(); err != nil {
		handleError(w, h.logger, err)
		return
	}

	row, err := h.groupAssignments.UpdateMyAssignment(r.Context(), email, sel, window, req.IsActive)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, row)
}

// ExtendMine shifts the caller's expiry by addDays.
func (h *GroupAssignmentHandler) ExtendMine(w http.ResponseWriter, r *http.Request) {
	email, err := callerEmail(r)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	var req domain.ExtendGroupAssignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	sel, err := validation.ValidateSelector("selector", req.Selector)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	row, err := h.groupAssignments.ExtendMyAssignment(r.Context(), email, sel, req.AddDays)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, row)
}

// DeactivateMine deactivates the caller's own group assignment.
func (h *GroupAssignmentHandler) DeactivateMine(w http.ResponseWriter, r *http.Request) {
	email, err := callerEmail(r)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	var req domain.MySelectorRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	sel, err := validation.ValidateSelector("selector", req.Selector)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	row, err := h.groupAssignments.DeactivateMyAssignment(r.Context(), email, sel)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, row)
}
