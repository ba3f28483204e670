package handler

import (
	"net/http"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/service"
	"github.com/bcnelson/agent-access-manager/internal/validation"
	"github.com/sirupsen/logrus"
)

// AssignmentHandler handles direct agent assignment endpoints.
type AssignmentHandler struct {
	assignments *service.AssignmentService
	logger      logrus.FieldLogger
}

// NewAssignmentHandler creates a new AssignmentHandler.
func NewAssignmentHandler(assignments *service.AssignmentService, logger logrus.FieldLogger) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, logger: logger.WithField("handler", "assignments")}
}

// Assign creates or patches the active assignment of one agent.
func (h *AssignmentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req domain.AssignAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	var errs validation.ValidationErrors
	ref, err := validation.ValidateUserRef(req.UserID, req.Email)
	errs.Merge(err)
	agent, err := validation.ValidateAgentName("agentName", req.AgentName)
	errs.Merge(err)
	window, err := validation.ParseWindow(req.WindowRequest)
	errs.Merge(err)
	if err := errs.Err(); err != nil {
		handleError(w, h.logger, err)
		return
	}

	row, err := h.assignments.Assign(r.Context(), ref, agent, window, req.IsActive)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, row)
}

// AssignBulk assigns several agents with one window.
func (h *AssignmentHandler) AssignBulk(w http.ResponseWriter, r *http.Request) {
	var req domain.AssignAgentsRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	var errs validation.ValidationErrors
	ref, err := validation.ValidateUserRef(req.UserID, req.Email)
	errs.Merge(err)
	agents, err := validation.ValidateAgentNames("agentNames", req.AgentNames, false)
	errs.Merge(err)
	window, err := validation.ParseWindow(req.WindowRequest)
	errs.Merge(err)
	if err := errs.Err(); err != nil {
		handleError(w, h.logger, err)
		return
	}

	rows, err := h.assignments.AssignBulk(r.Context(), ref, agents, window, req.IsActive)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(rows))
}

// Deactivate deactivates the active assignment of one agent.
func (h *AssignmentHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req domain.DeactivateAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	var errs validation.ValidationErrors
	ref, err := validation.ValidateUserRef(req.UserID, req.Email)
	errs.Merge(err)
	agent, err := validation.ValidateAgentName("agentName", req.AgentName)
	errs.Merge(err)
	if err := errs.Err(); err != nil {
		handleError(w, h.logger, err)
		return
	}

	row, err := h.assignments.Deactivate(r.Context(), ref, agent)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, row)
}

// List lists a user's agent assignments, optionally only active ones.
func (h *AssignmentHandler) List(w http.ResponseWriter, r *http.Request) {
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

	rows, err := h.assignments.List(r.Context(), ref, activeOnly != nil && *activeOnly)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(rows))
}

// Selected returns the agents a user can use right now.
func (h *AssignmentHandler) Selected(w http.ResponseWriter, r *http.Request) {
	ref, err := userRefFromQuery(r)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	resp, err := h.assignments.Selected(r.Context(), ref)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
