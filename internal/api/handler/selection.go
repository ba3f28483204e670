package handler

import (
	"net/http"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/service"
	"github.com/bcnelson/agent-access-manager/internal/validation"
	"github.com/sirupsen/logrus"
)

// SelectionHandler handles the per-user selection mirror. Routes are mounted
// twice: under /users/{id} and under /users/email/{email}.
type SelectionHandler struct {
	selection *service.SelectionService
	logger    logrus.FieldLogger
}

// NewSelectionHandler creates a new SelectionHandler.
func NewSelectionHandler(selection *service.SelectionService, logger logrus.FieldLogger) *SelectionHandler {
	return &SelectionHandler{selection: selection, logger: logger.WithField("handler", "selection")}
}

func userRefFromPath(r *http.Request) (domain.UserRef, error) {
	if id := pathParam(r, "id"); id != "" {
		return domain.UserRef{ID: id}, nil
	}
	email, err := validation.NormalizeEmail("email", pathParam(r, "email"))
	if err != nil {
		return domain.UserRef{}, err
	}
	return domain.UserRef{Email: email}, nil
}

// Get returns the mirror.
func (h *SelectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref, err := userRefFromPath(r)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	resp, err := h.selection.Get(r.Context(), ref)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Set replaces the mirror.
func (h *SelectionHandler) Set(w http.ResponseWriter, r *http.Request) {
	ref, err := userRefFromPath(r)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	var req domain.SetSelectionRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	agents, err := validation.ValidateAgentNames("agents", req.Agents, true)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	resp, err := h.selection.Set(r.Context(), ref, agents)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Update adds, removes or toggles one agent.
func (h *SelectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	ref, err := userRefFromPath(r)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	var req domain.UpdateSelectionRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	agent, err := validation.ValidateAgentName("agent", req.Agent)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	resp, err := h.selection.Apply(r.Context(), ref, req.Action, agent)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Clear empties the mirror.
func (h *SelectionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ref, err := userRefFromPath(r)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	resp, err := h.selection.Clear(r.Context(), ref)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
