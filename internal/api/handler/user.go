package handler

import (
	"net/http"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/service"
	"github.com/bcnelson/agent-access-manager/internal/validation"
	"github.com/sirupsen/logrus"
)

// UserHandler handles user lookup and registration.
type UserHandler struct {
	users  *service.UserService
	logger logrus.FieldLogger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, logger logrus.FieldLogger) *UserHandler {
	return &UserHandler{users: users, logger: logger.WithField("handler", "users")}
}

// Create registers a user.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.AuthID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// Lookup finds a user by the email query parameter.
func (h *UserHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	email, err := validation.NormalizeEmail("email", r.URL.Query().Get("email"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Get gets a user by id.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
