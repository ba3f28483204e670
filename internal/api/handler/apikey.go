package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/bcnelson/agent-access-manager/internal/validation"
	"github.com/sirupsen/logrus"
)

// APIKeyHandler handles API key endpoints.
type APIKeyHandler struct {
	store  storage.Storage
	logger logrus.FieldLogger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(store storage.Storage, logger logrus.FieldLogger) *APIKeyHandler {
	return &APIKeyHandler{store: store, logger: logger.WithField("handler", "api_keys")}
}

// Create creates a new API key. The plaintext key is only returned here.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		handleError(w, h.logger, validation.NewValidationError("name", req.Name, "name is required"))
		return
	}

	key, hash, prefix, err := generateAPIKey()
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	apiKey := &domain.APIKey{
		ID:        generateID(),
		Name:      name,
		KeyHash:   hash,
		KeyPrefix: prefix,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateAPIKey(r.Context(), apiKey); err != nil {
		handleError(w, h.logger, err)
		return
	}
	h.logger.WithFields(logrus.Fields{"api_key_id": apiKey.ID, "name": name}).Info("api key created")

	respondJSON(w, http.StatusCreated, &domain.CreateAPIKeyResponse{
		ID:        apiKey.ID,
		Name:      apiKey.Name,
		Key:       key,
		KeyPrefix: apiKey.KeyPrefix,
		CreatedAt: apiKey.CreatedAt,
	})
}

// List lists all API keys (without the actual key values).
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(keys))
}

// Delete deletes an API key.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.store.DeleteAPIKey(r.Context(), id); err != nil {
		if err == domain.ErrNotFound {
			err = domain.NotFoundf("api key %s not found", id)
		}
		handleError(w, h.logger, err)
		return
	}
	h.logger.WithField("api_key_id", id).Info("api key deleted")
	w.WriteHeader(http.StatusNoContent)
}
