package domain

import "time"

// User is an account that can hold entitlements. Identity itself is managed
// by the external identity provider; this record only links it to agents.
type User struct {
	ID     string  `json:"id" db:"id"`
	Email  string  `json:"email" db:"email"`
	AuthID *string `json:"authId,omitempty" db:"auth_id"`
	// SelectedAgents is the selection mirror. It is independent of
	// AssignedAgent state and never synchronized with it.
	SelectedAgents []AgentName `json:"selectedAgents" db:"-"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"`
}

// CreateUserRequest is the request body for POST /admin/users.
type CreateUserRequest struct {
	Email  string  `json:"email"`
	AuthID *string `json:"authId,omitempty"`
}

// SelectionAction is a single-agent mutation of the selection mirror.
type SelectionAction string

const (
	SelectionAdd    SelectionAction = "add"
	SelectionRemove SelectionAction = "remove"
	SelectionToggle SelectionAction = "toggle"
)

// SetSelectionRequest is the request body for PUT /users/{id}/agents.
type SetSelectionRequest struct {
	Agents []string `json:"agents"`
}

// UpdateSelectionRequest is the request body for PATCH /users/{id}/agents.
type UpdateSelectionRequest struct {
	Action SelectionAction `json:"action"`
	Agent  string          `json:"agent"`
}

// SelectionResponse is returned by every selection mirror endpoint.
type SelectionResponse struct {
	UserID string      `json:"userId"`
	Agents []AgentName `json:"agents"`
}
