package domain

import "time"

// AssignedAgent is a direct entitlement of one user to one agent.
// At most one row per (UserID, AgentName) may be active.
type AssignedAgent struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	AgentName AgentName `json:"agentName" db:"agent_name"`
	Validity
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// AssignedGroup is an entitlement of one user to a whole agent group.
// At most one row per (UserID, GroupID) may be active.
type AssignedGroup struct {
	ID      string `json:"id" db:"id"`
	UserID  string `json:"userId" db:"user_id"`
	GroupID string `json:"groupId" db:"group_id"`
	Validity
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// GroupSelector picks a group by id or by unique name. Exactly one must be set.
type GroupSelector struct {
	GroupID   string `json:"groupId,omitempty"`
	GroupName string `json:"groupName,omitempty"`
}

// UserRef identifies a user by id or by email.
type UserRef struct {
	ID    string
	Email string
}

// WindowRequest carries the raw window fields shared by assignment requests.
// Dates are RFC 3339 timestamps or YYYY-MM-DD.
type WindowRequest struct {
	StartsAt     *string          `json:"startsAt,omitempty"`
	ExpiresAt    Optional[string] `json:"expiresAt,omitzero"`
	DurationDays *int             `json:"durationDays,omitempty"`
	IsActive     *bool            `json:"isActive,omitempty"`
}

// AssignAgentRequest is the request body for POST /admin/assign.
type AssignAgentRequest struct {
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	AgentName string `json:"agentName"`
	WindowRequest
}

// AssignAgentsRequest is the request body for POST /admin/assign/bulk.
type AssignAgentsRequest struct {
	UserID     string   `json:"userId,omitempty"`
	Email      string   `json:"email,omitempty"`
	AgentNames []string `json:"agentNames"`
	WindowRequest
}

// DeactivateAgentRequest is the request body for POST /admin/deactivate.
type DeactivateAgentRequest struct {
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	AgentName string `json:"agentName"`
}

// AssignGroupRequest is the request body for assigning a single group.
type AssignGroupRequest struct {
	UserID   string         `json:"userId,omitempty"`
	Email    string         `json:"email,omitempty"`
	Selector *GroupSelector `json:"selector"`
	WindowRequest
}

// AssignGroupsRequest is the request body for POST /admin/assign/groups.
type AssignGroupsRequest struct {
	UserID    string          `json:"userId,omitempty"`
	Email     string          `json:"email,omitempty"`
	Selectors []GroupSelector `json:"selectors"`
	WindowRequest
}

// DeactivateGroupRequest is the request body for deactivating a group assignment.
type DeactivateGroupRequest struct {
	UserID   string         `json:"userId,omitempty"`
	Email    string         `json:"email,omitempty"`
	Selector *GroupSelector `json:"selector"`
}

// MyGroupAssignmentRequest is the request body for PATCH /admin/my/group-assignment.
type MyGroupAssignmentRequest struct {
	Selector *GroupSelector `json:"selector"`
	WindowRequest
}

// ExtendGroupAssignmentRequest is the request body for the extend endpoint.
type ExtendGroupAssignmentRequest struct {
	Selector *GroupSelector `json:"selector"`
	AddDays  *int           `json:"addDays"`
}

// MySelectorRequest is the request body for self-service deactivation.
type MySelectorRequest struct {
	Selector *GroupSelector `json:"selector"`
}

// GroupAssignmentResult is returned by group assignment operations.
type GroupAssignmentResult struct {
	Assignments []*AssignedGroup `json:"groupAssignments"`
	Agents      []*AssignedAgent `json:"agentAssignments"`
}

// SelectedAgentsResponse is returned by GET /admin/selected-agents.
type SelectedAgentsResponse struct {
	UserID string      `json:"userId"`
	Agents []AgentName `json:"agents"`
}
