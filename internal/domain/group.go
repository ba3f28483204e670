package domain

import "time"

// AgentGroup is a named, admin-managed set of agents.
type AgentGroup struct {
	ID          string      `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Description *string     `json:"description" db:"description"`
	IsActive    bool        `json:"isActive" db:"is_active"`
	Agents      []AgentName `json:"agents" db:"-"` // Stored in agent_group_items
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"updated_at"`
}

// AgentGroupItem is one membership row, unique on (GroupID, AgentName).
type AgentGroupItem struct {
	ID        string    `json:"id" db:"id"`
	GroupID   string    `json:"groupId" db:"group_id"`
	AgentName AgentName `json:"agentName" db:"agent_name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// GroupSortField is a column agent groups can be sorted by.
type GroupSortField string

const (
	GroupSortName      GroupSortField = "name"
	GroupSortCreatedAt GroupSortField = "createdAt"
	GroupSortUpdatedAt GroupSortField = "updatedAt"
)

// GroupListFilter controls ListAgentGroups.
type GroupListFilter struct {
	NameContains string
	IsActive     *bool
	Page         int // 1-based
	PageSize     int
	SortBy       GroupSortField
	Descending   bool
}

// Offset returns the row offset for the filter's page.
func (f GroupListFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// GroupPage is one page of agent groups plus the total match count.
type GroupPage struct {
	Items    []*AgentGroup `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// CreateGroupRequest is the request body for creating a group.
type CreateGroupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// UpdateGroupRequest is the request body for PATCH /admin/groups/{id}.
type UpdateGroupRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description Optional[string] `json:"description,omitzero"`
	IsActive    *bool            `json:"isActive,omitempty"`
}

// GroupAgentsRequest is the request body for membership endpoints.
type GroupAgentsRequest struct {
	AgentNames []string `json:"agentNames"`
}

// GroupAgentsResponse is returned by GET /admin/groups/{id}/agents.
type GroupAgentsResponse struct {
	GroupID string      `json:"groupId"`
	Agents  []AgentName `json:"agents"`
}

// CreateGroupWithAgentsRequest is the request body for /admin/groups-with-agents
// and its /assign variant (which also requires a user and accepts a window).
// IsActive applies to the group; the assignment is always created active.
type CreateGroupWithAgentsRequest struct {
	Name         string           `json:"name"`
	Description  *string          `json:"description,omitempty"`
	IsActive     *bool            `json:"isActive,omitempty"`
	AgentNames   []string         `json:"agentNames"`
	UserID       string           `json:"userId,omitempty"`
	Email        string           `json:"email,omitempty"`
	StartsAt     *string          `json:"startsAt,omitempty"`
	ExpiresAt    Optional[string] `json:"expiresAt,omitzero"`
	DurationDays *int             `json:"durationDays,omitempty"`
}

// Window returns the assignment window fields of the request.
func (r *CreateGroupWithAgentsRequest) Window() WindowRequest {
	return WindowRequest{
		StartsAt:     r.StartsAt,
		ExpiresAt:    r.ExpiresAt,
		DurationDays: r.DurationDays,
	}
}

// GroupWithAssignment is returned by /admin/groups-with-agents/assign.
type GroupWithAssignment struct {
	Group *AgentGroup `json:"group"`
	GroupAssignmentResult
}
