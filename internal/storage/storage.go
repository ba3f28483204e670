package storage

import (
	"context"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use and must translate driver
// errors into domain error kinds (ErrNotFound, ErrAlreadyExists,
// ErrUnavailable, ErrInternal).
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateSelectedAgents(ctx context.Context, userID string, agents []domain.AgentName) error

	// Agent Groups
	CreateAgentGroup(ctx context.Context, group *domain.AgentGroup) error
	GetAgentGroup(ctx context.Context, id string) (*domain.AgentGroup, error)
	GetAgentGroupByName(ctx context.Context, name string) (*domain.AgentGroup, error)
	ListAgentGroups(ctx context.Context, filter domain.GroupListFilter) ([]*domain.AgentGroup, int, error)
	UpdateAgentGroup(ctx context.Context, group *domain.AgentGroup) error
	// DeleteAgentGroup removes the group, its items and every assigned_groups
	// row that references it.
	DeleteAgentGroup(ctx context.Context, id string) error

	// Agent Group Items
	ListAgentGroupItems(ctx context.Context, groupID string) ([]*domain.AgentGroupItem, error)
	// AddAgentGroupItems inserts the missing (group, agent) pairs and skips
	// existing ones. It returns the number of rows inserted.
	AddAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (int, error)
	// RemoveAgentGroupItems deletes matching pairs and returns the number removed.
	RemoveAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (int, error)

	// Assigned Agents
	CreateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error
	GetActiveAssignedAgent(ctx context.Context, userID string, agent domain.AgentName) (*domain.AssignedAgent, error)
	ListAssignedAgents(ctx context.Context, userID string, activeOnly bool) ([]*domain.AssignedAgent, error)
	// ListSelectedAgentNames returns agents with an active row whose expiry is
	// null or after now, newest-created first.
	ListSelectedAgentNames(ctx context.Context, userID string, now time.Time) ([]domain.AgentName, error)
	UpdateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error

	// Assigned Groups
	CreateAssignedGroup(ctx context.Context, a *domain.AssignedGroup) error
	GetActiveAssignedGroup(ctx context.Context, userID, groupID string) (*domain.AssignedGroup, error)
	ListAssignedGroups(ctx context.Context, userID string, activeOnly bool) ([]*domain.AssignedGroup, error)
	UpdateAssignedGroup(ctx context.Context, a *domain.AssignedGroup) error

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Storage
	Commit() error
	Rollback() error
}

// WithTx runs fn inside a transaction. The transaction is rolled back when fn
// returns an error and committed otherwise.
func WithTx(ctx context.Context, store Storage, fn func(tx Storage) error) error {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
