package sql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New connects to the database and applies pending migrations.
// Supported drivers are "sqlite3" and "postgres".
func New(driver, dsn string, logger logrus.FieldLogger) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if logger != nil {
		goose.SetLogger(logger)
	}
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return dbError(s.db.PingContext(ctx))
}

// Truncate deletes every row from every table. It is meant for test suites
// that share one database between cases.
func (s *Store) Truncate(ctx context.Context) error {
	for _, table := range []string{"assigned_groups", "assigned_agents", "agent_group_items", "agent_groups", "users", "api_keys"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return dbError(err)
		}
	}
	return nil
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, dbError(err)
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return dbError(t.tx.Commit())
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close is a no-op for transactions (they should be committed or rolled back).
func (t *Tx) Close() error {
	return nil
}

// Ping is a no-op inside a transaction.
func (t *Tx) Ping(ctx context.Context) error {
	return nil
}

// BeginTx is not supported within a transaction.
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("%w: nested transactions not supported", domain.ErrInternal)
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execAffecting runs a write and reports ErrNotFound when no row matched.
func execAffecting(ctx context.Context, db dbInterface, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// API Keys
// ============================================

const apiKeyColumns = `id, name, key_hash, key_prefix, created_at, last_used_at`

func createAPIKey(ctx context.Context, db dbInterface, key *domain.APIKey) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt.UTC(), key.LastUsedAt)
	return dbError(err)
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, s.db, key)
}

func (t *Tx) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, t.tx, key)
}

func getAPIKeyByHash(ctx context.Context, db dbInterface, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := db.GetContext(ctx, &key,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash)
	if err != nil {
		return nil, dbError(err)
	}
	return &key, nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, s.db, keyHash)
}

func (t *Tx) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, t.tx, keyHash)
}

func listAPIKeys(ctx context.Context, db dbInterface) ([]*domain.APIKey, error) {
	keys := []*domain.APIKey{}
	err := db.SelectContext(ctx, &keys,
		`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, dbError(err)
	}
	return keys, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, s.db)
}

func (t *Tx) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, t.tx)
}

func deleteAPIKey(ctx context.Context, db dbInterface, id string) error {
	return execAffecting(ctx, db, `DELETE FROM api_keys WHERE id = $1`, id)
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, s.db, id)
}

func (t *Tx) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, t.tx, id)
}

func updateAPIKeyLastUsed(ctx context.Context, db dbInterface, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	return dbError(err)
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, s.db, id)
}

func (t *Tx) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, t.tx, id)
}

func countAPIKeys(ctx context.Context, db dbInterface) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, dbError(err)
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, s.db)
}

func (t *Tx) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, t.tx)
}

// ============================================
// Users
// ============================================

const userColumns = `id, email, auth_id, selected_agents, created_at, updated_at`

// userRow carries the JSON-encoded selection mirror column.
type userRow struct {
	domain.User
	SelectedJSON string `db:"selected_agents"`
}

func (r *userRow) toUser() (*domain.User, error) {
	u := r.User
	u.SelectedAgents = []domain.AgentName{}
	if r.SelectedJSON != "" {
		if err := json.Unmarshal([]byte(r.SelectedJSON), &u.SelectedAgents); err != nil {
			return nil, fmt.Errorf("%w: decoding selected agents of user %s: %v", domain.ErrInternal, u.ID, err)
		}
	}
	return &u, nil
}

func encodeAgents(agents []domain.AgentName) (string, error) {
	if agents == nil {
		agents = []domain.AgentName{}
	}
	b, err := json.Marshal(agents)
	if err != nil {
		return "", fmt.Errorf("%w: encoding agents: %v", domain.ErrInternal, err)
	}
	return string(b), nil
}

func createUser(ctx context.Context, db dbInterface, user *domain.User) error {
	selected, err := encodeAgents(user.SelectedAgents)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.AuthID, selected, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	return dbError(err)
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	return createUser(ctx, s.db, user)
}

func (t *Tx) CreateUser(ctx context.Context, user *domain.User) error {
	return createUser(ctx, t.tx, user)
}

func getUserWhere(ctx context.Context, db dbInterface, where string, arg any) (*domain.User, error) {
	var row userRow
	err := db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if err != nil {
		return nil, dbError(err)
	}
	return row.toUser()
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUserWhere(ctx, s.db, `id = $1`, id)
}

func (t *Tx) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUserWhere(ctx, t.tx, `id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return getUserWhere(ctx, s.db, `email = $1`, email)
}

func (t *Tx) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return getUserWhere(ctx, t.tx, `email = $1`, email)
}

func updateSelectedAgents(ctx context.Context, db dbInterface, userID string, agents []domain.AgentName) error {
	selected, err := encodeAgents(agents)
	if err != nil {
		return err
	}
	return execAffecting(ctx, db,
		`UPDATE users SET selected_agents = $1, updated_at = $2 WHERE id = $3`,
		selected, time.Now().UTC(), userID)
}

func (s *Store) UpdateSelectedAgents(ctx context.Context, userID string, agents []domain.AgentName) error {
	return updateSelectedAgents(ctx, s.db, userID, agents)
}

func (t *Tx) UpdateSelectedAgents(ctx context.Context, userID string, agents []domain.AgentName) error {
	return updateSelectedAgents(ctx, t.tx, userID, agents)
}

// ============================================
// Agent Groups
// ============================================

const groupColumns = `id, name, description, is_active, created_at, updated_at`

func createAgentGroup(ctx context.Context, db dbInterface, group *domain.AgentGroup) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO agent_groups (`+groupColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		group.ID, group.Name, group.Description, group.IsActive, group.CreatedAt.UTC(), group.UpdatedAt.UTC())
	return dbError(err)
}

func (s *Store) CreateAgentGroup(ctx context.Context, group *domain.AgentGroup) error {
	return createAgentGroup(ctx, s.db, group)
}

func (t *Tx) CreateAgentGroup(ctx context.Context, group *domain.AgentGroup) error {
	return createAgentGroup(ctx, t.tx, group)
}

func getGroupAgents(ctx context.Context, db dbInterface, groupID string) ([]domain.AgentName, error) {
	agents := []domain.AgentName{}
	err := db.SelectContext(ctx, &agents,
		`SELECT agent_name FROM agent_group_items WHERE group_id = $1 ORDER BY created_at, seq`, groupID)
	if err != nil {
		return nil, dbError(err)
	}
	return agents, nil
}

func getAgentGroupWhere(ctx context.Context, db dbInterface, where string, arg any) (*domain.AgentGroup, error) {
	var group domain.AgentGroup
	err := db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM agent_groups WHERE `+where, arg)
	if err != nil {
		return nil, dbError(err)
	}
	group.Agents, err = getGroupAgents(ctx, db, group.ID)
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *Store) GetAgentGroup(ctx context.Context, id string) (*domain.AgentGroup, error) {
	return getAgentGroupWhere(ctx, s.db, `id = $1`, id)
}

func (t *Tx) GetAgentGroup(ctx context.Context, id string) (*domain.AgentGroup, error) {
	return getAgentGroupWhere(ctx, t.tx, `id = $1`, id)
}

func (s *Store) GetAgentGroupByName(ctx context.Context, name string) (*domain.AgentGroup, error) {
	return getAgentGroupWhere(ctx, s.db, `name = $1`, name)
}

func (t *Tx) GetAgentGroupByName(ctx context.Context, name string) (*domain.AgentGroup, error) {
	return getAgentGroupWhere(ctx, t.tx, `name = $1`, name)
}

var groupSortColumns = map[domain.GroupSortField]string{
	domain.GroupSortName:      "name",
	domain.GroupSortCreatedAt: "created_at",
	domain.GroupSortUpdatedAt: "updated_at",
}

// listAgentGroups runs one COUNT query and one page query over the same filter.
func listAgentGroups(ctx context.Context, db dbInterface, filter domain.GroupListFilter) ([]*domain.AgentGroup, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.NameContains != "" {
		args = append(args, "%"+strings.ToLower(filter.NameContains)+"%")
		conds = append(conds, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.GetContext(ctx, &total, `SELECT COUNT(*) FROM agent_groups`+where, args...); err != nil {
		return nil, 0, dbError(err)
	}

	column, ok := groupSortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}

	query := `SELECT ` + groupColumns + ` FROM agent_groups` + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s", column, direction, direction)
	if filter.PageSize > 0 {
		args = append(args, filter.PageSize, filter.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	groups := []*domain.AgentGroup{}
	if err := db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, 0, dbError(err)
	}
	for _, g := range groups {
		agents, err := getGroupAgents(ctx, db, g.ID)
		if err != nil {
			return nil, 0, err
		}
		g.Agents = agents
	}
	return groups, total, nil
}

func (s *Store) ListAgentGroups(ctx context.Context, filter domain.GroupListFilter) ([]*domain.AgentGroup, int, error) {
	return listAgentGroups(ctx, s.db, filter)
}

func (t *Tx) ListAgentGroups(ctx context.Context, filter domain.GroupListFilter) ([]*domain.AgentGroup, int, error) {
	return listAgentGroups(ctx, t.tx, filter)
}

func updateAgentGroup(ctx context.Context, db dbInterface, group *domain.AgentGroup) error {
	return execAffecting(ctx, db,
		`UPDATE agent_groups SET name = $1, description = $2, is_active = $3, updated_at = $4 WHERE id = $5`,
		group.Name, group.Description, group.IsActive, group.UpdatedAt.UTC(), group.ID)
}

func (s *Store) UpdateAgentGroup(ctx context.Context, group *domain.AgentGroup) error {
	return updateAgentGroup(ctx, s.db, group)
}

func (t *Tx) UpdateAgentGroup(ctx context.Context, group *domain.AgentGroup) error {
	return updateAgentGroup(ctx, t.tx, group)
}

// deleteAgentGroup deletes dependents explicitly so the cascade does not
// depend on SQLite's foreign_keys pragma.
func deleteAgentGroup(ctx context.Context, db dbInterface, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM agent_group_items WHERE group_id = $1`, id); err != nil {
		return dbError(err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM assigned_groups WHERE group_id = $1`, id); err != nil {
		return dbError(err)
	}
	return execAffecting(ctx, db, `DELETE FROM agent_groups WHERE id = $1`, id)
}

func (s *Store) DeleteAgentGroup(ctx context.Context, id string) error {
	return storage.WithTx(ctx, s, func(tx storage.Storage) error {
		return tx.DeleteAgentGroup(ctx, id)
	})
}

func (t *Tx) DeleteAgentGroup(ctx context.Context, id string) error {
	return deleteAgentGroup(ctx, t.tx, id)
}

// ============================================
// Agent Group Items
// ============================================

const itemColumns = `id, group_id, agent_name, created_at, updated_at`

func listAgentGroupItems(ctx context.Context, db dbInterface, groupID string) ([]*domain.AgentGroupItem, error) {
	items := []*domain.AgentGroupItem{}
	err := db.SelectContext(ctx, &items,
		`SELECT `+itemColumns+` FROM agent_group_items WHERE group_id = $1 ORDER BY created_at, seq`, groupID)
	if err != nil {
		return nil, dbError(err)
	}
	return items, nil
}

func (s *Store) ListAgentGroupItems(ctx context.Context, groupID string) ([]*domain.AgentGroupItem, error) {
	return listAgentGroupItems(ctx, s.db, groupID)
}

func (t *Tx) ListAgentGroupItems(ctx context.Context, groupID string) ([]*domain.AgentGroupItem, error) {
	return listAgentGroupItems(ctx, t.tx, groupID)
}

func addAgentGroupItems(ctx context.Context, db dbInterface, groupID string, agents []domain.AgentName) (int, error) {
	var maxSeq int
	if err := db.GetContext(ctx, &maxSeq,
		`SELECT COALESCE(MAX(seq), 0) FROM agent_group_items WHERE group_id = $1`, groupID); err != nil {
		return 0, dbError(err)
	}

	now := time.Now().UTC()
	inserted := 0
	for i, agent := range agents {
		result, err := db.ExecContext(ctx,
			`INSERT INTO agent_group_items (id, group_id, agent_name, seq, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (group_id, agent_name) DO NOTHING`,
			uuid.New().String(), groupID, agent, maxSeq+i+1, now, now)
		if err != nil {
			return inserted, dbError(err)
		}
		rows, _ := result.RowsAffected()
		inserted += int(rows)
	}
	return inserted, nil
}

func (s *Store) AddAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (int, error) {
	return addAgentGroupItems(ctx, s.db, groupID, agents)
}

func (t *Tx) AddAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (int, error) {
	return addAgentGroupItems(ctx, t.tx, groupID, agents)
}

func removeAgentGroupItems(ctx context.Context, db dbInterface, groupID string, agents []domain.AgentName) (int, error) {
	if len(agents) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		`DELETE FROM agent_group_items WHERE group_id = ? AND agent_name IN (?)`, groupID, agents)
	if err != nil {
		return 0, fmt.Errorf("%w: building delete: %v", domain.ErrInternal, err)
	}
	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, dbError(err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (s *Store) RemoveAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (int, error) {
	return removeAgentGroupItems(ctx, s.db, groupID, agents)
}

func (t *Tx) RemoveAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (int, error) {
	return removeAgentGroupItems(ctx, t.tx, groupID, agents)
}

// ============================================
// Assigned Agents
// ============================================

const assignedAgentColumns = `id, user_id, agent_name, starts_at, expires_at, duration_days, is_active, created_at, updated_at`

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func createAssignedAgent(ctx context.Context, db dbInterface, a *domain.AssignedAgent) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO assigned_agents (`+assignedAgentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.UserID, a.AgentName, a.StartsAt.UTC(), utcPtr(a.ExpiresAt), a.DurationDays, a.IsActive,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	return dbError(err)
}

func (s *Store) CreateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error {
	return createAssignedAgent(ctx, s.db, a)
}

func (t *Tx) CreateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error {
	return createAssignedAgent(ctx, t.tx, a)
}

func getActiveAssignedAgent(ctx context.Context, db dbInterface, userID string, agent domain.AgentName) (*domain.AssignedAgent, error) {
	var a domain.AssignedAgent
	err := db.GetContext(ctx, &a,
		`SELECT `+assignedAgentColumns+` FROM assigned_agents
		 WHERE user_id = $1 AND agent_name = $2 AND is_active = $3
		 ORDER BY created_at DESC LIMIT 1`, userID, agent, true)
	if err != nil {
		return nil, dbError(err)
	}
	return &a, nil
}

func (s *Store) GetActiveAssignedAgent(ctx context.Context, userID string, agent domain.AgentName) (*domain.AssignedAgent, error) {
	return getActiveAssignedAgent(ctx, s.db, userID, agent)
}

func (t *Tx) GetActiveAssignedAgent(ctx context.Context, userID string, agent domain.AgentName) (*domain.AssignedAgent, error) {
	return getActiveAssignedAgent(ctx, t.tx, userID, agent)
}

func listAssignedAgents(ctx context.Context, db dbInterface, userID string, activeOnly bool) ([]*domain.AssignedAgent, error) {
	query := `SELECT ` + assignedAgentColumns + ` FROM assigned_agents WHERE user_id = $1`
	args := []any{userID}
	if activeOnly {
		query += ` AND is_active = $2`
		args = append(args, true)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows := []*domain.AssignedAgent{}
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, dbError(err)
	}
	return rows, nil
}

func (s *Store) ListAssignedAgents(ctx context.Context, userID string, activeOnly bool) ([]*domain.AssignedAgent, error) {
	return listAssignedAgents(ctx, s.db, userID, activeOnly)
}

func (t *Tx) ListAssignedAgents(ctx context.Context, userID string, activeOnly bool) ([]*domain.AssignedAgent, error) {
	return listAssignedAgents(ctx, t.tx, userID, activeOnly)
}

func listSelectedAgentNames(ctx context.Context, db dbInterface, userID string, now time.Time) ([]domain.AgentName, error) {
	names := []domain.AgentName{}
	err := db.SelectContext(ctx, &names,
		`SELECT agent_name FROM assigned_agents
		 WHERE user_id = $1 AND is_active = $2 AND (expires_at IS NULL OR expires_at > $3)
		 ORDER BY created_at DESC, id DESC`, userID, true, now.UTC())
	if err != nil {
		return nil, dbError(err)
	}
	return names, nil
}

func (s *Store) ListSelectedAgentNames(ctx context.Context, userID string, now time.Time) ([]domain.AgentName, error) {
	return listSelectedAgentNames(ctx, s.db, userID, now)
}

func (t *Tx) ListSelectedAgentNames(ctx context.Context, userID string, now time.Time) ([]domain.AgentName, error) {
	return listSelectedAgentNames(ctx, t.tx, userID, now)
}

func updateAssignedAgent(ctx context.Context, db dbInterface, a *domain.AssignedAgent) error {
	return execAffecting(ctx, db,
		`UPDATE assigned_agents
		 SET starts_at = $1, expires_at = $2, duration_days = $3, is_active = $4, updated_at = $5
		 WHERE id = $6`,
		a.StartsAt.UTC(), utcPtr(a.ExpiresAt), a.DurationDays, a.IsActive, a.UpdatedAt.UTC(), a.ID)
}

func (s *Store) UpdateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error {
	return updateAssignedAgent(ctx, s.db, a)
}

func (t *Tx) UpdateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error {
	return updateAssignedAgent(ctx, t.tx, a)
}

// ============================================
// Assigned Groups
// ============================================

const assignedGroupColumns = `id, user_id, group_id, starts_at, expires_at, duration_days, is_active, created_at, updated_at`

func createAssignedGroup(ctx context.Context, db dbInterface, a *domain.AssignedGroup) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO assigned_groups (`+assignedGroupColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.UserID, a.GroupID, a.StartsAt.UTC(), utcPtr(a.ExpiresAt), a.DurationDays, a.IsActive,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	return dbError(err)
}

func (s *Store) CreateAssignedGroup(ctx context.Context, a *domain.AssignedGroup) error {
	return createAssignedGroup(ctx, s.db, a)
}

func (t *Tx) CreateAssignedGroup(ctx context.Context, a *domain.AssignedGroup) error {
	return createAssignedGroup(ctx, t.tx, a)
}

func getActiveAssignedGroup(ctx context.Context, db dbInterface, userID, groupID string) (*domain.AssignedGroup, error) {
	var a domain.AssignedGroup
	err := db.GetContext(ctx, &a,
		`SELECT `+assignedGroupColumns+` FROM assigned_groups
		 WHERE user_id = $1 AND group_id = $2 AND is_active = $3
		 ORDER BY created_at DESC LIMIT 1`, userID, groupID, true)
	if err != nil {
		return nil, dbError(err)
	}
	return &a, nil
}

func (s *Store) GetActiveAssignedGroup(ctx context.Context, userID, groupID string) (*domain.AssignedGroup, error) {
	return getActiveAssignedGroup(ctx, s.db, userID, groupID)
}

func (t *Tx) GetActiveAssignedGroup(ctx context.Context, userID, groupID string) (*domain.AssignedGroup, error) {
	return getActiveAssignedGroup(ctx, t.tx, userID, groupID)
}

func listAssignedGroups(ctx context.Context, db dbInterface, userID string, activeOnly bool) ([]*domain.AssignedGroup, error) {
	query := `SELECT ` + assignedGroupColumns + ` FROM assigned_groups WHERE user_id = $1`
	args := []any{userID}
	if activeOnly {
		query += ` AND is_active = $2`
		args = append(args, true)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows := []*domain.AssignedGroup{}
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, dbError(err)
	}
	return rows, nil
}

func (s *Store) ListAssignedGroups(ctx context.Context, userID string, activeOnly bool) ([]*domain.AssignedGroup, error) {
	return listAssignedGroups(ctx, s.db, userID, activeOnly)
}

func (t *Tx) ListAssignedGroups(ctx context.Context, userID string, activeOnly bool) ([]*domain.AssignedGroup, error) {
	return listAssignedGroups(ctx, t.tx, userID, activeOnly)
}

func updateAssignedGroup(ctx context.Context, db dbInterface, a *domain.AssignedGroup) error {
	return execAffecting(ctx, db,
		`UPDATE assigned_groups
		 SET starts_at = $1, expires_at = $2, duration_days = $3, is_active = $4, updated_at = $5
		 WHERE id = $6`,
		a.StartsAt.UTC(), utcPtr(a.ExpiresAt), a.DurationDays, a.IsActive, a.UpdatedAt.UTC(), a.ID)
}

func (s *Store) UpdateAssignedGroup(ctx context.Context, a *domain.AssignedGroup) error {
	return updateAssignedGroup(ctx, s.db, a)
}

func (t *Tx) UpdateAssignedGroup(ctx context.Context, a *domain.AssignedGroup) error {
	return updateAssignedGroup(ctx, t.tx, a)
}

// Compile-time interface checks.
var (
	_ storage.Storage     = (*Store)(nil)
	_ storage.Transaction = (*Tx)(nil)
)
