package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of the storage interface for testing.
// It enforces the same uniqueness rules as the SQL schema.
//
// A transaction holds the store lock until it is committed or rolled back, so
// the Store itself must not be used from inside an open transaction.
type Store struct {
	mu    sync.Mutex
	state *state
	fail  error
}

type state struct {
	apiKeys        map[string]domain.APIKey
	users          map[string]domain.User
	groups         map[string]domain.AgentGroup
	items          map[string]item // key: groupID:agent
	assignedAgents map[string]domain.AssignedAgent
	assignedGroups map[string]domain.AssignedGroup
	seq            int
}

type item struct {
	domain.AgentGroupItem
	seq int
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		apiKeys:        make(map[string]domain.APIKey),
		users:          make(map[string]domain.User),
		groups:         make(map[string]domain.AgentGroup),
		items:          make(map[string]item),
		assignedAgents: make(map[string]domain.AssignedAgent),
		assignedGroups: make(map[string]domain.AssignedGroup),
	}
}

// clone copies every table. Stored values are never mutated in place, so a
// shallow copy of each map is a full snapshot.
func (st *state) clone() *state {
	return &state{
		apiKeys:        maps.Clone(st.apiKeys),
		users:          maps.Clone(st.users),
		groups:         maps.Clone(st.groups),
		items:          maps.Clone(st.items),
		assignedAgents: maps.Clone(st.assignedAgents),
		assignedGroups: maps.Clone(st.assignedGroups),
		seq:            st.seq,
	}
}

// FailWith makes every subsequent operation return err. Pass nil to recover.
// Tests use it to simulate an unreachable store.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// do runs fn against the committed state under the store lock.
func (s *Store) do(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	return fn(s.state)
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error {
	return s.do(func(*state) error { return nil })
}

func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	s.mu.Lock()
	if s.fail != nil {
		err := s.fail
		s.mu.Unlock()
		return nil, err
	}
	return &Tx{store: s, snapshot: s.state.clone()}, nil
}

// Tx is a snapshot transaction. Writes go straight to the store state and
// Rollback restores the snapshot taken at BeginTx.
type Tx struct {
	store    *Store
	snapshot *state
	done     bool
}

func (t *Tx) do(fn func(st *state) error) error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", domain.ErrInternal)
	}
	return fn(t.store.state)
}

func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", domain.ErrInternal)
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.state = t.snapshot
	t.store.mu.Unlock()
	return nil
}

func (t *Tx) Close() error                   { return nil }
func (t *Tx) Ping(ctx context.Context) error { return nil }
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("%w: nested transactions not supported", domain.ErrInternal)
}

// ============================================
// API Keys
// ============================================

func (st *state) createAPIKey(key *domain.APIKey) error {
	if _, ok := st.apiKeys[key.ID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, k := range st.apiKeys {
		if k.KeyHash == key.KeyHash {
			return domain.ErrAlreadyExists
		}
	}
	st.apiKeys[key.ID] = *key
	return nil
}

func (st *state) getAPIKeyByHash(keyHash string) (*domain.APIKey, error) {
	for _, k := range st.apiKeys {
		if k.KeyHash == keyHash {
			return &k, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (st *state) listAPIKeys() []*domain.APIKey {
	keys := make([]*domain.APIKey, 0, len(st.apiKeys))
	for _, k := range st.apiKeys {
		keys = append(keys, &k)
	}
	slices.SortFunc(keys, func(a, b *domain.APIKey) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return keys
}

func (st *state) deleteAPIKey(id string) error {
	if _, ok := st.apiKeys[id]; !ok {
		return domain.ErrNotFound
	}
	delete(st.apiKeys, id)
	return nil
}

func (st *state) updateAPIKeyLastUsed(id string) {
	if k, ok := st.apiKeys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
		st.apiKeys[id] = k
	}
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return s.do(func(st *state) error { return st.createAPIKey(key) })
}
func (t *Tx) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return t.do(func(st *state) error { return st.createAPIKey(key) })
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (key *domain.APIKey, err error) {
	err = s.do(func(st *state) error { key, err = st.getAPIKeyByHash(keyHash); return err })
	return key, err
}
func (t *Tx) GetAPIKeyByHash(ctx context.Context, keyHash string) (key *domain.APIKey, err error) {
	err = t.do(func(st *state) error { key, err = st.getAPIKeyByHash(keyHash); return err })
	return key, err
}

func (s *Store) ListAPIKeys(ctx context.Context) (keys []*domain.APIKey, err error) {
	err = s.do(func(st *state) error { keys = st.listAPIKeys(); return nil })
	return keys, err
}
func (t *Tx) ListAPIKeys(ctx context.Context) (keys []*domain.APIKey, err error) {
	err = t.do(func(st *state) error { keys = st.listAPIKeys(); return nil })
	return keys, err
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return s.do(func(st *state) error { return st.deleteAPIKey(id) })
}
func (t *Tx) DeleteAPIKey(ctx context.Context, id string) error {
	return t.do(func(st *state) error { return st.deleteAPIKey(id) })
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return s.do(func(st *state) error { st.updateAPIKeyLastUsed(id); return nil })
}
func (t *Tx) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return t.do(func(st *state) error { st.updateAPIKeyLastUsed(id); return nil })
}

func (s *Store) CountAPIKeys(ctx context.Context) (n int, err error) {
	err = s.do(func(st *state) error { n = len(st.apiKeys); return nil })
	return n, err
}
func (t *Tx) CountAPIKeys(ctx context.Context) (n int, err error) {
	err = t.do(func(st *state) error { n = len(st.apiKeys); return nil })
	return n, err
}

// ============================================
// Users
// ============================================

func copyUser(u domain.User) *domain.User {
	u.SelectedAgents = slices.Clone(u.SelectedAgents)
	if u.SelectedAgents == nil {
		u.SelectedAgents = []domain.AgentName{}
	}
	return &u
}

func (st *state) createUser(user *domain.User) error {
	if _, ok := st.users[user.ID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, u := range st.users {
		if u.Email == user.Email {
			return domain.ErrAlreadyExists
		}
		if user.AuthID != nil && u.AuthID != nil && *u.AuthID == *user.AuthID {
			return domain.ErrAlreadyExists
		}
	}
	st.users[user.ID] = *copyUser(*user)
	return nil
}

func (st *state) getUser(id string) (*domain.User, error) {
	u, ok := st.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyUser(u), nil
}

func (st *state) getUserByEmail(email string) (*domain.User, error) {
	for _, u := range st.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (st *state) updateSelectedAgents(userID string, agents []domain.AgentName) error {
	u, ok := st.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.SelectedAgents = slices.Clone(agents)
	u.UpdatedAt = time.Now().UTC()
	st.users[userID] = u
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	return s.do(func(st *state) error { return st.createUser(user) })
}
func (t *Tx) CreateUser(ctx context.Context, user *domain.User) error {
	return t.do(func(st *state) error { return st.createUser(user) })
}

func (s *Store) GetUser(ctx context.Context, id string) (u *domain.User, err error) {
	err = s.do(func(st *state) error { u, err = st.getUser(id); return err })
	return u, err
}
func (t *Tx) GetUser(ctx context.Context, id string) (u *domain.User, err error) {
	err = t.do(func(st *state) error { u, err = st.getUser(id); return err })
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	err = s.do(func(st *state) error { u, err = st.getUserByEmail(email); return err })
	return u, err
}
func (t *Tx) GetUserByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	err = t.do(func(st *state) error { u, err = st.getUserByEmail(email); return err })
	return u, err
}

func (s *Store) UpdateSelectedAgents(ctx context.Context, userID string, agents []domain.AgentName) error {
	return s.do(func(st *state) error { return st.updateSelectedAgents(userID, agents) })
}
func (t *Tx) UpdateSelectedAgents(ctx context.Context, userID string, agents []domain.AgentName) error {
	return t.do(func(st *state) error { return st.updateSelectedAgents(userID, agents) })
}

// ============================================
// Agent Groups
// ============================================

func itemKey(groupID string, agent domain.AgentName) string {
	return groupID + ":" + string(agent)
}

func (st *state) groupItems(groupID string) []item {
	var items []item
	for _, it := range st.items {
		if it.GroupID == groupID {
			items = append(items, it)
		}
	}
	slices.SortFunc(items, func(a, b item) int { return a.seq - b.seq })
	return items
}

func (st *state) withAgents(g domain.AgentGroup) *domain.AgentGroup {
	g.Agents = []domain.AgentName{}
	for _, it := range st.groupItems(g.ID) {
		g.Agents = append(g.Agents, it.AgentName)
	}
	return &g
}

func (st *state) createAgentGroup(group *domain.AgentGroup) error {
	if _, ok := st.groups[group.ID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, g := range st.groups {
		if g.Name == group.Name {
			return domain.ErrAlreadyExists
		}
	}
	g := *group
	g.Agents = nil
	st.groups[g.ID] = g
	return nil
}

func (st *state) getAgentGroup(id string) (*domain.AgentGroup, error) {
	g, ok := st.groups[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return st.withAgents(g), nil
}

func (st *state) getAgentGroupByName(name string) (*domain.AgentGroup, error) {
	for _, g := range st.groups {
		if g.Name == name {
			return st.withAgents(g), nil
		}
	}
	return nil, domain.ErrNotFound
}

func compareGroups(field domain.GroupSortField) func(a, b *domain.AgentGroup) int {
	return func(a, b *domain.AgentGroup) int {
		var c int
		switch field {
		case domain.GroupSortName:
			c = strings.Compare(a.Name, b.Name)
		case domain.GroupSortUpdatedAt:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		return c
	}
}

func (st *state) listAgentGroups(filter domain.GroupListFilter) ([]*domain.AgentGroup, int) {
	needle := strings.ToLower(filter.NameContains)
	groups := []*domain.AgentGroup{}
	for _, g := range st.groups {
		if needle != "" && !strings.Contains(strings.ToLower(g.Name), needle) {
			continue
		}
		if filter.IsActive != nil && g.IsActive != *filter.IsActive {
			continue
		}
		groups = append(groups, st.withAgents(g))
	}

	cmp := compareGroups(filter.SortBy)
	slices.SortFunc(groups, func(a, b *domain.AgentGroup) int {
		if filter.Descending {
			return cmp(b, a)
		}
		return cmp(a, b)
	})

	total := len(groups)
	if filter.PageSize > 0 {
		start := min(filter.Offset(), total)
		end := min(start+filter.PageSize, total)
		groups = groups[start:end]
	}
	return groups, total
}

func (st *state) updateAgentGroup(group *domain.AgentGroup) error {
	if _, ok := st.groups[group.ID]; !ok {
		return domain.ErrNotFound
	}
	for _, g := range st.groups {
		if g.ID != group.ID && g.Name == group.Name {
			return domain.ErrAlreadyExists
		}
	}
	g := *group
	g.Agents = nil
	st.groups[g.ID] = g
	return nil
}

func (st *state) deleteAgentGroup(id string) error {
	if _, ok := st.groups[id]; !ok {
		return domain.ErrNotFound
	}
	for k, it := range st.items {
		if it.GroupID == id {
			delete(st.items, k)
		}
	}
	for k, a := range st.assignedGroups {
		if a.GroupID == id {
			delete(st.assignedGroups, k)
		}
	}
	delete(st.groups, id)
	return nil
}

func (s *Store) CreateAgentGroup(ctx context.Context, group *domain.AgentGroup) error {
	return s.do(func(st *state) error { return st.createAgentGroup(group) })
}
func (t *Tx) CreateAgentGroup(ctx context.Context, group *domain.AgentGroup) error {
	return t.do(func(st *state) error { return st.createAgentGroup(group) })
}

func (s *Store) GetAgentGroup(ctx context.Context, id string) (g *domain.AgentGroup, err error) {
	err = s.do(func(st *state) error { g, err = st.getAgentGroup(id); return err })
	return g, err
}
func (t *Tx) GetAgentGroup(ctx context.Context, id string) (g *domain.AgentGroup, err error) {
	err = t.do(func(st *state) error { g, err = st.getAgentGroup(id); return err })
	return g, err
}

func (s *Store) GetAgentGroupByName(ctx context.Context, name string) (g *domain.AgentGroup, err error) {
	err = s.do(func(st *state) error { g, err = st.getAgentGroupByName(name); return err })
	return g, err
}
func (t *Tx) GetAgentGroupByName(ctx context.Context, name string) (g *domain.AgentGroup, err error) {
	err = t.do(func(st *state) error { g, err = st.getAgentGroupByName(name); return err })
	return g, err
}

func (s *Store) ListAgentGroups(ctx context.Context, filter domain.GroupListFilter) (groups []*domain.AgentGroup, total int, err error) {
	err = s.do(func(st *state) error { groups, total = st.listAgentGroups(filter); return nil })
	return groups, total, err
}
func (t *Tx) ListAgentGroups(ctx context.Context, filter domain.GroupListFilter) (groups []*domain.AgentGroup, total int, err error) {
	err = t.do(func(st *state) error { groups, total = st.listAgentGroups(filter); return nil })
	return groups, total, err
}

func (s *Store) UpdateAgentGroup(ctx context.Context, group *domain.AgentGroup) error {
	return s.do(func(st *state) error { return st.updateAgentGroup(group) })
}
func (t *Tx) UpdateAgentGroup(ctx context.Context, group *domain.AgentGroup) error {
	return t.do(func(st *state) error { return st.updateAgentGroup(group) })
}

func (s *Store) DeleteAgentGroup(ctx context.Context, id string) error {
	return s.do(func(st *state) error { return st.deleteAgentGroup(id) })
}
func (t *Tx) DeleteAgentGroup(ctx context.Context, id string) error {
	return t.do(func(st *state) error { return st.deleteAgentGroup(id) })
}

// ============================================
// Agent Group Items
// ============================================

func (st *state) listAgentGroupItems(groupID string) []*domain.AgentGroupItem {
	items := []*domain.AgentGroupItem{}
	for _, it := range st.groupItems(groupID) {
		gi := it.AgentGroupItem
		items = append(items, &gi)
	}
	return items
}

func (st *state) addAgentGroupItems(groupID string, agents []domain.AgentName) int {
	now := time.Now().UTC()
	inserted := 0
	for _, agent := range agents {
		key := itemKey(groupID, agent)
		if _, ok := st.items[key]; ok {
			continue
		}
		st.seq++
		st.items[key] = item{
			AgentGroupItem: domain.AgentGroupItem{
				ID:        uuid.New().String(),
				GroupID:   groupID,
				AgentName: agent,
				CreatedAt: now,
				UpdatedAt: now,
			},
			seq: st.seq,
		}
		inserted++
	}
	return inserted
}

func (st *state) removeAgentGroupItems(groupID string, agents []domain.AgentName) int {
	removed := 0
	for _, agent := range agents {
		key := itemKey(groupID, agent)
		if _, ok := st.items[key]; ok {
			delete(st.items, key)
			removed++
		}
	}
	return removed
}

func (s *Store) ListAgentGroupItems(ctx context.Context, groupID string) (items []*domain.AgentGroupItem, err error) {
	err = s.do(func(st *state) error { items = st.listAgentGroupItems(groupID); return nil })
	return items, err
}
func (t *Tx) ListAgentGroupItems(ctx context.Context, groupID string) (items []*domain.AgentGroupItem, err error) {
	err = t.do(func(st *state) error { items = st.listAgentGroupItems(groupID); return nil })
	return items, err
}

func (s *Store) AddAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (n int, err error) {
	err = s.do(func(st *state) error { n = st.addAgentGroupItems(groupID, agents); return nil })
	return n, err
}
func (t *Tx) AddAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (n int, err error) {
	err = t.do(func(st *state) error { n = st.addAgentGroupItems(groupID, agents); return nil })
	return n, err
}

func (s *Store) RemoveAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (n int, err error) {
	err = s.do(func(st *state) error { n = st.removeAgentGroupItems(groupID, agents); return nil })
	return n, err
}
func (t *Tx) RemoveAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (n int, err error) {
	err = t.do(func(st *state) error { n = st.removeAgentGroupItems(groupID, agents); return nil })
	return n, err
}

// ============================================
// Assigned Agents
// ============================================

func newestFirst(aCreated, bCreated time.Time, aID, bID string) int {
	if c := bCreated.Compare(aCreated); c != 0 {
		return c
	}
	return strings.Compare(bID, aID)
}

func (st *state) activeAssignedAgent(userID string, agent domain.AgentName) (*domain.AssignedAgent, bool) {
	for _, a := range st.assignedAgents {
		if a.UserID == userID && a.AgentName == agent && a.IsActive {
			return &a, true
		}
	}
	return nil, false
}

func (st *state) putAssignedAgent(a *domain.AssignedAgent, create bool) error {
	prev, exists := st.assignedAgents[a.ID]
	if create && exists {
		return domain.ErrAlreadyExists
	}
	if !create && !exists {
		return domain.ErrNotFound
	}
	if a.IsActive {
		if other, ok := st.activeAssignedAgent(a.UserID, a.AgentName); ok && other.ID != a.ID {
			return domain.ErrAlreadyExists
		}
	}
	row := *a
	if !create {
		row.UserID, row.AgentName, row.CreatedAt = prev.UserID, prev.AgentName, prev.CreatedAt
	}
	st.assignedAgents[a.ID] = row
	return nil
}

func (st *state) listAssignedAgents(userID string, activeOnly bool) []*domain.AssignedAgent {
	rows := []*domain.AssignedAgent{}
	for _, a := range st.assignedAgents {
		if a.UserID != userID || (activeOnly && !a.IsActive) {
			continue
		}
		rows = append(rows, &a)
	}
	slices.SortFunc(rows, func(a, b *domain.AssignedAgent) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return rows
}

func (st *state) listSelectedAgentNames(userID string, now time.Time) []domain.AgentName {
	names := []domain.AgentName{}
	for _, a := range st.listAssignedAgents(userID, true) {
		if a.SelectedAt(now) {
			names = append(names, a.AgentName)
		}
	}
	return names
}

func (s *Store) CreateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error {
	return s.do(func(st *state) error { return st.putAssignedAgent(a, true) })
}
func (t *Tx) CreateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error {
	return t.do(func(st *state) error { return st.putAssignedAgent(a, true) })
}

func (s *Store) GetActiveAssignedAgent(ctx context.Context, userID string, agent domain.AgentName) (a *domain.AssignedAgent, err error) {
	err = s.do(func(st *state) error {
		var ok bool
		if a, ok = st.activeAssignedAgent(userID, agent); !ok {
			return domain.ErrNotFound
		}
		return nil
	})
	return a, err
}
func (t *Tx) GetActiveAssignedAgent(ctx context.Context, userID string, agent domain.AgentName) (a *domain.AssignedAgent, err error) {
	err = t.do(func(st *state) error {
		var ok bool
		if a, ok = st.activeAssignedAgent(userID, agent); !ok {
			return domain.ErrNotFound
		}
		return nil
	})
	return a, err
}

func (s *Store) ListAssignedAgents(ctx context.Context, userID string, activeOnly bool) (rows []*domain.AssignedAgent, err error) {
	err = s.do(func(st *state) error { rows = st.listAssignedAgents(userID, activeOnly); return nil })
	return rows, err
}
func (t *Tx) ListAssignedAgents(ctx context.Context, userID string, activeOnly bool) (rows []*domain.AssignedAgent, err error) {
	err = t.do(func(st *state) error { rows = st.listAssignedAgents(userID, activeOnly); return nil })
	return rows, err
}

func (s *Store) ListSelectedAgentNames(ctx context.Context, userID string, now time.Time) (names []domain.AgentName, err error) {
	err = s.do(func(st *state) error { names = st.listSelectedAgentNames(userID, now); return nil })
	return names, err
}
func (t *Tx) ListSelectedAgentNames(ctx context.Context, userID string, now time.Time) (names []domain.AgentName, err error) {
	err = t.do(func(st *state) error { names = st.listSelectedAgentNames(userID, now); return nil })
	return names, err
}

func (s *Store) UpdateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error {
	return s.do(func(st *state) error { return st.putAssignedAgent(a, false) })
}
func (t *Tx) UpdateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error {
	return t.do(func(st *state) error { return st.putAssignedAgent(a, false) })
}

// ============================================
// Assigned Groups
// ============================================

func (st *state) activeAssignedGroup(userID, groupID string) (*domain.AssignedGroup, bool) {
	for _, a := range st.assignedGroups {
		if a.UserID == userID && a.GroupID == groupID && a.IsActive {
			return &a, true
		}
	}
	return nil, false
}

func (st *state) putAssignedGroup(a *domain.AssignedGroup, create bool) error {
	prev, exists := st.assignedGroups[a.ID]
	if create && exists {
		return domain.ErrAlreadyExists
	}
	if !create && !exists {
		return domain.ErrNotFound
	}
	if a.IsActive {
		if other, ok := st.activeAssignedGroup(a.UserID, a.GroupID); ok && other.ID != a.ID {
			return domain.ErrAlreadyExists
		}
	}
	row := *a
	if !create {
		row.UserID, row.GroupID, row.CreatedAt = prev.UserID, prev.GroupID, prev.CreatedAt
	}
	st.assignedGroups[a.ID] = row
	return nil
}

func (st *state) listAssignedGroups(userID string, activeOnly bool) []*domain.AssignedGroup {
	rows := []*domain.AssignedGroup{}
	for _, a := range st.assignedGroups {
		if a.UserID != userID || (activeOnly && !a.IsActive) {
			continue
		}
		rows = append(rows, &a)
	}
	slices.SortFunc(rows, func(a, b *domain.AssignedGroup) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return rows
}

func (s *Store) CreateAssignedGroup(ctx context.Context, a *domain.AssignedGroup) error {
	return s.do(func(st *state) error { return st.putAssignedGroup(a, true) })
}
func (t *Tx) CreateAssignedGroup(ctx context.Context, a *domain.AssignedGroup) error {
	return t.do(func(st *state) error { return st.putAssignedGroup(a, true) })
}

func (s *Store) GetActiveAssignedGroup(ctx context.Context, userID, groupID string) (a *domain.AssignedGroup, err error) {
	err = s.do(func(st *state) error {
		var ok bool
		if a, ok = st.activeAssignedGroup(userID, groupID); !ok {
			return domain.ErrNotFound
		}
		return nil
	})
	return a, err
}
func (t *Tx) GetActiveAssignedGroup(ctx context.Context, userID, groupID string) (a *domain.AssignedGroup, err error) {
	err = t.do(func(st *state) error {
		var ok bool
		if a, ok = st.activeAssignedGroup(userID, groupID); !ok {
			return domain.ErrNotFound
		}
		return nil
	})
	return a, err
}

func (s *Store) ListAssignedGroups(ctx context.Context, userID string, activeOnly bool) (rows []*domain.AssignedGroup, err error) {
	err = s.do(func(st *state) error { rows = st.listAssignedGroups(userID, activeOnly); return nil })
	return rows, err
}
func (t *Tx) ListAssignedGroups(ctx context.Context, userID string, activeOnly bool) (rows []*domain.AssignedGroup, err error) {
	err = t.do(func(st *state) error { rows = st.listAssignedGroups(userID, activeOnly); return nil })
	return rows, err
}

func (s *Store) UpdateAssignedGroup(ctx context.Context, a *domain.AssignedGroup) error {
	return s.do(func(st *state) error { return st.putAssignedGroup(a, false) })
}
func (t *Tx) UpdateAssignedGroup(ctx context.Context, a *domain.AssignedGroup) error {
	return t.do(func(st *state) error { return st.putAssignedGroup(a, false) })
}

// Compile-time interface checks.
var (
	_ storage.Storage     = (*Store)(nil)
	_ storage.Transaction = (*Tx)(nil)
)
