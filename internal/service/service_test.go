package service_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/service"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/bcnelson/agent-access-manager/internal/storage/memory"
	"github.com/sirupsen/logrus"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	ctx   context.Context
	svc   *service.Services
	store *memory.Store
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memory.New()
	clock := &fakeClock{now: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
	svc := service.New(store, logger, service.Options{Clock: clock.Now, MaxExtendDays: 3650})
	return &fixture{ctx: context.Background(), svc: svc, store: store, clock: clock}
}

func (f *fixture) user(t *testing.T, email string) domain.UserRef {
	t.Helper()
	u, err := f.svc.Users.Register(f.ctx, email, nil)
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return domain.UserRef{ID: u.ID}
}

func (f *fixture) group(t *testing.T, name string, agents ...domain.AgentName) *domain.AgentGroup {
	t.Helper()
	var (
		g   *domain.AgentGroup
		err error
	)
	if len(agents) == 0 {
		g, err = f.svc.Groups.Create(f.ctx, service.GroupParams{Name: name})
	} else {
		g, err = f.svc.Groups.CreateWithMembers(f.ctx, service.GroupParams{Name: name}, agents)
	}
	if err != nil {
		t.Fatalf("creating group %s: %v", name, err)
	}
	return g
}

func intPtr(n int) *int { return &n }

func boolPtr(b bool) *bool { return &b }

func agentNames(rows []*domain.AssignedAgent) []domain.AgentName {
	names := make([]domain.AgentName, len(rows))
	for i, r := range rows {
		names[i] = r.AgentName
	}
	return names
}

func sameAgents(got, want []domain.AgentName) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func countActive[T any](rows []T, active func(T) bool) int {
	n := 0
	for _, r := range rows {
		if active(r) {
			n++
		}
	}
	return n
}

func TestUserRegisterAndResolve(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.Users.Register(f.ctx, "  a@x.com ", nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "a@x.com" {
		t.Errorf("email not trimmed: %q", u.Email)
	}

	if _, err := f.svc.Users.Register(f.ctx, "a@x.com", nil); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for duplicate email, got %v", err)
	}
	if _, err := f.svc.Users.Register(f.ctx, "not-an-email", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	got, err := f.svc.Users.Resolve(f.ctx, domain.UserRef{Email: "a@x.com"})
	if err != nil || got.ID != u.ID {
		t.Errorf("Resolve by email = %v, %v", got, err)
	}

	_, err = f.svc.Users.Resolve(f.ctx, domain.UserRef{Email: "nobody@x.com"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err != nil && err.Error() != "user with email nobody@x.com not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestUserEmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.Users.Register(f.ctx, "Ana@Example.com", nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "ana@example.com" {
		t.Errorf("email stored as %q, want lowercase", u.Email)
	}

	if _, err := f.svc.Users.Register(f.ctx, "ANA@example.com", nil); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for a case variant, got %v", err)
	}

	for _, email := range []string{"ana@example.com", "ANA@EXAMPLE.COM"} {
		got, err := f.svc.Users.GetByEmail(f.ctx, email)
		if err != nil || got.ID != u.ID {
			t.Errorf("GetByEmail(%s) = %v, %v", email, got, err)
		}
		got, err = f.svc.Users.Resolve(f.ctx, domain.UserRef{Email: email})
		if err != nil || got.ID != u.ID {
			t.Errorf("Resolve(%s) = %v, %v", email, got, err)
		}
	}
}

func TestStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")

	f.store.FailWith(domain.ErrUnavailable)
	_, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{}, nil)
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	f.store.FailWith(nil)
	if _, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{}, nil); err != nil {
		t.Errorf("expected recovery, got %v", err)
	}
}

// racingStore simulates a concurrent writer: before a transaction starts it
// lets winner commit an active row, and the transaction's first read of that
// row is stale.
type racingStore struct {
	storage.Storage
	winner func() error
	races  int
}

func (s *racingStore) BeginTx(ctx context.Context) (storage.Transaction, error) {
	stale := s.races > 0
	if stale {
		s.races--
		if err := s.winner(); err != nil {
			return nil, err
		}
	}
	tx, err := s.Storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &staleTx{Transaction: tx, stale: stale}, nil
}

type staleTx struct {
	storage.Transaction
	stale bool
}

func (t *staleTx) GetActiveAssignedAgent(ctx context.Context, userID string, agent domain.AgentName) (*domain.AssignedAgent, error) {
	if t.stale {
		return nil, domain.ErrNotFound
	}
	return t.Transaction.GetActiveAssignedAgent(ctx, userID, agent)
}

func TestAssign_RetriesOnConflict(t *testing.T) {
	tests := []struct {
		name      string
		races     int
		wantError bool
	}{
		{"one race patches the winner", 1, false},
		{"repeated races surface a conflict", 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ref := f.user(t, "a@x.com")

			const winnerID = "winner"
			racing := &racingStore{Storage: f.store, races: tt.races}
			racing.winner = func() error {
				row := &domain.AssignedAgent{
					ID:        winnerID,
					UserID:    ref.ID,
					AgentName: domain.AgentJim,
					Validity:  domain.Validity{StartsAt: f.clock.Now(), IsActive: true},
					CreatedAt: f.clock.Now(),
					UpdatedAt: f.clock.Now(),
				}
				// Later races find the winner already committed.
				if err := f.store.CreateAssignedAgent(f.ctx, row); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
					return err
				}
				return nil
			}

			svc := f.services(racing)

			row, err := svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{DurationDays: intPtr(5)}, nil)
			if tt.wantError {
				if !domain.IsConflict(err) {
					t.Fatalf("expected a conflict error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Assign: %v", err)
			}
			if row.ID != winnerID {
				t.Errorf("expected the winner's row %s to be patched, got %s", winnerID, row.ID)
			}
			if row.DurationDays == nil || *row.DurationDays != 5 {
				t.Errorf("expected durationDays 5 on the patched row, got %v", row.DurationDays)
			}

			rows, err := f.store.ListAssignedAgents(f.ctx, ref.ID, true)
			if err != nil {
				t.Fatalf("ListAssignedAgents: %v", err)
			}
			if len(rows) != 1 {
				t.Errorf("expected exactly one active row, got %d", len(rows))
			}
		})
	}
}

var errWriteFailed = errors.New("write failed")

// faultyStore fails selected writes made inside transactions so tests can
// check that a batch failing part-way leaves nothing behind.
type faultyStore struct {
	storage.Storage
	// failCreateAgentAt fails the n-th CreateAssignedAgent call (1-based).
	failCreateAgentAt int
	failAddItems      bool

	createAgentCalls int
}

func (s *faultyStore) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.Storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Transaction: tx, store: s}, nil
}

type faultyTx struct {
	storage.Transaction
	store *faultyStore
}

func (t *faultyTx) CreateAssignedAgent(ctx context.Context, a *domain.AssignedAgent) error {
	t.store.createAgentCalls++
	if t.store.createAgentCalls == t.store.failCreateAgentAt {
		return errWriteFailed
	}
	return t.Transaction.CreateAssignedAgent(ctx, a)
}

func (t *faultyTx) AddAgentGroupItems(ctx context.Context, groupID string, agents []domain.AgentName) (int, error) {
	if t.store.failAddItems {
		return 0, errWriteFailed
	}
	return t.Transaction.AddAgentGroupItems(ctx, groupID, agents)
}

// services builds a second service set over store, sharing the fixture clock.
func (f *fixture) services(store storage.Storage) *service.Services {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return service.New(store, logger, service.Options{Clock: f.clock.Now, MaxExtendDays: 3650})
}
