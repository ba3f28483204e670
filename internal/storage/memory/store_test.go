package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/bcnelson/agent-access-manager/internal/storage/memory"
)

func newAssignedAgent(id, userID string, agent domain.AgentName, active bool) *domain.AssignedAgent {
	now := time.Now().UTC()
	return &domain.AssignedAgent{
		ID:        id,
		UserID:    userID,
		AgentName: agent,
		Validity:  domain.Validity{StartsAt: now, IsActive: active},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestActiveAgentRowIsUnique(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.CreateAssignedAgent(ctx, newAssignedAgent("a1", "u1", domain.AgentJim, true)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateAssignedAgent(ctx, newAssignedAgent("a2", "u1", domain.AgentJim, true)); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for a second active row, got %v", err)
	}
	if err := s.CreateAssignedAgent(ctx, newAssignedAgent("a3", "u1", domain.AgentJim, false)); err != nil {
		t.Fatalf("inactive rows are unconstrained: %v", err)
	}

	// Reactivating the inactive row would create a second active one.
	row := newAssignedAgent("a3", "u1", domain.AgentJim, true)
	if err := s.UpdateAssignedAgent(ctx, row); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists on reactivation, got %v", err)
	}
	if err := s.UpdateAssignedAgent(ctx, newAssignedAgent("missing", "u1", domain.AgentJim, false)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	user := &domain.User{ID: "u1", Email: "a@x.com"}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	failure := errors.New("boom")
	err := storage.WithTx(ctx, s, func(tx storage.Storage) error {
		if err := tx.UpdateSelectedAgents(ctx, "u1", []domain.AgentName{domain.AgentJim}); err != nil {
			return err
		}
		got, err := tx.GetUser(ctx, "u1")
		if err != nil {
			return err
		}
		if len(got.SelectedAgents) != 1 {
			t.Errorf("transaction should see its own writes, got %v", got.SelectedAgents)
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected the callback error, got %v", err)
	}

	got, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if len(got.SelectedAgents) != 0 {
		t.Errorf("rollback should discard writes, got %v", got.SelectedAgents)
	}
}

func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	g := &domain.AgentGroup{ID: "g1", Name: "Sales", IsActive: true}

	err := storage.WithTx(ctx, s, func(tx storage.Storage) error {
		if err := tx.CreateAgentGroup(ctx, g); err != nil {
			return err
		}
		_, err := tx.AddAgentGroupItems(ctx, "g1", []domain.AgentName{domain.AgentJim, domain.AgentAlex})
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, err := s.GetAgentGroup(ctx, "g1")
	if err != nil {
		t.Fatalf("GetAgentGroup: %v", err)
	}
	if len(got.Agents) != 2 || got.Agents[0] != domain.AgentJim || got.Agents[1] != domain.AgentAlex {
		t.Errorf("Agents = %v", got.Agents)
	}
}

func TestFinishedTransactionRejectsWrites(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback after Commit should be a no-op, got %v", err)
	}
	if err := tx.CreateUser(ctx, &domain.User{ID: "u1", Email: "a@x.com"}); err == nil {
		t.Error("expected an error writing through a finished transaction")
	}
	if _, err := tx.BeginTx(ctx); err == nil {
		t.Error("expected nested BeginTx to fail")
	}

	// The store is usable again once the transaction is finished.
	if err := s.CreateUser(ctx, &domain.User{ID: "u1", Email: "a@x.com"}); err != nil {
		t.Errorf("CreateUser: %v", err)
	}
}

func TestAddAgentGroupItemsSkipsExisting(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	if err := s.CreateAgentGroup(ctx, &domain.AgentGroup{ID: "g1", Name: "Sales"}); err != nil {
		t.Fatalf("CreateAgentGroup: %v", err)
	}

	n, err := s.AddAgentGroupItems(ctx, "g1", []domain.AgentName{domain.AgentJim, domain.AgentAlex})
	if err != nil || n != 2 {
		t.Fatalf("first add = %d, %v", n, err)
	}
	n, err = s.AddAgentGroupItems(ctx, "g1", []domain.AgentName{domain.AgentAlex, domain.AgentNova})
	if err != nil || n != 1 {
		t.Fatalf("second add = %d, %v; want 1 inserted", n, err)
	}
	n, err = s.RemoveAgentGroupItems(ctx, "g1", []domain.AgentName{domain.AgentJim, domain.AgentMax})
	if err != nil || n != 1 {
		t.Fatalf("remove = %d, %v; want 1 removed", n, err)
	}

	items, _ := s.ListAgentGroupItems(ctx, "g1")
	if len(items) != 2 || items[0].AgentName != domain.AgentAlex || items[1].AgentName != domain.AgentNova {
		t.Errorf("unexpected items: %+v", items)
	}
}
