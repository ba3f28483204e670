package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
)

func TestAssign_DefaultsOnCreate(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")

	row, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{}, nil)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !row.IsActive {
		t.Error("expected new assignment to be active")
	}
	if !row.StartsAt.Equal(f.clock.Now()) {
		t.Errorf("StartsAt = %v, want now", row.StartsAt)
	}
	if row.ExpiresAt != nil {
		t.Errorf("expected no expiry, got %v", row.ExpiresAt)
	}
}

func TestAssign_IdempotentReassignment(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	w := domain.Window{DurationDays: intPtr(30)}

	first, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, w, nil)
	if err != nil {
		t.Fatalf("first Assign: %v", err)
	}
	f.clock.Advance(time.Hour)
	second, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, w, nil)
	if err != nil {
		t.Fatalf("second Assign: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected the existing row to be updated, got new id %s", second.ID)
	}
	rows, _ := f.svc.Assignments.List(f.ctx, ref, false)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := f.clock.Now().AddDate(0, 0, 30)
	if rows[0].ExpiresAt == nil || !rows[0].ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", rows[0].ExpiresAt, want)
	}
}

func TestAssign_PatchesOnlySuppliedFields(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")

	created, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{DurationDays: intPtr(10)}, nil)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	expires := *created.ExpiresAt

	f.clock.Advance(48 * time.Hour)
	row, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{}, nil)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if row.ExpiresAt == nil || !row.ExpiresAt.Equal(expires) {
		t.Errorf("empty window must keep expiry %v, got %v", expires, row.ExpiresAt)
	}
	if row.DurationDays == nil || *row.DurationDays != 10 {
		t.Errorf("DurationDays changed: %v", row.DurationDays)
	}
	if !row.StartsAt.Equal(created.StartsAt) {
		t.Errorf("StartsAt changed: %v", row.StartsAt)
	}

	row, err = f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim,
		domain.Window{ExpiresAt: domain.Null[time.Time](), DurationDays: intPtr(5)}, nil)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if row.ExpiresAt != nil {
		t.Errorf("explicit null must clear expiry even with durationDays, got %v", row.ExpiresAt)
	}
}

func TestAssignBulk_DedupesAndAssignsAll(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")

	rows, err := f.svc.Assignments.AssignBulk(f.ctx, ref,
		[]domain.AgentName{domain.AgentJim, domain.AgentAlex, domain.AgentJim}, domain.Window{}, nil)
	if err != nil {
		t.Fatalf("AssignBulk: %v", err)
	}
	if got := agentNames(rows); !sameAgents(got, []domain.AgentName{domain.AgentJim, domain.AgentAlex}) {
		t.Errorf("got %v", got)
	}
}

func TestAssignBulk_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	svc := f.services(&faultyStore{Storage: f.store, failCreateAgentAt: 2})

	_, err := svc.Assignments.AssignBulk(f.ctx, ref,
		[]domain.AgentName{domain.AgentJim, domain.AgentAlex, domain.AgentNova}, domain.Window{}, nil)
	if !errors.Is(err, errWriteFailed) {
		t.Fatalf("expected the write failure, got %v", err)
	}

	rows, err := f.store.ListAssignedAgents(f.ctx, ref.ID, false)
	if err != nil {
		t.Fatalf("ListAssignedAgents: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows after a failed batch, got %v", agentNames(rows))
	}
}

func TestAssign_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Assignments.Assign(f.ctx, domain.UserRef{Email: "ghost@x.com"}, domain.AgentJim, domain.Window{}, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAtMostOneActiveAgentRow(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")

	steps := []func() error{
		func() error {
			_, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{}, nil)
			return err
		},
		func() error {
			_, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{DurationDays: intPtr(3)}, nil)
			return err
		},
		func() error {
			_, err := f.svc.Assignments.Deactivate(f.ctx, ref, domain.AgentJim)
			return err
		},
		func() error {
			_, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{}, nil)
			return err
		},
		func() error {
			_, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{}, boolPtr(true))
			return err
		},
	}

	for i, step := range steps {
		f.clock.Advance(time.Minute)
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		rows, err := f.svc.Assignments.List(f.ctx, ref, false)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if n := countActive(rows, func(a *domain.AssignedAgent) bool { return a.IsActive }); n > 1 {
			t.Fatalf("step %d: %d active rows for JIM", i, n)
		}
	}

	rows, _ := f.svc.Assignments.List(f.ctx, ref, false)
	if len(rows) != 2 {
		t.Errorf("expected the deactivated row to be kept plus one active row, got %d rows", len(rows))
	}
	if !rows[0].IsActive || rows[1].IsActive {
		t.Errorf("expected newest row active and oldest inactive, got %v/%v", rows[0].IsActive, rows[1].IsActive)
	}
}

func TestDeactivate_RequiresActiveRow(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")

	if _, err := f.svc.Assignments.Deactivate(f.ctx, ref, domain.AgentJim); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for never-assigned agent, got %v", err)
	}

	if _, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{}, nil); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	row, err := f.svc.Assignments.Deactivate(f.ctx, ref, domain.AgentJim)
	if err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if row.IsActive {
		t.Error("expected row to be inactive")
	}

	if _, err := f.svc.Assignments.Deactivate(f.ctx, ref, domain.AgentJim); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second deactivation should be NotFound, got %v", err)
	}
}

func TestSelected_FiltersInactiveAndExpired(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	now := f.clock.Now()

	assign := func(agent domain.AgentName, w domain.Window) {
		t.Helper()
		f.clock.Advance(time.Second)
		if _, err := f.svc.Assignments.Assign(f.ctx, ref, agent, w, nil); err != nil {
			t.Fatalf("Assign(%s): %v", agent, err)
		}
	}

	assign(domain.AgentLuna, domain.Window{})
	assign(domain.AgentAlex, domain.Window{ExpiresAt: domain.Some(now.Add(-time.Hour))})
	assign(domain.AgentEmma, domain.Window{ExpiresAt: domain.Some(now.Add(5 * time.Second))})
	assign(domain.AgentNova, domain.Window{})
	assign(domain.AgentJim, domain.Window{ExpiresAt: domain.Some(now.Add(time.Hour))})
	if _, err := f.svc.Assignments.Deactivate(f.ctx, ref, domain.AgentNova); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	// EMMA expires exactly now: expiry is exclusive.
	f.clock.now = now.Add(5 * time.Second)

	got, err := f.svc.Assignments.Selected(f.ctx, ref)
	if err != nil {
		t.Fatalf("Selected: %v", err)
	}
	want := []domain.AgentName{domain.AgentJim, domain.AgentLuna}
	if !sameAgents(got.Agents, want) {
		t.Errorf("Selected = %v, want %v", got.Agents, want)
	}
}

func TestSelected_ExpiryDoesNotDeactivate(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")

	if _, err := f.svc.Assignments.Assign(f.ctx, ref, domain.AgentJim, domain.Window{DurationDays: intPtr(1)}, nil); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	f.clock.Advance(25 * time.Hour)

	selected, err := f.svc.Assignments.Selected(f.ctx, ref)
	if err != nil {
		t.Fatalf("Selected: %v", err)
	}
	if len(selected.Agents) != 0 {
		t.Errorf("expected JIM to be excluded after expiry, got %v", selected.Agents)
	}

	active, err := f.svc.Assignments.List(f.ctx, ref, true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 1 || active[0].AgentName != domain.AgentJim || !active[0].IsActive {
		t.Errorf("expected the expired row to stay active, got %+v", active)
	}
}
