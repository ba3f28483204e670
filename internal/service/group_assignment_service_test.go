package service_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/service"
)

func byName(name string) domain.GroupSelector { return domain.GroupSelector{GroupName: name} }

func TestResolveGroup(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, "Sales", domain.AgentJim)

	tests := []struct {
		name    string
		sel     domain.GroupSelector
		wantErr error
	}{
		{"by id", domain.GroupSelector{GroupID: g.ID}, nil},
		{"by name", byName("Sales"), nil},
		{"neither", domain.GroupSelector{}, domain.ErrInvalidInput},
		{"both", domain.GroupSelector{GroupID: g.ID, GroupName: "Sales"}, domain.ErrInvalidInput},
		{"unknown id", domain.GroupSelector{GroupID: "nope"}, domain.ErrNotFound},
		{"unknown name", byName("Marketing"), domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.GroupAssignments.ResolveGroup(f.ctx, tt.sel)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveGroup: %v", err)
			}
			if got.ID != g.ID {
				t.Errorf("resolved %s, want %s", got.ID, g.ID)
			}
		})
	}
}

func TestAssignGroup_Materializes(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	f.group(t, "Sales", domain.AgentJim, domain.AgentAlex)

	res, err := f.svc.GroupAssignments.AssignGroup(f.ctx, ref, byName("Sales"), domain.Window{DurationDays: intPtr(7)}, nil)
	if err != nil {
		t.Fatalf("AssignGroup: %v", err)
	}
	if len(res.Assignments) != 1 || !res.Assignments[0].IsActive {
		t.Fatalf("expected one active group assignment, got %+v", res.Assignments)
	}
	if !sameAgents(agentNames(res.Agents), []domain.AgentName{domain.AgentJim, domain.AgentAlex}) {
		t.Errorf("materialized %v", agentNames(res.Agents))
	}
	want := f.clock.Now().AddDate(0, 0, 7)
	for _, a := range res.Agents {
		if a.ExpiresAt == nil || !a.ExpiresAt.Equal(want) {
			t.Errorf("%s expires %v, want %v", a.AgentName, a.ExpiresAt, want)
		}
	}
}

func TestAssignGroup_EmptyGroupRejectedBeforeWrites(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	f.group(t, "Empty")

	_, err := f.svc.GroupAssignments.AssignGroup(f.ctx, ref, byName("Empty"), domain.Window{}, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	rows, _ := f.svc.GroupAssignments.ListGroupAssignments(f.ctx, ref, false)
	if len(rows) != 0 {
		t.Errorf("expected no group assignment row, got %d", len(rows))
	}
}

func TestAssignGroups_UnionWithoutDuplicates(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	f.group(t, "G1", domain.AgentAlex, domain.AgentJim)
	f.group(t, "G2", domain.AgentJim, domain.AgentNova)

	res, err := f.svc.GroupAssignments.AssignGroups(f.ctx, ref,
		[]domain.GroupSelector{byName("G1"), byName("G2"), byName("G1")}, domain.Window{}, nil)
	if err != nil {
		t.Fatalf("AssignGroups: %v", err)
	}
	if len(res.Assignments) != 2 {
		t.Errorf("expected 2 group assignments, got %d", len(res.Assignments))
	}
	want := []domain.AgentName{domain.AgentAlex, domain.AgentJim, domain.AgentNova}
	if !sameAgents(agentNames(res.Agents), want) {
		t.Errorf("materialized %v, want %v", agentNames(res.Agents), want)
	}

	rows, _ := f.svc.Assignments.List(f.ctx, ref, false)
	if len(rows) != 3 {
		t.Errorf("expected 3 agent rows (JIM once), got %d", len(rows))
	}
}

func TestAssignGroups_EmptyUnion(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	f.group(t, "Empty1")
	f.group(t, "Empty2")
	f.group(t, "Sales", domain.AgentJim)

	_, err := f.svc.GroupAssignments.AssignGroups(f.ctx, ref, []domain.GroupSelector{byName("Empty1"), byName("Empty2")}, domain.Window{}, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty union, got %v", err)
	}

	res, err := f.svc.GroupAssignments.AssignGroups(f.ctx, ref, []domain.GroupSelector{byName("Empty1"), byName("Sales")}, domain.Window{}, nil)
	if err != nil {
		t.Fatalf("an empty group inside a non-empty union should be accepted: %v", err)
	}
	if len(res.Assignments) != 2 || len(res.Agents) != 1 {
		t.Errorf("got %d group rows and %d agent rows", len(res.Assignments), len(res.Agents))
	}
}

func TestAssignGroups_RepeatedEmptyGroup(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	f.group(t, "Empty")

	tests := []struct {
		name string
		sels []domain.GroupSelector
	}{
		{"once", []domain.GroupSelector{byName("Empty")}},
		{"twice", []domain.GroupSelector{byName("Empty"), byName("Empty")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GroupAssignments.AssignGroups(f.ctx, ref, tt.sels, domain.Window{}, nil)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if !strings.Contains(err.Error(), `group "Empty" has no agents`) {
				t.Errorf("expected the group to be named in %q", err)
			}
		})
	}
}

func TestAssignGroups_MaterializationIsAtomic(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	f.group(t, "Sales", domain.AgentJim, domain.AgentAlex)
	f.group(t, "Support", domain.AgentNova)
	sels := []domain.GroupSelector{byName("Sales"), byName("Support")}

	svc := f.services(&faultyStore{Storage: f.store, failCreateAgentAt: 2})
	_, err := svc.GroupAssignments.AssignGroups(f.ctx, ref, sels, domain.Window{}, nil)
	if !errors.Is(err, errWriteFailed) {
		t.Fatalf("expected the write failure, got %v", err)
	}

	agents, _ := f.svc.Assignments.List(f.ctx, ref, false)
	if len(agents) != 0 {
		t.Errorf("expected no agent rows after failed materialization, got %v", agentNames(agents))
	}
	// Group rows are committed before materialization starts.
	groups, _ := f.svc.GroupAssignments.ListGroupAssignments(f.ctx, ref, false)
	if len(groups) != 2 {
		t.Errorf("expected 2 group rows, got %d", len(groups))
	}

	res, err := f.svc.GroupAssignments.AssignGroups(f.ctx, ref, sels, domain.Window{}, nil)
	if err != nil {
		t.Fatalf("retrying AssignGroups: %v", err)
	}
	if len(res.Agents) != 3 {
		t.Errorf("expected 3 agents after retry, got %v", agentNames(res.Agents))
	}
	groups, _ = f.svc.GroupAssignments.ListGroupAssignments(f.ctx, ref, true)
	if len(groups) != 2 {
		t.Errorf("expected 2 active group rows after retry, got %d", len(groups))
	}
}

func TestAtMostOneActiveGroupRow(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	f.group(t, "Sales", domain.AgentJim)

	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Minute)
		if _, err := f.svc.GroupAssignments.AssignGroup(f.ctx, ref, byName("Sales"), domain.Window{}, nil); err != nil {
			t.Fatalf("AssignGroup #%d: %v", i, err)
		}
	}
	if _, err := f.svc.GroupAssignments.DeactivateGroup(f.ctx, ref, byName("Sales")); err != nil {
		t.Fatalf("DeactivateGroup: %v", err)
	}
	if _, err := f.svc.GroupAssignments.UpsertGroupAssignment(f.ctx, ref, byName("Sales"), domain.Window{}, nil); err != nil {
		t.Fatalf("UpsertGroupAssignment: %v", err)
	}

	rows, err := f.svc.GroupAssignments.ListGroupAssignments(f.ctx, ref, false)
	if err != nil {
		t.Fatalf("ListGroupAssignments: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(rows))
	}
	if n := countActive(rows, func(a *domain.AssignedGroup) bool { return a.IsActive }); n != 1 {
		t.Errorf("expected exactly 1 active row, got %d", n)
	}
}

func TestDeactivateGroup_DoesNotCascade(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	f.group(t, "Sales", domain.AgentJim, domain.AgentAlex)

	if _, err := f.svc.GroupAssignments.DeactivateGroup(f.ctx, ref, byName("Sales")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before assignment, got %v", err)
	}

	if _, err := f.svc.GroupAssignments.AssignGroup(f.ctx, ref, byName("Sales"), domain.Window{}, nil); err != nil {
		t.Fatalf("AssignGroup: %v", err)
	}
	row, err := f.svc.GroupAssignments.DeactivateGroup(f.ctx, ref, byName("Sales"))
	if err != nil {
		t.Fatalf("DeactivateGroup: %v", err)
	}
	if row.IsActive {
		t.Error("expected group assignment to be inactive")
	}

	selected, _ := f.svc.Assignments.Selected(f.ctx, ref)
	if len(selected.Agents) != 2 {
		t.Errorf("materialized agents must stay active, got %v", selected.Agents)
	}
}

// Scenario: membership edits after assignment do not touch materialized rows.
func TestSalesScenario(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")
	sales := f.group(t, "Sales", domain.AgentJim, domain.AgentAlex)

	res, err := f.svc.GroupAssignments.AssignGroup(f.ctx, ref, byName("Sales"), domain.Window{}, nil)
	if err != nil {
		t.Fatalf("AssignGroup: %v", err)
	}
	if len(res.Assignments) != 1 || len(res.Agents) != 2 {
		t.Fatalf("expected 1 group row and 2 agent rows, got %d/%d", len(res.Assignments), len(res.Agents))
	}

	g, err := f.svc.Groups.RemoveMembers(f.ctx, sales.ID, []domain.AgentName{domain.AgentAlex})
	if err != nil {
		t.Fatalf("RemoveMembers: %v", err)
	}
	if !sameAgents(g.Agents, []domain.AgentName{domain.AgentJim}) {
		t.Fatalf("group members = %v", g.Agents)
	}

	f.clock.Advance(time.Hour)
	res, err = f.svc.GroupAssignments.AssignGroup(f.ctx, ref, byName("Sales"), domain.Window{}, nil)
	if err != nil {
		t.Fatalf("re-run AssignGroup: %v", err)
	}
	if !sameAgents(agentNames(res.Agents), []domain.AgentName{domain.AgentJim}) {
		t.Errorf("re-run materialized %v", agentNames(res.Agents))
	}

	active, _ := f.svc.Assignments.List(f.ctx, ref, true)
	if len(active) != 2 {
		t.Fatalf("expected stale ALEX row to remain active, got %d active rows", len(active))
	}
	groups, _ := f.svc.GroupAssignments.ListGroupAssignments(f.ctx, ref, true)
	if len(groups) != 1 {
		t.Errorf("expected one active group assignment, got %d", len(groups))
	}
}

func TestCreateGroupAndAssign(t *testing.T) {
	f := newFixture(t)
	ref := f.user(t, "a@x.com")

	_, err := f.svc.GroupAssignments.CreateGroupAndAssign(f.ctx, service.GroupParams{Name: "Orphan"},
		[]domain.AgentName{domain.AgentJim}, domain.UserRef{Email: "ghost@x.com"}, domain.Window{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
	if _, err := f.store.GetAgentGroupByName(f.ctx, "Orphan"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("group must not be created for an unknown user")
	}

	res, err := f.svc.GroupAssignments.CreateGroupAndAssign(f.ctx, service.GroupParams{Name: "Sales"},
		[]domain.AgentName{domain.AgentJim, domain.AgentAlex}, ref, domain.Window{})
	if err != nil {
		t.Fatalf("CreateGroupAndAssign: %v", err)
	}
	if res.Group.Name != "Sales" || len(res.Assignments) != 1 || len(res.Agents) != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestUpdateMyAssignment(t *testing.T) {
	f := newFixture(t)
	f.user(t, "me@x.com")
	f.group(t, "Sales", domain.AgentJim)

	_, err := f.svc.GroupAssignments.UpdateMyAssignment(f.ctx, "me@x.com", byName("Sales"), domain.Window{DurationDays: intPtr(3)}, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without an active assignment, got %v", err)
	}

	me := domain.UserRef{Email: "me@x.com"}
	if _, err := f.svc.GroupAssignments.AssignGroup(f.ctx, me, byName("Sales"), domain.Window{}, nil); err != nil {
		t.Fatalf("AssignGroup: %v", err)
	}
	row, err := f.svc.GroupAssignments.UpdateMyAssignment(f.ctx, "me@x.com", byName("Sales"), domain.Window{DurationDays: intPtr(3)}, nil)
	if err != nil {
		t.Fatalf("UpdateMyAssignment: %v", err)
	}
	want := f.clock.Now().AddDate(0, 0, 3)
	if row.ExpiresAt == nil || !row.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", row.ExpiresAt, want)
	}
}

func TestExtendMyAssignment(t *testing.T) {
	f := newFixture(t)
	me := f.user(t, "me@x.com")
	f.group(t, "Sales", domain.AgentJim)
	f.group(t, "Support", domain.AgentMax)
	now := f.clock.Now()

	expiry := now.AddDate(0, 0, 10)
	if _, err := f.svc.GroupAssignments.AssignGroup(f.ctx, me, byName("Sales"), domain.Window{ExpiresAt: domain.Some(expiry)}, nil); err != nil {
		t.Fatalf("AssignGroup: %v", err)
	}
	if _, err := f.svc.GroupAssignments.AssignGroup(f.ctx, me, byName("Support"), domain.Window{}, nil); err != nil {
		t.Fatalf("AssignGroup: %v", err)
	}

	tests := []struct {
		name    string
		group   string
		addDays *int
		want    time.Time
		wantErr error
	}{
		{"extends from current expiry", "Sales", intPtr(5), expiry.AddDate(0, 0, 5), nil},
		{"shortens with negative days", "Sales", intPtr(-2), expiry.AddDate(0, 0, 3), nil},
		{"extends from now without expiry", "Support", intPtr(30), now.AddDate(0, 0, 30), nil},
		{"zero rejected", "Sales", intPtr(0), time.Time{}, domain.ErrInvalidInput},
		{"over the bound", "Sales", intPtr(3651), time.Time{}, domain.ErrInvalidInput},
		{"under the bound", "Sales", intPtr(-3651), time.Time{}, domain.ErrInvalidInput},
		{"missing", "Sales", nil, time.Time{}, domain.ErrInvalidInput},
		{"unknown group", "Marketing", intPtr(1), time.Time{}, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := f.svc.GroupAssignments.ExtendMyAssignment(f.ctx, "me@x.com", byName(tt.group), tt.addDays)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtendMyAssignment: %v", err)
			}
			if row.ExpiresAt == nil || !row.ExpiresAt.Equal(tt.want) {
				t.Errorf("ExpiresAt = %v, want %v", row.ExpiresAt, tt.want)
			}
		})
	}
}

func TestDeactivateMyAssignment(t *testing.T) {
	f := newFixture(t)
	me := f.user(t, "me@x.com")
	f.group(t, "Sales", domain.AgentJim)

	if _, err := f.svc.GroupAssignments.AssignGroup(f.ctx, me, byName("Sales"), domain.Window{}, nil); err != nil {
		t.Fatalf("AssignGroup: %v", err)
	}
	row, err := f.svc.GroupAssignments.DeactivateMyAssignment(f.ctx, "me@x.com", byName("Sales"))
	if err != nil {
		t.Fatalf("DeactivateMyAssignment: %v", err)
	}
	if row.IsActive {
		t.Error("expected inactive row")
	}
	if _, err := f.svc.GroupAssignments.DeactivateMyAssignment(f.ctx, "me@x.com", byName("Sales")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
