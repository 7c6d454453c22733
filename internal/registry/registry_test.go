package registry

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/meetcore/interview-rtc/internal/auth"
)

func newTestRegistry() *Registry {
	return New(NewMemoryStore(), zap.NewNop())
}

func TestAdmitReturnsExistingMembersInArrivalOrder(t *testing.T) {
	r := newTestRegistry()

	existing, err := r.Admit("a", auth.RoleInterviewer, "r1")
	if err != nil {
		t.Fatalf("admit a: %v", err)
	}
	if len(existing) != 0 {
		t.Fatalf("first admission should see empty room, got %v", existing)
	}

	existing, err = r.Admit("b", auth.RoleCandidate, "r1")
	if err != nil {
		t.Fatalf("admit b: %v", err)
	}
	if len(existing) != 1 || existing[0] != "a" {
		t.Fatalf("second admission should see [a], got %v", existing)
	}

	existing, err = r.Admit("c", auth.RoleCandidate, "r1")
	if err != nil {
		t.Fatalf("admit c: %v", err)
	}
	if len(existing) != 2 || existing[0] != "a" || existing[1] != "b" {
		t.Fatalf("third admission should see [a b], got %v", existing)
	}
}

func TestAdmitRejectsSecondRoom(t *testing.T) {
	r := newTestRegistry()

	if _, err := r.Admit("a", auth.RoleCandidate, "r1"); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := r.Admit("a", auth.RoleCandidate, "r2"); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	// The failed admission must not have touched r2.
	members, _ := r.Members("r2")
	if len(members) != 0 {
		t.Fatalf("r2 should be empty, got %v", members)
	}
}

func TestRemove(t *testing.T) {
	r := newTestRegistry()
	r.Admit("a", auth.RoleInterviewer, "r1")
	r.Admit("b", auth.RoleCandidate, "r1")

	roomID, remaining, err := r.Remove("a")
	if err != nil {
		t.Fatalf("remove a: %v", err)
	}
	if roomID != "r1" {
		t.Errorf("roomID = %q, want r1", roomID)
	}
	if len(remaining) != 1 || remaining[0] != "b" {
		t.Errorf("remaining = %v, want [b]", remaining)
	}

	if _, _, err := r.Remove("a"); !errors.Is(err, ErrNotMember) {
		t.Errorf("duplicate remove should return ErrNotMember, got %v", err)
	}

	if _, ok := r.Participant("a"); ok {
		t.Error("removed participant still has metadata")
	}
}

func TestEmptyRoomIsGarbageCollected(t *testing.T) {
	r := newTestRegistry()
	r.Admit("a", auth.RoleCandidate, "r1")
	r.Remove("a")

	members, err := r.Members("r1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("emptied room should have no members, got %v", members)
	}

	// A rejoin sees a fresh room.
	existing, err := r.Admit("a", auth.RoleCandidate, "r1")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if len(existing) != 0 {
		t.Fatalf("rejoin should see empty room, got %v", existing)
	}
}

// Membership must equal exactly the identities with no leave after
// their most recent join, for any join/leave sequence.
func TestMembershipAlgebra(t *testing.T) {
	type op struct {
		join     bool
		identity string
	}
	ops := []op{
		{true, "a"}, {true, "b"}, {false, "a"}, {true, "c"},
		{true, "a"}, {false, "b"}, {false, "c"}, {true, "d"},
	}

	r := newTestRegistry()
	want := map[string]bool{}
	var order []string
	for _, o := range ops {
		if o.join {
			if _, err := r.Admit(o.identity, auth.RoleCandidate, "r1"); err != nil {
				t.Fatalf("admit %s: %v", o.identity, err)
			}
			want[o.identity] = true
			order = append(order, o.identity)
		} else {
			if _, _, err := r.Remove(o.identity); err != nil {
				t.Fatalf("remove %s: %v", o.identity, err)
			}
			delete(want, o.identity)
			for i, id := range order {
				if id == o.identity {
					order = append(order[:i], order[i+1:]...)
					break
				}
			}
		}
	}

	members, err := r.Members("r1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != len(order) {
		t.Fatalf("members = %v, want %v", members, order)
	}
	for i := range members {
		if members[i] != order[i] {
			t.Fatalf("members = %v, want %v", members, order)
		}
	}
}

func TestParticipantMetadata(t *testing.T) {
	r := newTestRegistry()
	r.Admit("hr", auth.RoleInterviewer, "r1")

	p, ok := r.Participant("hr")
	if !ok {
		t.Fatal("participant not found")
	}
	if p.Role != auth.RoleInterviewer {
		t.Errorf("role = %q, want interviewer", p.Role)
	}
	if p.RoomID != "r1" {
		t.Errorf("roomID = %q, want r1", p.RoomID)
	}
}
