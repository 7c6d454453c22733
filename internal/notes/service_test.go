package notes

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/meetcore/interview-rtc/internal/auth"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	store.Seed("cand-1")
	return NewService(store, zap.NewNop()), store
}

func TestAddUpdateDeleteList(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	n, err := svc.Add(ctx, auth.RoleInterviewer, "cand-1", "strong on systems design")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if n.ID == "" || n.CreatedAt.IsZero() {
		t.Fatalf("note missing id or timestamp: %+v", n)
	}

	updated, err := svc.Update(ctx, auth.RoleInterviewer, "cand-1", n.ID, "revise: excellent")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Content != "revise: excellent" {
		t.Errorf("content = %q", updated.Content)
	}
	if !updated.CreatedAt.Equal(n.CreatedAt) {
		t.Error("update must preserve creation time")
	}

	ns, err := svc.List(ctx, auth.RoleInterviewer, "cand-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ns) != 1 {
		t.Fatalf("list returned %d notes, want 1", len(ns))
	}

	if err := svc.Delete(ctx, auth.RoleInterviewer, "cand-1", n.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ns, _ = svc.List(ctx, auth.RoleInterviewer, "cand-1")
	if len(ns) != 0 {
		t.Fatalf("list after delete returned %d notes", len(ns))
	}
}

func TestCandidateRoleIsForbidden(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Add(ctx, auth.RoleCandidate, "cand-1", "x"); !errors.Is(err, ErrForbidden) {
		t.Errorf("add: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.List(ctx, auth.RoleCandidate, "cand-1"); !errors.Is(err, ErrForbidden) {
		t.Errorf("list: expected ErrForbidden, got %v", err)
	}
	if err := svc.Delete(ctx, auth.RoleCandidate, "cand-1", "id"); !errors.Is(err, ErrForbidden) {
		t.Errorf("delete: expected ErrForbidden, got %v", err)
	}
}

func TestUnknownCandidateFailsAck(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Add(context.Background(), auth.RoleInterviewer, "ghost", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMissingNote(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Update(context.Background(), auth.RoleInterviewer, "cand-1", "nope", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
