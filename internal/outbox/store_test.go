package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"capsulemail/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(id, createdAt string, status model.Status) model.CapsuleEntry {
	return model.CapsuleEntry{
		ID:         id,
		ChildID:    "child-1",
		ChildName:  "Mia",
		ChildEmail: "mia@example.com",
		Text:       "note " + id,
		CreatedAt:  createdAt,
		Status:     status,
		DayNumber:  12,
		Age:        "2 months",
		Subject:    "Day 12 — a note for Mia",
		Body:       "Day 12 • Age 2 months\n\nnote " + id + "\n\n#timecapsule",
	}
}

func TestAddGetRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := entry("e1", "2026-08-01T10:00:00Z", model.StatusPending)
	e.PhotoURIs = []string{"file:///cache/a.jpg", "file:///cache/b.png"}
	if err := s.Add(ctx, e); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Subject != e.Subject || got.Body != e.Body || got.ChildEmail != e.ChildEmail {
		t.Fatalf("frozen fields mangled: %+v", got)
	}
	if len(got.PhotoURIs) != 2 || got.PhotoURIs[1] != "file:///cache/b.png" {
		t.Fatalf("photo uris got %v", got.PhotoURIs)
	}
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListOldestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Insert newest first to prove ordering comes from created_at, not
	// insertion order. Two share a timestamp to exercise the ID tiebreak.
	s.Add(ctx, entry("c", "2026-08-03T09:00:00Z", model.StatusPending))
	s.Add(ctx, entry("b", "2026-08-01T09:00:00Z", model.StatusFailed))
	s.Add(ctx, entry("a", "2026-08-01T09:00:00Z", model.StatusPending))

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order got %v want %v", ids, want)
		}
	}
}

func TestUpdatePatchesOnlyGivenFields(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := entry("e1", "2026-08-01T10:00:00Z", model.StatusPending)
	e.PhotoURIs = []string{"file:///cache/a.jpg"}
	s.Add(ctx, e)

	failed := model.StatusFailed
	msg := "Quota exceeded"
	if err := s.Update(ctx, "e1", Patch{Status: &failed, ErrorMessage: &msg}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(ctx, "e1")
	if got.Status != model.StatusFailed || got.ErrorMessage != "Quota exceeded" {
		t.Fatalf("patch not applied: %+v", got)
	}
	if len(got.PhotoURIs) != 1 {
		t.Fatalf("untouched field changed: %v", got.PhotoURIs)
	}

	if err := s.Update(ctx, "missing", Patch{Status: &failed}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Add(ctx, entry("e1", "2026-08-01T10:00:00Z", model.StatusPending))
	if err := s.Remove(ctx, "e1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("entry still present: %v", err)
	}

	// Removing again is fine.
	if err := s.Remove(ctx, "e1"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestPendingCount(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Add(ctx, entry("p", "2026-08-01T10:00:00Z", model.StatusPending))
	s.Add(ctx, entry("f", "2026-08-01T11:00:00Z", model.StatusFailed))
	s.Add(ctx, entry("s", "2026-08-01T12:00:00Z", model.StatusSending))

	count, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("count got %d want 2 (pending + failed)", count)
	}
}

func TestReplacePhotoURI(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := entry("e1", "2026-08-01T10:00:00Z", model.StatusFailed)
	e.PhotoURIs = []string{"file:///cache/old.jpg", "file:///cache/keep.jpg"}
	s.Add(ctx, e)

	if err := s.ReplacePhotoURI(ctx, "e1", "file:///cache/old.jpg", "file:///photos/new.jpg"); err != nil {
		t.Fatalf("ReplacePhotoURI: %v", err)
	}
	got, _ := s.Get(ctx, "e1")
	if got.PhotoURIs[0] != "file:///photos/new.jpg" || got.PhotoURIs[1] != "file:///cache/keep.jpg" {
		t.Fatalf("uris got %v", got.PhotoURIs)
	}

	if err := s.ReplacePhotoURI(ctx, "e1", "file:///cache/absent.jpg", "x"); err == nil {
		t.Fatal("expected error replacing absent uri")
	}
}
