package credstore

import (
	"testing"

	"capsulemail/internal/model"
)

func TestLoadEmpty(t *testing.T) {
	s := New(t.TempDir())
	tok, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != nil {
		t.Fatalf("expected nil token set, got %+v", tok)
	}
}

func TestSaveLoadClear(t *testing.T) {
	s := New(t.TempDir())
	want := &model.TokenSet{
		AccessToken:  "ya29.abc",
		RefreshToken: "1//refresh",
		ExpiresAt:    1700000000000,
		UserEmail:    "parent@gmail.com",
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || *got != *want {
		t.Fatalf("Load got %+v want %+v", got, want)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err = s.Load()
	if err != nil {
		t.Fatalf("Load after Clear: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after Clear, got %+v", got)
	}

	// Clearing again must not fail.
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestEmptyAccessTokenTreatedAsAbsent(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Save(&model.TokenSet{AccessToken: "", UserEmail: "x@y.z"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tok, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != nil {
		t.Fatalf("expected nil for empty access token, got %+v", tok)
	}
}
