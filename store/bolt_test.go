package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestBoltStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		token, err := s.Token(ctx)
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if token != "" {
			t.Errorf("expected empty token, got %q", token)
		}
		if _, err := s.User(); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if id := s.CurrentUserID(); id != "" {
			t.Errorf("expected empty user id, got %q", id)
		}
	})

	t.Run("TokenAndUser", func(t *testing.T) {
		if err := s.SaveToken("tok-1"); err != nil {
			t.Fatalf("SaveToken failed: %v", err)
		}
		user := DBUser{ID: "u1", UserName: "alice", DisplayName: "Alice", AvatarURL: "https://example.com/a.png"}
		if err := s.SaveUser(user); err != nil {
			t.Fatalf("SaveUser failed: %v", err)
		}

		token, err := s.Token(ctx)
		if err != nil || token != "tok-1" {
			t.Fatalf("expected tok-1, got %q (%v)", token, err)
		}
		got, err := s.User()
		if err != nil {
			t.Fatalf("User failed: %v", err)
		}
		if got != user {
			t.Errorf("expected %+v, got %+v", user, got)
		}
		if id := s.CurrentUserID(); id != "u1" {
			t.Errorf("expected u1, got %q", id)
		}
	})

	t.Run("DeleteToken", func(t *testing.T) {
		if err := s.DeleteToken(); err != nil {
			t.Fatalf("DeleteToken failed: %v", err)
		}
		token, _ := s.Token(ctx)
		if token != "" {
			t.Errorf("expected empty token after delete, got %q", token)
		}
		if id := s.CurrentUserID(); id != "u1" {
			t.Errorf("user should survive token delete, got %q", id)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		_ = s.SaveToken("tok-2")
		if err := s.Logout(); err != nil {
			t.Fatalf("Logout failed: %v", err)
		}
		token, _ := s.Token(ctx)
		if token != "" || s.CurrentUserID() != "" {
			t.Errorf("expected signed out, got token %q user %q", token, s.CurrentUserID())
		}
		// Logging out twice is fine.
		if err := s.Logout(); err != nil {
			t.Errorf("second Logout failed: %v", err)
		}
	})

	t.Run("CanceledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := s.Token(cctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestBoltStorePersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.SaveToken("persisted"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer func() { _ = s.Close() }()

	token, err := s.Token(context.Background())
	if err != nil || token != "persisted" {
		t.Fatalf("expected persisted, got %q (%v)", token, err)
	}
}
