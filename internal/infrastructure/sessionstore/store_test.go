package sessionstore

import (
	"testing"
	"time"

	"github.com/localagent/runtime/internal/domain/entity"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

func TestCreateAndGet(t *testing.T) {
	s := New(DefaultConfig())
	session, err := s.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok := s.Get(session.ID)
	if !ok {
		t.Fatalf("expected session %s to be found", session.ID)
	}
	if got.ID != session.ID {
		t.Fatalf("got session %s, want %s", got.ID, session.ID)
	}
}

func TestGet_MissingSession(t *testing.T) {
	s := New(DefaultConfig())
	if _, ok := s.Get("does-not-exist"); ok {
		t.Fatal("expected Get to report missing session as not found")
	}
}

func TestCreate_LimitExceeded(t *testing.T) {
	s := New(Config{MaxSessions: 2, SessionTimeout: time.Hour})
	if _, err := s.Create(); err != nil {
		t.Fatalf("Create 1: %v", err)
	}
	if _, err := s.Create(); err != nil {
		t.Fatalf("Create 2: %v", err)
	}
	if _, err := s.Create(); !pkgerrors.IsSessionLimitExceeded(err) {
		t.Fatalf("expected SessionLimitExceeded at capacity, got %v", err)
	}
}

func TestUpdate_UnknownSession(t *testing.T) {
	s := New(DefaultConfig())
	session := entity.NewSession()
	if err := s.Update(session); !pkgerrors.IsSessionNotFound(err) {
		t.Fatalf("expected SessionNotFound for an unknown session, got %v", err)
	}
}

func TestAddMessage_AppendsAndTouchesUpdatedAt(t *testing.T) {
	s := New(DefaultConfig())
	session, _ := s.Create()

	msg := entity.NewMessage(entity.RoleUser, "hello")
	if err := s.AddMessage(session.ID, msg); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	got, ok := s.Get(session.ID)
	if !ok {
		t.Fatal("session disappeared after AddMessage")
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestExpiry(t *testing.T) {
	s := New(Config{MaxSessions: 10, SessionTimeout: time.Minute})
	session, _ := s.Create()

	// Fast-forward the store's clock past the timeout.
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, ok := s.Get(session.ID); ok {
		t.Fatal("expected expired session to be reported as not found")
	}

	stats := s.Stats()
	if stats.Expired != 1 || stats.Active != 0 {
		t.Fatalf("unexpected stats after expiry: %+v", stats)
	}

	if removed := s.CleanupExpired(); removed != 1 {
		t.Fatalf("CleanupExpired removed %d, want 1", removed)
	}
	if removed := s.CleanupExpired(); removed != 0 {
		t.Fatalf("second CleanupExpired removed %d, want 0 (idempotent)", removed)
	}
}

func TestStats_CountsMessagesAcrossSessions(t *testing.T) {
	s := New(DefaultConfig())
	a, _ := s.Create()
	b, _ := s.Create()
	_ = s.AddMessage(a.ID, entity.NewMessage(entity.RoleUser, "hi"))
	_ = s.AddMessage(b.ID, entity.NewMessage(entity.RoleUser, "hi"))
	_ = s.AddMessage(b.ID, entity.NewMessage(entity.RoleAssistant, "hello"))

	stats := s.Stats()
	if stats.Total != 2 || stats.Active != 2 || stats.TotalMessages != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
