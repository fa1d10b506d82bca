package localstore

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLite_SaveLoadDelete(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Save(KeyMinimalChatLogs, []byte(`{"sessionId":"a"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(KeyMinimalChatLogs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"sessionId":"a"}` {
		t.Errorf("unexpected payload: %s", got)
	}

	if err := s.Delete(KeyMinimalChatLogs); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = s.Load(KeyMinimalChatLogs)
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %s", got)
	}
}

func TestSQLite_SaveIsLastWriteWins(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Save(KeyChatLogs, []byte(`first`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(KeyChatLogs, []byte(`second`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(KeyChatLogs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("expected last write to win, got %s", got)
	}
}

func TestMemory_LoadMissingKeyReturnsNil(t *testing.T) {
	m := NewMemory()
	got, err := m.Load("nope")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %s", got)
	}
}
