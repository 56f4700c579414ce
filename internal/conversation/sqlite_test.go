package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndListMessages(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ask := NewMessage("conv-1", "alice", RoleUser)
	ask.Query = "best pizza"
	ask.Site = "restaurants"
	if err := s.StoreMessage(ctx, ask); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	answer := NewMessage("conv-1", "alice", RoleAssistant)
	answer.Timestamp = ask.Timestamp.Add(time.Second)
	answer.Results = `[{"name":"Pizza Place"}]`
	if err := s.StoreMessage(ctx, answer); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	msgs, err := s.Messages(ctx, "conv-1", 100)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("messages out of order: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].Query != "best pizza" {
		t.Errorf("query = %q", msgs[0].Query)
	}
	if msgs[1].Results == "" {
		t.Error("assistant message should carry results")
	}
}

func TestUserConversationsMostRecentFirst(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	old := NewMessage("conv-old", "bob", RoleUser)
	old.Timestamp = time.Now().UTC().Add(-time.Hour)
	recent := NewMessage("conv-new", "bob", RoleUser)
	other := NewMessage("conv-other", "carol", RoleUser)

	for _, m := range []*Message{old, recent, other} {
		if err := s.StoreMessage(ctx, m); err != nil {
			t.Fatalf("StoreMessage: %v", err)
		}
	}

	ids, err := s.UserConversations(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("UserConversations: %v", err)
	}
	if len(ids) != 2 || ids[0] != "conv-new" || ids[1] != "conv-old" {
		t.Errorf("ids = %v, want [conv-new conv-old]", ids)
	}
}

func TestDeleteConversation(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.StoreMessage(ctx, NewMessage("conv-1", "alice", RoleUser)); err != nil {
			t.Fatalf("StoreMessage: %v", err)
		}
	}
	if err := s.StoreMessage(ctx, NewMessage("conv-2", "alice", RoleUser)); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	n, err := s.DeleteConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted %d messages, want 3", n)
	}

	msgs, err := s.Messages(ctx, "conv-2", 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("conv-2 has %d messages, want 1", len(msgs))
	}
}
