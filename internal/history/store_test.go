package history

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/atmo-climate/atmo/internal/db"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestAppendAndMessages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "s1", RoleUser, "What causes coral bleaching?"); err != nil {
		t.Fatalf("append user: %v", err)
	}
	msg, err := s.Append(ctx, "s1", RoleAssistant, "Coral bleaching is...")
	if err != nil {
		t.Fatalf("append assistant: %v", err)
	}
	if msg.ID == 0 {
		t.Error("expected assigned id")
	}
	s.Append(ctx, "s2", RoleUser, "other session")

	msgs, err := s.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("unexpected order: %+v", msgs)
	}
	if msgs[0].Timestamp.IsZero() {
		t.Error("expected parsed timestamp")
	}
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "s1", "system", "x"); err == nil {
		t.Error("expected error for invalid role")
	}
	if _, err := s.Append(ctx, "", RoleUser, "x"); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestMessagesUnknownSession(t *testing.T) {
	s := testStore(t)
	msgs, err := s.Messages(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", msgs)
	}
}

func TestRecentReturnsLatestChronological(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		s.Append(ctx, "s1", role, fmt.Sprintf("m%d", i))
	}

	recent, err := s.Recent(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(recent))
	}
	if recent[0].Content != "m5" || recent[9].Content != "m14" {
		t.Errorf("expected m5..m14, got %s..%s", recent[0].Content, recent[9].Content)
	}
}

func TestRecentSkipsErrorRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Append(ctx, "s1", RoleUser, "q1")
	s.Append(ctx, "s1", RoleError, "[Error: boom]")
	s.Append(ctx, "s1", RoleUser, "q2")

	recent, err := s.Recent(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(recent))
	}
	for _, m := range recent {
		if m.Role == RoleError {
			t.Error("expected error rows to be excluded")
		}
	}

	if none, _ := s.Recent(ctx, "s1", 0); len(none) != 0 {
		t.Errorf("expected nothing for limit 0, got %d", len(none))
	}
}

func TestListSessions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Append(ctx, "old", RoleUser, "Why is the Harmattan getting drier?")
	s.Append(ctx, "old", RoleAssistant, "Because...")
	s.Append(ctx, "new", RoleUser, strings.Repeat("long ", 30))

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "new" {
		t.Errorf("expected most recent session first, got %q", sessions[0].ID)
	}
	if !strings.HasSuffix(sessions[0].Title, "...") {
		t.Errorf("expected truncated title, got %q", sessions[0].Title)
	}
	if sessions[1].Title != "Why is the Harmattan getting drier?" || sessions[1].MessageCount != 2 {
		t.Errorf("unexpected summary: %+v", sessions[1])
	}
	if sessions[1].LastActivity.IsZero() {
		t.Error("expected last activity")
	}
}

func TestDeleteSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Append(ctx, "s1", RoleUser, "a")
	s.Append(ctx, "s1", RoleAssistant, "b")
	s.Append(ctx, "s2", RoleUser, "c")

	n, err := s.DeleteSession(ctx, "s1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows deleted, got %d", n)
	}
	if msgs, _ := s.Messages(ctx, "s2"); len(msgs) != 1 {
		t.Error("expected other sessions untouched")
	}
}

func TestSearch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Append(ctx, "s1", RoleUser, "How fast is sea level rising in Keta?")
	s.Append(ctx, "s2", RoleUser, "What is 100% humidity?")
	s.Append(ctx, "s3", RoleUser, "Cocoa yields")

	hits, err := s.Search(ctx, "SEA LEVEL", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].SessionID != "s1" {
		t.Errorf("expected one hit in s1, got %+v", hits)
	}

	hits, _ = s.Search(ctx, "100%", 0)
	if len(hits) != 1 || hits[0].SessionID != "s2" {
		t.Errorf("expected literal percent match, got %+v", hits)
	}
}

func TestPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Append(ctx, "keep", RoleUser, "sea level in Ada")
	s.Append(ctx, "keep", RoleAssistant, "rising")
	s.Append(ctx, "drop", RoleUser, "hello")

	n, err := s.Prune(ctx, "nothing matches this")
	if err != nil || n != 0 {
		t.Fatalf("expected no-op prune, got %d, %v", n, err)
	}

	n, err = s.Prune(ctx, "sea level")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row pruned, got %d", n)
	}
	sessions, _ := s.ListSessions(ctx)
	if len(sessions) != 1 || sessions[0].ID != "keep" {
		t.Errorf("expected only 'keep' to survive, got %+v", sessions)
	}
}

func TestTitle(t *testing.T) {
	if Title("  ") != "New conversation" {
		t.Error("expected placeholder title for blank question")
	}
	if Title("a\n b") != "a b" {
		t.Errorf("expected collapsed whitespace, got %q", Title("a\n b"))
	}
}
