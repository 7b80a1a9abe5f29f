package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nebulatel/handoff/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "handoff.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testArchive(id string, start time.Time) domain.Archive {
	return domain.Archive{
		ID:        id,
		ClientID:  id,
		StartedAt: start,
		EndedAt:   start.Add(5 * time.Minute),
		Status:    string(domain.CloseAgentClosed),
		Messages: []domain.Message{
			{Sender: domain.SenderCustomer, Content: "my wifi is slow", Timestamp: start},
			{Sender: domain.SenderBot, Content: "let me check", Timestamp: start.Add(time.Second)},
			{Sender: domain.SenderSystem, Content: "Agent has joined the chat.", Timestamp: start.Add(2 * time.Second)},
		},
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 10, 9, 30, 0, 123456789, time.UTC)

	if err := repo.SaveArchive(ctx, testArchive("client-1", start)); err != nil {
		t.Fatalf("SaveArchive failed: %v", err)
	}

	got, err := repo.GetArchive(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected an archive, got nil")
	}
	if got.Status != "agent_closed" {
		t.Errorf("Expected status agent_closed, got %q", got.Status)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != "my wifi is slow" || got.Messages[2].Sender != domain.SenderSystem {
		t.Errorf("Messages came back out of order: %+v", got.Messages)
	}
	// Timestamps survive at nanosecond fidelity.
	if !got.Messages[0].Timestamp.Equal(start) {
		t.Errorf("Expected timestamp %v, got %v", start, got.Messages[0].Timestamp)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("Expected start %v, got %v", start, got.StartedAt)
	}
}

func TestSQLiteStore_GetUnknown(t *testing.T) {
	repo := newTestStore(t)

	got, err := repo.GetArchive(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for an unknown id, got %+v", got)
	}
}

func TestSQLiteStore_ResaveReplacesMessages(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	archive := testArchive("client-1", start)
	if err := repo.SaveArchive(ctx, archive); err != nil {
		t.Fatalf("First SaveArchive failed: %v", err)
	}

	// Re-archive with a longer conversation and a different final status.
	archive.Messages = append(archive.Messages, domain.Message{
		Sender: domain.SenderAgent, Content: "resolved", Timestamp: start.Add(3 * time.Second),
	})
	archive.Status = string(domain.CloseInactivity)
	archive.StartedAt = start.Add(time.Hour) // must not displace the original start
	if err := repo.SaveArchive(ctx, archive); err != nil {
		t.Fatalf("Second SaveArchive failed: %v", err)
	}

	got, err := repo.GetArchive(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if len(got.Messages) != 4 {
		t.Errorf("Expected the message list to be replaced with 4 entries, got %d", len(got.Messages))
	}
	if got.Status != "inactivity" {
		t.Errorf("Expected updated status, got %q", got.Status)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("Expected the original start time to survive, got %v", got.StartedAt)
	}

	list, err := repo.ListArchives(ctx)
	if err != nil {
		t.Fatalf("ListArchives failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected a single session after re-save, got %d", len(list))
	}
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "middle", "new"} {
		if err := repo.SaveArchive(ctx, testArchive(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveArchive(%s) failed: %v", id, err)
		}
	}

	list, err := repo.ListArchives(ctx)
	if err != nil {
		t.Fatalf("ListArchives failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 sessions, got %d", len(list))
	}
	if list[0].ID != "new" || list[2].ID != "old" {
		t.Errorf("Expected newest first, got %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}
	if len(list[0].Messages) != 0 {
		t.Errorf("Expected summaries without messages, got %d", len(list[0].Messages))
	}
}

func TestSQLiteStore_EmptyConversation(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	archive := domain.Archive{ID: "silent", ClientID: "silent", Status: string(domain.CloseInactivity)}
	if err := repo.SaveArchive(ctx, archive); err != nil {
		t.Fatalf("SaveArchive failed: %v", err)
	}

	got, err := repo.GetArchive(ctx, "silent")
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if got == nil || len(got.Messages) != 0 {
		t.Errorf("Expected an empty conversation, got %+v", got)
	}
	if got.StartedAt.IsZero() || got.EndedAt.IsZero() {
		t.Error("Expected zero times to be stamped at save")
	}
}

func TestSQLiteStore_ZeroStartUsesFirstMessage(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	first := time.Date(2026, 2, 10, 8, 15, 0, 0, time.UTC)

	// With messages present, a zero start resolves to the conversation's
	// first timestamp rather than the save clock.
	archive := testArchive("client-1", first)
	archive.StartedAt = time.Time{}
	if err := repo.SaveArchive(ctx, archive); err != nil {
		t.Fatalf("SaveArchive failed: %v", err)
	}

	got, err := repo.GetArchive(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if !got.StartedAt.Equal(first) {
		t.Errorf("Expected the start to resolve to the first message's timestamp %v, got %v", first, got.StartedAt)
	}
}

func TestConflictHelpers(t *testing.T) {
	if IsConflict(nil) {
		t.Error("Expected nil to not be a conflict")
	}
	if !IsBusy(errors.New("sqlite: step: SQLITE_BUSY")) {
		t.Error("Expected SQLITE_BUSY to be classified busy")
	}
	if !IsLocked(errors.New("database is locked (5)")) {
		t.Error("Expected locked error to be classified locked")
	}
	if IsConflict(errors.New("no such table")) {
		t.Error("Expected an unrelated error to not be a conflict")
	}
}
