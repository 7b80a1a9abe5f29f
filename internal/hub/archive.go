package hub

import (
	"context"
	"log/slog"
	"time"

	"github.com/nebulatel/handoff/internal/domain"
	"github.com/nebulatel/handoff/internal/session"
	"github.com/nebulatel/handoff/internal/store"
	"github.com/nebulatel/handoff/internal/transcript"
)

const (
	archiveMaxRetries = 3
	archiveRetryDelay = 100 * time.Millisecond
)

// EndSession removes the session and archives its conversation. Ending an
// unknown or already archived session is a no-op, so racing closers and
// repeated commands are harmless.
func (h *Hub) EndSession(ctx context.Context, clientID string, reason domain.CloseReason) error {
	snap, err := h.registry.Remove(clientID)
	if err != nil {
		slog.Debug("End session skipped", "client_id", clientID, "error", err)
		return nil
	}
	h.archiveRemoved(ctx, snap, reason)
	return nil
}

// archiveRemoved persists a session already removed from the registry and
// announces the closure. Removal happens exactly once per session, so this
// path cannot run twice for the same conversation.
func (h *Hub) archiveRemoved(ctx context.Context, snap session.Snapshot, reason domain.CloseReason) {
	h.gateway.Release(snap.ClientID)

	archive := domain.Archive{
		ID:       snap.ClientID,
		ClientID: snap.ClientID,
		EndedAt:  time.Now(),
		Status:   string(reason),
		Messages: snap.Messages,
	}
	// A conversation starts at its first message, which may carry a
	// client-supplied timestamp older than the connection. Silent sessions
	// keep a zero start and the store stamps them at save time.
	if len(snap.Messages) > 0 {
		archive.StartedAt = snap.Messages[0].Timestamp
	}
	if err := h.saveArchiveWithRetry(ctx, archive); err != nil {
		// The conversation is gone from memory; log loudly and move on, the
		// rest of the hub is unaffected.
		slog.Error("Failed to archive session", "client_id", snap.ClientID, "messages", len(snap.Messages), "error", err)
	} else {
		slog.Info("Session archived", "client_id", snap.ClientID, "reason", reason, "messages", len(snap.Messages))
	}

	h.translog.Log(transcript.Event{
		ClientID:  snap.ClientID,
		EventType: transcript.EventSessionEnded,
		Meta:      map[string]string{"reason": string(reason)},
	})
	h.caster.ToSupervisors(SessionEndedEvent{Type: EventTypeSessionEnded, ClientID: snap.ClientID, Reason: string(reason)})
	// The customer socket stays open; their next message starts a fresh
	// session.
	h.caster.ToCustomer(snap.ClientID, StatusEvent{Type: EventTypeStatusChange, Status: domain.StatusEnded})
	h.ordered.Delete(snap.ClientID)
}

// saveArchiveWithRetry retries writes that lost a storage lock race; SQLite
// reports those as busy/locked and they clear quickly.
func (h *Hub) saveArchiveWithRetry(ctx context.Context, archive domain.Archive) error {
	var err error
	for i := 0; i < archiveMaxRetries; i++ {
		err = h.repo.SaveArchive(ctx, archive)
		if err == nil {
			return nil
		}
		if !store.IsConflict(err) {
			return err
		}
		delay := archiveRetryDelay * time.Duration(1<<i)
		slog.Debug("Archive write conflicted, retrying", "client_id", archive.ClientID, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
