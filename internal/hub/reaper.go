package hub

import (
	"context"
	"log/slog"
	"time"

	"github.com/nebulatel/handoff/internal/domain"
)

// StartReaper launches the background sweep that archives bot-only sessions
// idle past the threshold. It returns immediately; the goroutine stops when
// ctx is cancelled.
func StartReaper(ctx context.Context, h *Hub, interval, idleAfter time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("Inactivity reaper started", "interval", interval, "idle_after", idleAfter)
		for {
			select {
			case <-ticker.C:
				h.reapIdle(ctx, idleAfter)
			case <-ctx.Done():
				slog.Info("Inactivity reaper stopped", "reason", ctx.Err())
				return
			}
		}
	}()
}

// reapIdle archives every session that was idle at sweep time and is still
// idle at removal. Only fully automated sessions qualify; anything a
// supervisor touched waits for a human to close it.
func (h *Hub) reapIdle(ctx context.Context, idleAfter time.Duration) {
	cutoff := time.Now().Add(-idleAfter)
	ids := h.registry.IdleBefore(cutoff)
	if len(ids) == 0 {
		return
	}

	slog.Info("Reaping idle sessions", "count", len(ids))
	for _, clientID := range ids {
		snap, err := h.registry.RemoveIdle(clientID, cutoff)
		if err != nil {
			// Fresh activity or a handoff between sweep and removal keeps
			// the session alive.
			slog.Debug("Session no longer idle, skipping", "client_id", clientID, "error", err)
			continue
		}
		h.archiveRemoved(ctx, snap, domain.CloseInactivity)
	}
}
