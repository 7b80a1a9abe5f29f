package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/coder/websocket"

	"github.com/nebulatel/handoff/internal/domain"
)

// serveSupervisor registers the console, seeds it with a full state snapshot,
// and pumps commands until it disconnects. The snapshot is taken after
// registration so no event can fall between the two: a frame fanned out in
// that window is delivered ahead of the sync and also included in it, never
// lost.
func (h *Hub) serveSupervisor(ctx context.Context, conn *websocket.Conn) {
	id := h.caster.RegisterSupervisor(ctx, conn)
	defer h.caster.UnregisterSupervisor(id)

	h.caster.ToSupervisor(id, SyncStateEvent{Type: EventTypeSyncState, Sessions: h.registry.SnapshotAll()})
	slog.Info("Supervisor console online", "subscription_id", id, "consoles", h.caster.SupervisorCount())

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Supervisor closed connection", "subscription_id", id)
			} else {
				slog.Warn("Supervisor read error", "subscription_id", id, "error", err)
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.caster.ToSupervisor(id, ErrorEvent{Type: EventTypeError, Message: "malformed command"})
			continue
		}
		h.dispatch(id, cmd)
	}
}

// dispatch executes one supervisor command. A rejection goes back to the
// issuing console only; nothing else sees it.
func (h *Hub) dispatch(subID string, cmd Command) {
	var err error
	switch cmd.Type {
	case CommandApprovalResponse:
		err = h.DecideApproval(cmd.TargetClientID, cmd.Approved)
	case CommandTakeoverMessage:
		err = h.Takeover(cmd.TargetClientID, cmd.Content)
	case CommandEndSession:
		err = h.EndSession(h.lifecycle, cmd.TargetClientID, domain.CloseAgentClosed)
	default:
		err = errors.New("unknown command type: " + cmd.Type)
	}
	if err != nil {
		slog.Warn("Supervisor command rejected", "subscription_id", subID, "command", cmd.Type, "client_id", cmd.TargetClientID, "error", err)
		h.caster.ToSupervisor(subID, ErrorEvent{Type: EventTypeError, ClientID: cmd.TargetClientID, Message: err.Error()})
	}
}

// Takeover records a supervisor-authored message. The first takeover in a
// session moves it to agent_active and announces the join exactly once;
// later messages just flow.
func (h *Hub) Takeover(clientID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("empty takeover message")
	}

	changed, err := h.registry.SetStatus(clientID, domain.StatusAgentActive)
	if err != nil {
		return err
	}
	if changed {
		slog.Info("Supervisor takeover", "client_id", clientID)
		h.deliverSystem(clientID, agentJoinedText)
		h.caster.ToCustomer(clientID, StatusEvent{Type: EventTypeStatusChange, Status: domain.StatusAgentActive})
		h.caster.ToSupervisors(StatusEvent{Type: EventTypeStatusChange, ClientID: clientID, Status: domain.StatusAgentActive})
	}

	_, err = h.record(clientID, domain.Message{Sender: domain.SenderAgent, Content: content})
	return err
}
