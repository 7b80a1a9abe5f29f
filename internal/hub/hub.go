// Package hub multiplexes customer and supervisor websockets over the shared
// session registry. It records every message exactly once, mirrors traffic to
// supervisor consoles, runs the approval workflow, and archives sessions when
// they end.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/nebulatel/handoff/internal/domain"
	"github.com/nebulatel/handoff/internal/responder"
	"github.com/nebulatel/handoff/internal/session"
	"github.com/nebulatel/handoff/internal/store"
	"github.com/nebulatel/handoff/internal/transcript"
)

// System messages the hub injects into conversations.
const (
	awaitingSupervisorText = "Waiting for supervisor approval..."
	agentJoinedText        = "Agent has joined the chat."
	approvedText           = "Supervisor approved your request."
	declinedText           = "Supervisor declined your request."
)

// Hub wires customer and supervisor connections to the shared session state.
// All conversation mutations flow through it, one per-session lock at a time.
type Hub struct {
	registry *session.Registry
	gateway  *responder.Gateway
	repo     store.Repository
	caster   *Broadcaster
	translog transcript.Logger

	// lifecycle outlives individual connections; responder calls and archive
	// writes run on it so a dropped socket cannot cancel them.
	lifecycle context.Context

	// ordered serializes append+fan-out per session, keeping delivery order
	// identical to conversation order for every observer.
	ordered sync.Map // client id -> *sync.Mutex

	allowedOrigin string
	isDev         bool
}

// New creates the hub. ctx bounds background work and should live as long as
// the server.
func New(ctx context.Context, registry *session.Registry, gateway *responder.Gateway, repo store.Repository, translog transcript.Logger, allowedOrigin string, isDev bool) *Hub {
	return &Hub{
		registry:      registry,
		gateway:       gateway,
		repo:          repo,
		caster:        NewBroadcaster(),
		translog:      translog,
		lifecycle:     ctx,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// Broadcaster exposes the fan-out layer, mainly so the server can close every
// socket on shutdown.
func (h *Hub) Broadcaster() *Broadcaster {
	return h.caster
}

// ServeHTTP upgrades /ws/{clientID}/{role} and runs the matching serve loop
// until the peer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	role := chi.URLParam(r, "role")
	if role == "agent" { // older consoles connect with the agent role
		role = roleSupervisor
	}
	if clientID == "" || (role != roleCustomer && role != roleSupervisor) {
		http.Error(w, "Unknown connection role", http.StatusBadRequest)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "Forbidden origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // origin enforced above
	})
	if err != nil {
		slog.Error("WebSocket upgrade failed", "client_id", clientID, "role", role, "error", err)
		return
	}
	defer func() {
		if err := conn.Close(websocket.StatusNormalClosure, "session ended"); err != nil {
			slog.Debug("WebSocket close error", "client_id", clientID, "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slog.Info("WebSocket connected", "client_id", clientID, "role", role)
	if role == roleCustomer {
		h.serveCustomer(ctx, conn, clientID)
	} else {
		h.serveSupervisor(ctx, conn)
	}
	slog.Info("WebSocket disconnected", "client_id", clientID, "role", role)
}

// checkOrigin enforces the configured frontend origin outside development.
func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Rejected WebSocket origin", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// serveCustomer replays the session to a (re)connecting customer, registers
// the socket for live delivery, and pumps inbound frames. Replay runs under
// the session's order lock so no live frame can interleave with it.
func (h *Hub) serveCustomer(ctx context.Context, conn *websocket.Conn, clientID string) {
	mu := h.orderLock(clientID)
	mu.Lock()
	snap, created := h.registry.CreateOrGet(clientID)
	replayErr := h.replay(ctx, conn, snap)
	h.caster.RegisterCustomer(ctx, clientID, conn)
	mu.Unlock()

	defer h.caster.UnregisterCustomer(clientID, conn)

	if replayErr != nil {
		slog.Warn("History replay failed", "client_id", clientID, "error", replayErr)
		return
	}
	if created {
		slog.Info("Session started", "client_id", clientID)
	} else {
		slog.Info("Customer rejoined session", "client_id", clientID, "messages", len(snap.Messages), "status", snap.Status)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Customer closed connection", "client_id", clientID)
			} else {
				slog.Warn("Customer read error", "client_id", clientID, "error", err)
			}
			return
		}
		var frame CustomerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Debug("Ignoring malformed customer frame", "client_id", clientID, "error", err)
			continue
		}
		h.handleCustomerMessage(clientID, frame)
	}
}

// replay streams the stored conversation, then the current status when it is
// anything but plain automation.
func (h *Hub) replay(ctx context.Context, conn *websocket.Conn, snap session.Snapshot) error {
	for _, msg := range snap.Messages {
		if err := writeJSON(ctx, conn, msg); err != nil {
			return err
		}
	}
	if snap.Status != domain.StatusBotOnly {
		return writeJSON(ctx, conn, StatusEvent{Type: EventTypeStatusChange, Status: snap.Status})
	}
	return nil
}

// handleCustomerMessage records one inbound message and decides who answers:
// the responder, the awaiting-supervisor acknowledgement, or nobody while a
// human agent owns the conversation.
func (h *Hub) handleCustomerMessage(clientID string, frame CustomerFrame) {
	content := strings.TrimSpace(frame.Content)
	if content == "" {
		return
	}

	// A session the reaper archived restarts on fresh activity.
	h.registry.CreateOrGet(clientID)

	msg := domain.Message{Sender: domain.SenderCustomer, Content: content, Timestamp: frame.SentAt()}
	if _, err := h.record(clientID, msg); err != nil {
		slog.Error("Failed to record customer message", "client_id", clientID, "error", err)
		return
	}

	status, err := h.registry.Status(clientID)
	if err != nil {
		return
	}
	switch {
	case status == domain.StatusHardHandoff:
		h.deliverSystem(clientID, awaitingSupervisorText)
	case status == domain.StatusAgentActive:
		// The supervisor authors replies now.
	case status.Automated():
		h.respond(clientID, content)
	}
}

// respond runs the automated side of the conversation. It is called from the
// customer's read goroutine with the hub's lifecycle context, so a dropped
// socket does not cancel work in flight; the reply still lands in the history
// and replays on reconnect.
func (h *Hub) respond(clientID, content string) {
	history, err := h.registry.History(clientID)
	if err != nil {
		return
	}
	res := h.gateway.Respond(h.lifecycle, clientID, content, history)

	// The session may have moved on while the responder was thinking.
	status, err := h.registry.Status(clientID)
	if err != nil {
		slog.Debug("Discarding reply for archived session", "client_id", clientID, "responder", res.Responder)
		return
	}
	if !status.Automated() {
		slog.Debug("Discarding superseded reply", "client_id", clientID, "status", status)
		return
	}

	if res.Reply.Text != "" {
		bot := domain.Message{Sender: domain.SenderBot, Content: res.Reply.Text}
		if _, err := h.record(clientID, bot); err != nil {
			return
		}
	}
	if res.Reply.Effect != nil {
		h.applyEffect(clientID, *res.Reply.Effect)
	}
}

// applyEffect turns a responder side effect into registry and wire state.
func (h *Hub) applyEffect(clientID string, eff responder.Effect) {
	switch eff.Kind {
	case responder.EffectApproval:
		if err := h.RequestApproval(clientID, eff.Amount, eff.Reason); err != nil {
			slog.Warn("Approval request rejected", "client_id", clientID, "reason", eff.Reason, "error", err)
		}
	case responder.EffectSoftHandoff:
		changed, err := h.registry.Escalate(clientID, domain.StatusSoftHandoff)
		if err != nil || !changed {
			return
		}
		slog.Info("Soft handoff", "client_id", clientID, "reason", eff.Reason, "sentiment", eff.Sentiment)
		h.caster.ToSupervisors(HandoffEvent{Type: EventTypeSoftHandoff, ClientID: clientID, Reason: eff.Reason, Sentiment: eff.Sentiment})
	case responder.EffectHardHandoff:
		changed, err := h.registry.Escalate(clientID, domain.StatusHardHandoff)
		if err != nil || !changed {
			return
		}
		slog.Info("Hard handoff", "client_id", clientID, "reason", eff.Reason)
		h.caster.ToSupervisors(HandoffEvent{Type: EventTypeHardHandoff, ClientID: clientID, Reason: eff.Reason})
		h.caster.ToCustomer(clientID, StatusEvent{Type: EventTypeStatusChange, Status: domain.StatusHardHandoff})
	default:
		slog.Warn("Unknown responder effect", "client_id", clientID, "kind", eff.Kind)
	}
}

// deliverSystem records a hub-authored system message; record delivers it to
// the customer and mirrors it to supervisors.
func (h *Hub) deliverSystem(clientID, text string) {
	msg := domain.Message{Sender: domain.SenderSystem, Content: text}
	if _, err := h.record(clientID, msg); err != nil {
		slog.Warn("Failed to record system message", "client_id", clientID, "error", err)
	}
}

// record appends one message under the session's order lock and delivers it:
// transcript, supervisor mirror, and the customer socket for anything the
// customer did not author themselves.
func (h *Hub) record(clientID string, msg domain.Message) (domain.Message, error) {
	mu := h.orderLock(clientID)
	mu.Lock()
	defer mu.Unlock()

	stamped, err := h.registry.Append(clientID, msg)
	if err != nil {
		return domain.Message{}, err
	}
	h.translog.Log(transcript.Event{
		Timestamp: stamped.Timestamp,
		ClientID:  clientID,
		EventType: transcript.EventMessage,
		Sender:    string(stamped.Sender),
		Content:   stamped.Content,
	})
	h.caster.ToSupervisors(messageEvent(clientID, stamped))
	if stamped.Sender != domain.SenderCustomer {
		h.caster.ToCustomer(clientID, stamped)
	}
	return stamped, nil
}

// orderLock returns the session's append+fan-out lock, creating it on first
// use. record and replay both take it; handlers never hold two at once.
func (h *Hub) orderLock(clientID string) *sync.Mutex {
	v, _ := h.ordered.LoadOrStore(clientID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// writeJSON writes one frame directly on the socket, bypassing the
// broadcaster queues. Only used before a connection is registered.
func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
