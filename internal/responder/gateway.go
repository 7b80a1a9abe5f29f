package responder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nebulatel/handoff/internal/domain"
)

// fallbackReply is sent when a responder fails. The session is left exactly
// as it was, so the next customer message gets a fresh attempt.
const fallbackReply = "I'm sorry, I'm having a little trouble on my end. Could you say that again in a moment?"

// handoffReply replaces the responder's text when the customer asked for a
// human; whatever the routed responder was about to say no longer applies.
const handoffReply = "Of course. Let me connect you with a supervisor, one moment please."

// Result couples a reply with the name of the responder that produced it.
type Result struct {
	Reply     Reply
	Responder string
}

// Gateway owns the automated side of every session: keyword routing,
// per-session responder instances, escalation detection, and failure
// containment. The hub calls Respond without holding any session lock, so a
// slow responder stalls only its own conversation.
type Gateway struct {
	mu        sync.Mutex
	rules     Rules
	factories map[string]Factory
	engaged   map[string]string               // client id -> engaged responder name
	instances map[string]map[string]Responder // client id -> responder name -> instance
}

// NewGateway creates a gateway with the given routing rules and no
// responders registered yet.
func NewGateway(rules Rules) *Gateway {
	return &Gateway{
		rules:     rules,
		factories: make(map[string]Factory),
		engaged:   make(map[string]string),
		instances: make(map[string]map[string]Responder),
	}
}

// Register adds a responder factory under its routing name.
func (g *Gateway) Register(name string, factory Factory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.factories[name] = factory
}

// Engaged returns the responder name currently engaged for the session,
// empty for a fresh conversation.
func (g *Gateway) Engaged(clientID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engaged[clientID]
}

// Respond routes the message, lets the session's own instance of the chosen
// responder answer, and attaches a detected escalation when the reply carries
// no effect of its own. A responder error or panic turns into the fallback
// apology with the session state untouched.
func (g *Gateway) Respond(ctx context.Context, clientID, message string, history []domain.Message) Result {
	name, inst := g.resolve(clientID, message)
	if inst == nil {
		slog.Error("no responder registered", "client_id", clientID, "responder", name)
		return Result{Responder: name, Reply: Reply{Text: fallbackReply}}
	}

	reply, err := g.invoke(ctx, inst, message, history)
	if err != nil {
		slog.Error("responder failed", "client_id", clientID, "responder", name, "error", err)
		return Result{Responder: name, Reply: Reply{Text: fallbackReply}}
	}

	if reply.Effect == nil {
		reply.Effect = DetectEscalation(message)
		if reply.Effect != nil && reply.Effect.Kind == EffectHardHandoff {
			reply.Text = handoffReply
		}
	}
	return Result{Responder: name, Reply: reply}
}

// resolve picks the responder for the message and returns the session's
// instance of it, creating one on first use.
func (g *Gateway) resolve(clientID, message string) (string, Responder) {
	g.mu.Lock()
	defer g.mu.Unlock()

	name := g.rules.Route(message, g.engaged[clientID])
	factory, ok := g.factories[name]
	if !ok {
		// A rules file can name a responder nobody registered; fall back to
		// the default instead of going silent.
		name = g.rules.Default
		if factory, ok = g.factories[name]; !ok {
			return name, nil
		}
	}

	byName := g.instances[clientID]
	if byName == nil {
		byName = make(map[string]Responder)
		g.instances[clientID] = byName
	}
	inst, ok := byName[name]
	if !ok {
		inst = factory()
		byName[name] = inst
	}
	g.engaged[clientID] = name
	return name, inst
}

// invoke shields the hub from responder panics.
func (g *Gateway) invoke(ctx context.Context, inst Responder, message string, history []domain.Message) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("responder panic: %v", r)
		}
	}()
	return inst.Respond(ctx, message, history)
}

// Release drops the session's responder instances and routing state. The hub
// calls it when the session is archived.
func (g *Gateway) Release(clientID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.engaged, clientID)
	delete(g.instances, clientID)
}
