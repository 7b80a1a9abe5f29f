// Package responder implements the automated side of the conversation: a set
// of rule-driven responders, keyword routing between them, and the gateway
// that owns per-session responder instances.
package responder

import (
	"context"

	"github.com/nebulatel/handoff/internal/domain"
)

// EffectKind categorizes the side effects a reply can carry.
type EffectKind string

const (
	// EffectApproval asks a supervisor to sign off on a risky action.
	EffectApproval EffectKind = "approval_required"
	// EffectSoftHandoff flags the session for supervisor attention while
	// automation keeps answering.
	EffectSoftHandoff EffectKind = "soft_handoff"
	// EffectHardHandoff suspends automation until a supervisor steps in.
	EffectHardHandoff EffectKind = "hard_handoff"
)

// Effect is an optional action a reply asks the hub to carry out. The hub
// interprets effects uniformly and never branches on which responder
// produced one.
type Effect struct {
	Kind      EffectKind
	Amount    float64
	Reason    string
	Sentiment float64
}

// Reply is a responder's answer to a single customer message.
type Reply struct {
	Text   string
	Effect *Effect
}

// Responder produces replies for one session's customer messages. An
// implementation may keep in-flow state between messages; the gateway
// creates a separate instance per session, so that state never leaks
// across conversations.
type Responder interface {
	// Name returns the routing name of the responder.
	Name() string

	// Respond answers one customer message given the conversation so far.
	Respond(ctx context.Context, message string, history []domain.Message) (Reply, error)
}

// Factory creates a fresh responder instance for a session.
type Factory func() Responder
