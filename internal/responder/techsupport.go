package responder

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/nebulatel/handoff/internal/domain"
)

// TechSupportResponder troubleshoots connection problems. Reporting an issue
// queues a remote line check; the next report runs it. The check takes a few
// seconds and honors the context, and its outcome source is injectable so
// tests can force either branch.
type TechSupportResponder struct {
	checkQueued bool
	checkDelay  time.Duration
	checkPasses func() bool
}

// NewTechSupport creates a tech support responder with the real line check
// timing and a random outcome.
func NewTechSupport() Responder {
	return NewTechSupportWithCheck(2*time.Second, func() bool { return rand.IntN(2) == 0 })
}

// NewTechSupportWithCheck creates a tech support responder with a fixed check
// duration and outcome source.
func NewTechSupportWithCheck(delay time.Duration, passes func() bool) Responder {
	return &TechSupportResponder{checkDelay: delay, checkPasses: passes}
}

// Name returns the routing name of the responder.
func (*TechSupportResponder) Name() string { return "tech_support" }

// Respond handles one troubleshooting message. A failed line check carries a
// technician dispatch approval effect.
func (t *TechSupportResponder) Respond(ctx context.Context, message string, _ []domain.Message) (Reply, error) {
	text := strings.ToLower(message)

	if containsAny(text, "internet", "slow", "down", "connection", "wifi", "speed") {
		if strings.Contains(text, "reset") {
			t.checkQueued = false
		}

		if !t.checkQueued {
			t.checkQueued = true
			return Reply{Text: "I'm sorry to hear about your internet issues. Let me run a remote system health check. This will take a few seconds..."}, nil
		}

		t.checkQueued = false
		select {
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		case <-time.After(t.checkDelay):
		}

		if t.checkPasses() {
			return Reply{Text: "Good news! The system check cleared some temporary cache errors on your line. Your internet should be back to normal speed now. Please check it."}, nil
		}
		return Reply{
			Text: "The system check detected a signal degradation that I can't fix remotely. We need to send a technician to your home.",
			Effect: &Effect{
				Kind:   EffectApproval,
				Amount: 0,
				Reason: "Technician Dispatch Required (Signal Degradation)",
			},
		}, nil
	}

	return Reply{Text: "I can help troubleshoot internet connection issues. Are you experiencing problems with your internet?"}, nil
}
