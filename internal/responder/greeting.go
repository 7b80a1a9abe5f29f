package responder

import (
	"context"
	"strings"

	"github.com/nebulatel/handoff/internal/domain"
)

// GreetingResponder handles first-contact pleasantries, small talk, and the
// capability menu. It is stateless, so one instance per session is just a
// convention here.
type GreetingResponder struct{}

// NewGreeting creates a greeting responder.
func NewGreeting() Responder {
	return &GreetingResponder{}
}

// Name returns the routing name of the responder.
func (GreetingResponder) Name() string { return "greeting" }

// Respond answers greetings and small talk; anything topical has already
// been routed elsewhere.
func (GreetingResponder) Respond(_ context.Context, message string, _ []domain.Message) (Reply, error) {
	text := strings.ToLower(message)

	switch {
	case containsAny(text, "bye", "goodbye", "see you", "later"):
		return Reply{Text: "Goodbye! Have a great day! Feel free to come back anytime you need assistance."}, nil
	case containsAny(text, "thank", "appreciate"):
		return Reply{Text: "You're very welcome! Is there anything else I can help you with today?"}, nil
	case containsAny(text, "how are you", "how's it going", "what's up", "how do you do"):
		return Reply{Text: "I'm doing great, thank you for asking! I'm here and ready to help with any questions about your service. What can I assist you with?"}, nil
	case containsAny(text, "help", "menu", "options"):
		return Reply{Text: "I can assist you with:\n\n- Modem installation: say 'install modem' for step-by-step setup\n- Billing questions: ask about charges, credits, or your bill\n- Tech support: report internet issues or slow speeds\n\nJust let me know what you need!"}, nil
	case containsAny(text, "hi", "hello", "hey", "good morning", "good afternoon", "good evening"):
		return Reply{Text: "Hello! Welcome to Nebula Assistant. I can help with modem installation, billing questions, and internet troubleshooting. What can I help you with today?"}, nil
	}
	return Reply{Text: "I'm here to help! You can ask me about modem installation, billing questions, or internet troubleshooting. What would you like help with?"}, nil
}
