package responder

import (
	"strings"
)

// Escalation detection covers what the rule responders don't: customers who
// explicitly want a person, and customers running out of patience. The
// gateway runs it on every customer message and attaches the resulting
// effect when the responder's own reply carries none.

var humanRequestPhrases = []string{
	"human", "real person", "live agent", "real agent", "agent please",
	"speak to someone", "talk to someone", "representative", "supervisor",
}

var strongFrustrationWords = []string{
	"ridiculous", "unacceptable", "furious", "outraged", "terrible",
	"horrible", "worst", "useless", "fed up",
}

var mildFrustrationWords = []string{
	"frustrated", "frustrating", "annoyed", "annoying", "upset", "angry",
	"sick of", "not happy", "waste of time",
}

// Sentiment scores a message for frustration on a [-1, 0] scale, 0 meaning
// neutral.
func Sentiment(message string) float64 {
	text := strings.ToLower(message)
	score := 0.0
	for _, w := range strongFrustrationWords {
		if strings.Contains(text, w) {
			score -= 0.6
		}
	}
	for _, w := range mildFrustrationWords {
		if strings.Contains(text, w) {
			score -= 0.3
		}
	}
	if score < -1 {
		score = -1
	}
	return score
}

// DetectEscalation returns a handoff effect when the message calls for one.
// An explicit request for a human wins over frustration scoring; one strong
// or two mild frustration signals are enough to flag the session.
func DetectEscalation(message string) *Effect {
	text := strings.ToLower(message)

	if containsAny(text, humanRequestPhrases...) {
		return &Effect{
			Kind:   EffectHardHandoff,
			Reason: "Customer asked for a human agent",
		}
	}

	if score := Sentiment(message); score <= -0.5 {
		return &Effect{
			Kind:      EffectSoftHandoff,
			Reason:    "Customer frustration detected",
			Sentiment: score,
		}
	}
	return nil
}
