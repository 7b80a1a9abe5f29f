package responder

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TopicRule binds a responder name to the keywords that pull a conversation
// to it. Keywords match as lowercase substrings, so "bill" also catches
// "billing".
type TopicRule struct {
	Responder string   `yaml:"responder"`
	Keywords  []string `yaml:"keywords"`
}

func (t TopicRule) matches(text string) bool {
	return containsAny(text, t.Keywords...)
}

// containsAny reports whether text contains any of the given substrings.
// Callers lowercase text first.
func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Rules drives keyword routing between responders. Topics are checked in
// order and a match always switches, even mid-flow; otherwise the engaged
// responder sticks, and new conversations fall back to FirstContact (when it
// matches) or Default.
type Rules struct {
	Default      string      `yaml:"default"`
	FirstContact *TopicRule  `yaml:"firstContact,omitempty"`
	Topics       []TopicRule `yaml:"topics"`
}

// DefaultRules returns the built-in routing table.
func DefaultRules() Rules {
	return Rules{
		Default: "tech_support",
		FirstContact: &TopicRule{
			Responder: "greeting",
			Keywords:  []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "how are you"},
		},
		Topics: []TopicRule{
			{Responder: "modem_install", Keywords: []string{"install", "modem", "setup", "new modem"}},
			{Responder: "billing", Keywords: []string{"bill", "charge", "credit", "refund", "movie", "rental"}},
			{Responder: "tech_support", Keywords: []string{"internet", "slow", "connection", "wifi", "speed"}},
		},
	}
}

// LoadRules reads a routing table from a YAML file. An empty path returns
// the built-in defaults.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read routing rules: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse routing rules: %w", err)
	}
	if err := rules.validate(); err != nil {
		return Rules{}, fmt.Errorf("routing rules %s: %w", path, err)
	}
	return rules, nil
}

func (r Rules) validate() error {
	if r.Default == "" {
		return errors.New("default responder is required")
	}
	for i, t := range r.Topics {
		if t.Responder == "" {
			return fmt.Errorf("topic %d: responder name is required", i)
		}
		if len(t.Keywords) == 0 {
			return fmt.Errorf("topic %d (%s): at least one keyword is required", i, t.Responder)
		}
	}
	return nil
}

// Route picks the responder name for a message. active is the responder
// currently engaged for the session, empty for a fresh conversation.
func (r Rules) Route(message, active string) string {
	text := strings.ToLower(message)

	for _, t := range r.Topics {
		if t.matches(text) {
			return t.Responder
		}
	}
	if active == "" && r.FirstContact != nil && r.FirstContact.matches(text) {
		return r.FirstContact.Responder
	}
	if active != "" {
		return active
	}
	return r.Default
}
