package domain

// Status is the lifecycle state of a live session. Transitions are driven by
// events (escalations, approvals, takeovers, archiving), never by arbitrary
// assignment, and nothing leaves StatusEnded.
type Status string

const (
	StatusBotOnly     Status = "bot_only"
	StatusSoftHandoff Status = "soft_handoff"
	StatusHardHandoff Status = "hard_handoff"
	StatusAgentActive Status = "agent_active"
	StatusEnded       Status = "ended"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusEnded
}

// Automated reports whether the automated responder still answers customer
// messages in this status. In StatusHardHandoff automation is suspended until
// a supervisor acts; in StatusAgentActive a human authors the replies.
func (s Status) Automated() bool {
	return s == StatusBotOnly || s == StatusSoftHandoff
}

// Valid reports whether s is one of the recognized lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusBotOnly, StatusSoftHandoff, StatusHardHandoff, StatusAgentActive, StatusEnded:
		return true
	}
	return false
}
