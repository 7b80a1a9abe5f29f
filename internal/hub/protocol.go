package hub

import (
	"time"

	"github.com/nebulatel/handoff/internal/domain"
	"github.com/nebulatel/handoff/internal/session"
)

// Frame types pushed to supervisor consoles. Transitions announced by a
// dedicated frame (approval_request, soft_handoff, hard_handoff,
// session_ended) are not repeated as status_change; takeover and approval
// decisions are, because nothing else carries them.
const (
	EventTypeMessage         = "message"
	EventTypeApprovalRequest = "approval_request"
	EventTypeSoftHandoff     = "soft_handoff"
	EventTypeHardHandoff     = "hard_handoff"
	EventTypeStatusChange    = "status_change"
	EventTypeSessionEnded    = "session_ended"
	EventTypeSyncState       = "sync_state"
	EventTypeError           = "error"
)

// Command types accepted from supervisor consoles.
const (
	CommandApprovalResponse = "approval_response"
	CommandTakeoverMessage  = "takeover_message"
	CommandEndSession       = "end_session"
)

// Connection roles in the websocket path.
const (
	roleCustomer   = "customer"
	roleSupervisor = "supervisor"
)

// CustomerFrame is what a customer client sends. The timestamp is optional;
// the hub stamps its own clock when it is missing or unparseable.
type CustomerFrame struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// SentAt parses the client timestamp, zero when absent or malformed.
func (f CustomerFrame) SentAt() time.Time {
	if f.Timestamp == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, f.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Command is one supervisor instruction targeting a session.
type Command struct {
	Type           string `json:"type"`
	TargetClientID string `json:"targetClientId"`
	Approved       bool   `json:"approved,omitempty"`
	Content        string `json:"content,omitempty"`
}

// MessageEvent mirrors one recorded message to every supervisor.
type MessageEvent struct {
	Type      string        `json:"type"`
	ClientID  string        `json:"clientId"`
	Sender    domain.Sender `json:"sender"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
}

func messageEvent(clientID string, msg domain.Message) MessageEvent {
	return MessageEvent{
		Type:      EventTypeMessage,
		ClientID:  clientID,
		Sender:    msg.Sender,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
}

// ApprovalEvent asks supervisors for one yes/no decision.
type ApprovalEvent struct {
	Type     string  `json:"type"`
	ClientID string  `json:"clientId"`
	Amount   float64 `json:"amount"`
	Reason   string  `json:"reason"`
}

// HandoffEvent flags a session for supervisor attention. Sentiment is only
// set on soft handoffs, where a frustration score triggered the flag.
type HandoffEvent struct {
	Type      string  `json:"type"`
	ClientID  string  `json:"clientId"`
	Reason    string  `json:"reason"`
	Sentiment float64 `json:"sentiment,omitempty"`
}

// StatusEvent reports a session's new lifecycle status. Frames sent to the
// session's own customer omit the client id.
type StatusEvent struct {
	Type     string        `json:"type"`
	ClientID string        `json:"clientId,omitempty"`
	Status   domain.Status `json:"status"`
}

// SessionEndedEvent announces an archived session and why it closed.
type SessionEndedEvent struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	Reason   string `json:"reason"`
}

// SyncStateEvent seeds a freshly connected supervisor with every live
// session, so the console starts from the same state the hub holds.
type SyncStateEvent struct {
	Type     string             `json:"type"`
	Sessions []session.Snapshot `json:"sessions"`
}

// ErrorEvent tells one supervisor a command of theirs was rejected.
type ErrorEvent struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId,omitempty"`
	Message  string `json:"message"`
}
