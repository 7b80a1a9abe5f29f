package domain

import (
	"time"
)

// CloseReason records why a session left the live registry.
type CloseReason string

const (
	// CloseAgentClosed means a supervisor explicitly ended the session.
	CloseAgentClosed CloseReason = "agent_closed"
	// CloseInactivity means the reaper archived an idle automated session.
	CloseInactivity CloseReason = "inactivity"
)

// Archive is the durable record of a finished session. ID equals the client
// id, so re-archiving the same session supersedes the earlier record.
type Archive struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId"`
	StartedAt time.Time `json:"startTime"`
	EndedAt   time.Time `json:"endTime"`
	Status    string    `json:"status"`
	Messages  []Message `json:"messages,omitempty"`
}
