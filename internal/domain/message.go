// Package domain contains the core types shared across the handoff hub:
// conversation messages, session status, approvals, and archive records.
package domain

import (
	"time"
)

// Sender identifies who authored a conversation message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderBot      Sender = "bot"
	SenderAgent    Sender = "agent"
	SenderSystem   Sender = "system"
)

// Message is a single immutable entry in a session conversation.
// Once appended to a session it is never edited or reordered.
type Message struct {
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
