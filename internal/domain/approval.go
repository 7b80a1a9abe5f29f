package domain

import (
	"time"
)

// ApprovalRequest is a pending request for supervisor sign-off on a risky
// action such as issuing a credit or dispatching a technician. A session
// carries at most one pending request at a time.
type ApprovalRequest struct {
	ClientID    string    `json:"clientId"`
	Amount      float64   `json:"amount"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requestedAt"`
}
