package hub

import (
	"log/slog"
	"strconv"

	"github.com/nebulatel/handoff/internal/domain"
	"github.com/nebulatel/handoff/internal/transcript"
)

// RequestApproval installs the session's pending approval, suspends
// automation, and asks every supervisor console for one yes/no decision. A
// session can hold at most one pending approval; a second request fails.
func (h *Hub) RequestApproval(clientID string, amount float64, reason string) error {
	req, err := h.registry.SetApproval(clientID, amount, reason)
	if err != nil {
		return err
	}

	slog.Info("Approval requested", "client_id", clientID, "amount", amount, "reason", reason)
	h.translog.Log(transcript.Event{
		ClientID:  clientID,
		EventType: transcript.EventApprovalRequest,
		Content:   reason,
		Meta:      map[string]string{"amount": strconv.FormatFloat(amount, 'f', 2, 64)},
	})
	h.caster.ToSupervisors(ApprovalEvent{Type: EventTypeApprovalRequest, ClientID: req.ClientID, Amount: req.Amount, Reason: req.Reason})
	h.caster.ToCustomer(clientID, StatusEvent{Type: EventTypeStatusChange, Status: domain.StatusHardHandoff})
	return nil
}

// DecideApproval resolves the pending approval. The registry arbitrates
// racing decisions so exactly one caller wins; the winner reverts the session
// to plain automation and tells the customer how it went. The revert applies
// whatever the session's status was when the decision landed.
func (h *Hub) DecideApproval(clientID string, approved bool) error {
	req, err := h.registry.ClearApproval(clientID)
	if err != nil {
		return err
	}

	outcome := declinedText
	if approved {
		outcome = approvedText
	}
	slog.Info("Approval decided", "client_id", clientID, "approved", approved, "amount", req.Amount, "reason", req.Reason)
	h.translog.Log(transcript.Event{
		ClientID:  clientID,
		EventType: transcript.EventApprovalDecided,
		Content:   req.Reason,
		Meta:      map[string]string{"approved": strconv.FormatBool(approved)},
	})

	h.deliverSystem(clientID, outcome)
	h.caster.ToCustomer(clientID, StatusEvent{Type: EventTypeStatusChange, Status: domain.StatusBotOnly})
	h.caster.ToSupervisors(StatusEvent{Type: EventTypeStatusChange, ClientID: clientID, Status: domain.StatusBotOnly})
	return nil
}
