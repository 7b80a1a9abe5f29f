package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nebulatel/handoff/internal/domain"
)

func TestRegistry_CreateOrGet(t *testing.T) {
	r := NewRegistry()

	snap, created := r.CreateOrGet("client-1")
	if !created {
		t.Error("Expected first CreateOrGet to create the session")
	}
	if snap.Status != domain.StatusBotOnly {
		t.Errorf("Expected initial status bot_only, got %s", snap.Status)
	}

	_, created = r.CreateOrGet("client-1")
	if created {
		t.Error("Expected second CreateOrGet to find the existing session")
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 live session, got %d", r.Len())
	}
}

func TestRegistry_Append(t *testing.T) {
	r := NewRegistry()
	r.CreateOrGet("client-1")

	stamped, err := r.Append("client-1", domain.Message{Sender: domain.SenderCustomer, Content: "hello"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if stamped.Timestamp.IsZero() {
		t.Error("Expected a zero timestamp to be stamped with the server clock")
	}

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stamped, err = r.Append("client-1", domain.Message{Sender: domain.SenderBot, Content: "hi", Timestamp: ts})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if !stamped.Timestamp.Equal(ts) {
		t.Errorf("Expected provided timestamp to be preserved, got %v", stamped.Timestamp)
	}

	history, err := r.History("client-1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(history))
	}
	if history[0].Content != "hello" || history[1].Content != "hi" {
		t.Errorf("Expected history in append order, got %q then %q", history[0].Content, history[1].Content)
	}

	if _, err := r.Append("ghost", domain.Message{Content: "x"}); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession for unknown client, got %v", err)
	}
	if _, err := r.History("ghost"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession for unknown history, got %v", err)
	}
}

func TestRegistry_ApprovalLifecycle(t *testing.T) {
	r := NewRegistry()
	r.CreateOrGet("client-1")

	req, err := r.SetApproval("client-1", 14.99, "Movie Rental Dispute")
	if err != nil {
		t.Fatalf("SetApproval failed: %v", err)
	}
	if req.Amount != 14.99 || req.ClientID != "client-1" {
		t.Errorf("Unexpected approval request: %+v", req)
	}

	status, _ := r.Status("client-1")
	if status != domain.StatusHardHandoff {
		t.Errorf("Expected status hard_handoff while approval pending, got %s", status)
	}

	snap, _ := r.Snapshot("client-1")
	if snap.Pending == nil || snap.Pending.Reason != "Movie Rental Dispute" {
		t.Errorf("Expected pending approval in snapshot, got %+v", snap.Pending)
	}

	if _, err := r.SetApproval("client-1", 5, "second"); !errors.Is(err, ErrApprovalPending) {
		t.Errorf("Expected ErrApprovalPending for second request, got %v", err)
	}

	cleared, err := r.ClearApproval("client-1")
	if err != nil {
		t.Fatalf("ClearApproval failed: %v", err)
	}
	if cleared.Reason != "Movie Rental Dispute" {
		t.Errorf("Expected the original request back, got %+v", cleared)
	}

	status, _ = r.Status("client-1")
	if status != domain.StatusBotOnly {
		t.Errorf("Expected status to revert to bot_only after decision, got %s", status)
	}

	if _, err := r.ClearApproval("client-1"); !errors.Is(err, ErrNoPendingApproval) {
		t.Errorf("Expected ErrNoPendingApproval after clear, got %v", err)
	}
}

func TestRegistry_ClearApprovalExactlyOnce(t *testing.T) {
	r := NewRegistry()
	r.CreateOrGet("client-1")
	if _, err := r.SetApproval("client-1", 15, "Customer request"); err != nil {
		t.Fatalf("SetApproval failed: %v", err)
	}

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.ClearApproval("client-1"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Errorf("Expected exactly one racer to clear the approval, got %d", won)
	}
}

func TestRegistry_SetStatus(t *testing.T) {
	r := NewRegistry()
	r.CreateOrGet("client-1")

	changed, err := r.SetStatus("client-1", domain.StatusAgentActive)
	if err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if !changed {
		t.Error("Expected status change to be reported")
	}

	changed, err = r.SetStatus("client-1", domain.StatusAgentActive)
	if err != nil || changed {
		t.Errorf("Expected no-op for same status, got changed=%v err=%v", changed, err)
	}

	if _, err := r.SetStatus("client-1", "half_handoff"); err == nil {
		t.Error("Expected error for unrecognized status value")
	}

	if _, err := r.SetStatus("client-1", domain.StatusEnded); err != nil {
		t.Fatalf("SetStatus to ended failed: %v", err)
	}
	if _, err := r.SetStatus("client-1", domain.StatusBotOnly); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("Expected ErrSessionEnded once ended, got %v", err)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.CreateOrGet("client-1")
	r.Append("client-1", domain.Message{Sender: domain.SenderCustomer, Content: "bye"})

	snap, err := r.Remove("client-1")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if snap.Status != domain.StatusEnded {
		t.Errorf("Expected final snapshot status ended, got %s", snap.Status)
	}
	if len(snap.Messages) != 1 {
		t.Errorf("Expected final snapshot to carry the conversation, got %d messages", len(snap.Messages))
	}

	if _, err := r.Remove("client-1"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession on repeat removal, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d sessions", r.Len())
	}
}

func TestRegistry_IdleBefore(t *testing.T) {
	r := NewRegistry()
	r.CreateOrGet("idle-bot")
	r.CreateOrGet("taken-over")
	r.SetStatus("taken-over", domain.StatusAgentActive)
	r.CreateOrGet("awaiting")
	r.SetApproval("awaiting", 0, "Technician Dispatch Required")

	// A cutoff in the future makes every session old enough; only the
	// bot-only one may be reaped.
	ids := r.IdleBefore(time.Now().Add(time.Hour))
	if len(ids) != 1 || ids[0] != "idle-bot" {
		t.Errorf("Expected only the bot-only session to be idle, got %v", ids)
	}

	ids = r.IdleBefore(time.Now().Add(-time.Hour))
	if len(ids) != 0 {
		t.Errorf("Expected no sessions idle before a past cutoff, got %v", ids)
	}
}

func TestRegistry_Escalate(t *testing.T) {
	r := NewRegistry()
	r.CreateOrGet("client-1")

	changed, err := r.Escalate("client-1", domain.StatusSoftHandoff)
	if err != nil || !changed {
		t.Fatalf("Expected escalation to soft handoff, got changed=%v err=%v", changed, err)
	}
	changed, err = r.Escalate("client-1", domain.StatusHardHandoff)
	if err != nil || !changed {
		t.Fatalf("Expected escalation to hard handoff, got changed=%v err=%v", changed, err)
	}

	// Escalation never moves a session backward.
	changed, err = r.Escalate("client-1", domain.StatusSoftHandoff)
	if err != nil {
		t.Fatalf("Escalate returned error: %v", err)
	}
	if changed {
		t.Error("Expected backward escalation to be absorbed")
	}
	if st, _ := r.Status("client-1"); st != domain.StatusHardHandoff {
		t.Errorf("Expected status to stay hard_handoff, got %s", st)
	}

	// An agent in the chat outranks any automated escalation.
	r.SetStatus("client-1", domain.StatusAgentActive)
	changed, _ = r.Escalate("client-1", domain.StatusHardHandoff)
	if changed {
		t.Error("Expected escalation to lose against an active agent")
	}

	if _, err := r.Escalate("client-1", domain.StatusAgentActive); err == nil {
		t.Error("Expected error escalating to a non-handoff status")
	}
	if _, err := r.Escalate("ghost", domain.StatusSoftHandoff); err != ErrUnknownSession {
		t.Errorf("Expected ErrUnknownSession, got %v", err)
	}
}

func TestRegistry_RemoveIdle(t *testing.T) {
	r := NewRegistry()
	r.CreateOrGet("quiet")
	r.CreateOrGet("busy")
	r.SetStatus("busy", domain.StatusAgentActive)

	snap, err := r.RemoveIdle("quiet", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RemoveIdle returned error: %v", err)
	}
	if snap.Status != domain.StatusEnded {
		t.Errorf("Expected final snapshot status ended, got %s", snap.Status)
	}

	// A session a supervisor touched is never reaped, whatever its age.
	if _, err := r.RemoveIdle("busy", time.Now().Add(time.Hour)); err != ErrSessionActive {
		t.Errorf("Expected ErrSessionActive, got %v", err)
	}
	// Fresh activity keeps a bot-only session alive.
	r.CreateOrGet("fresh")
	if _, err := r.RemoveIdle("fresh", time.Now().Add(-time.Hour)); err != ErrSessionActive {
		t.Errorf("Expected ErrSessionActive for a fresh session, got %v", err)
	}
	if _, err := r.RemoveIdle("ghost", time.Now()); err != ErrUnknownSession {
		t.Errorf("Expected ErrUnknownSession, got %v", err)
	}
}

func TestRegistry_SnapshotAll(t *testing.T) {
	r := NewRegistry()
	r.CreateOrGet("zeta")
	time.Sleep(10 * time.Millisecond)
	r.CreateOrGet("alpha")
	r.Append("alpha", domain.Message{Sender: domain.SenderCustomer, Content: "hi"})

	snaps := r.SnapshotAll()
	if len(snaps) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].ClientID != "zeta" || snaps[1].ClientID != "alpha" {
		t.Errorf("Expected oldest session first, got %s then %s", snaps[0].ClientID, snaps[1].ClientID)
	}
	if len(snaps[1].Messages) != 1 {
		t.Errorf("Expected alpha snapshot to include its message, got %d", len(snaps[1].Messages))
	}

	// Mutating a snapshot must not leak back into the registry.
	snaps[1].Messages[0].Content = "tampered"
	history, _ := r.History("alpha")
	if history[0].Content != "hi" {
		t.Error("Expected registry history to be isolated from snapshot mutation")
	}
}

func TestRegistry_ConcurrentAppends(t *testing.T) {
	r := NewRegistry()
	r.CreateOrGet("busy")

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Append("busy", domain.Message{Sender: domain.SenderCustomer, Content: "m"})
			}
		}()
	}
	wg.Wait()

	history, err := r.History("busy")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 400 {
		t.Errorf("Expected 400 messages after concurrent appends, got %d", len(history))
	}
}
