// Package session owns all live conversation state for the hub. The Registry
// is the single owner: every read and write of a session goes through one of
// its methods, and each method is atomic under the registry lock. Compound
// rules (one pending approval per session, approval state and status moving
// together, nothing leaving the ended state) hold because no caller can
// observe a session between the steps of an operation.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nebulatel/handoff/internal/domain"
)

var (
	// ErrUnknownSession is returned when a client id has no live session.
	ErrUnknownSession = errors.New("unknown session")
	// ErrApprovalPending is returned when a session already has a pending
	// approval and a second one is requested.
	ErrApprovalPending = errors.New("approval already pending")
	// ErrNoPendingApproval is returned when a decision arrives for a session
	// with nothing to decide.
	ErrNoPendingApproval = errors.New("no pending approval")
	// ErrSessionEnded is returned for status changes on an ended session.
	ErrSessionEnded = errors.New("session ended")
	// ErrSessionActive is returned by RemoveIdle when the session no longer
	// qualifies as idle.
	ErrSessionActive = errors.New("session active")
)

// Snapshot is a point-in-time copy of one session, safe to read without
// holding any lock. Messages is a fresh slice on every call.
type Snapshot struct {
	ClientID     string                  `json:"clientId"`
	Status       domain.Status           `json:"status"`
	Messages     []domain.Message        `json:"messages"`
	Pending      *domain.ApprovalRequest `json:"pendingApproval,omitempty"`
	StartedAt    time.Time               `json:"-"`
	LastActivity time.Time               `json:"-"`
}

// state is the mutable record for one live session. Only Registry methods
// touch it, always under the registry lock.
type state struct {
	clientID     string
	status       domain.Status
	messages     []domain.Message
	pending      *domain.ApprovalRequest
	startedAt    time.Time
	lastActivity time.Time
}

func (s *state) snapshot() Snapshot {
	msgs := make([]domain.Message, len(s.messages))
	copy(msgs, s.messages)
	var pending *domain.ApprovalRequest
	if s.pending != nil {
		p := *s.pending
		pending = &p
	}
	return Snapshot{
		ClientID:     s.clientID,
		Status:       s.status,
		Messages:     msgs,
		Pending:      pending,
		StartedAt:    s.startedAt,
		LastActivity: s.lastActivity,
	}
}

// Registry tracks every live session by client id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*state
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*state)}
}

// CreateOrGet returns a snapshot of the session for clientID, creating a
// fresh bot-only session if none exists. The second return value reports
// whether the session was created by this call.
func (r *Registry) CreateOrGet(clientID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[clientID]; ok {
		return s.snapshot(), false
	}
	now := time.Now()
	s := &state{
		clientID:     clientID,
		status:       domain.StatusBotOnly,
		startedAt:    now,
		lastActivity: now,
	}
	r.sessions[clientID] = s
	return s.snapshot(), true
}

// Append adds a message to the session's conversation and refreshes its
// activity timestamp. A zero message timestamp is stamped with the server
// clock. The stored message is returned so callers deliver exactly what was
// recorded.
func (r *Registry) Append(clientID string, msg domain.Message) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return domain.Message{}, ErrUnknownSession
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.messages = append(s.messages, msg)
	s.lastActivity = time.Now()
	return msg, nil
}

// History returns a copy of the session's ordered conversation.
func (r *Registry) History(clientID string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return nil, ErrUnknownSession
	}
	msgs := make([]domain.Message, len(s.messages))
	copy(msgs, s.messages)
	return msgs, nil
}

// Status returns the session's current lifecycle status.
func (r *Registry) Status(clientID string) (domain.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return "", ErrUnknownSession
	}
	return s.status, nil
}

// SetStatus moves the session to a new lifecycle status. It reports whether
// the status actually changed. Ended sessions refuse all changes.
func (r *Registry) SetStatus(clientID string, status domain.Status) (bool, error) {
	if !status.Valid() {
		return false, errors.New("invalid status: " + string(status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return false, ErrUnknownSession
	}
	if s.status.Terminal() {
		return false, ErrSessionEnded
	}
	if s.status == status {
		return false, nil
	}
	s.status = status
	return true, nil
}

// statusRank orders statuses by how much supervision they imply.
func statusRank(s domain.Status) int {
	switch s {
	case domain.StatusBotOnly:
		return 0
	case domain.StatusSoftHandoff:
		return 1
	case domain.StatusHardHandoff:
		return 2
	case domain.StatusAgentActive:
		return 3
	default:
		return 4
	}
}

// Escalate moves the session to a more supervised status and reports whether
// anything changed. It never moves a session backward, so an escalation that
// raced with a takeover or an approval is silently absorbed.
func (r *Registry) Escalate(clientID string, to domain.Status) (bool, error) {
	if to != domain.StatusSoftHandoff && to != domain.StatusHardHandoff {
		return false, errors.New("cannot escalate to " + string(to))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return false, ErrUnknownSession
	}
	if s.status.Terminal() {
		return false, ErrSessionEnded
	}
	if statusRank(to) <= statusRank(s.status) {
		return false, nil
	}
	s.status = to
	return true, nil
}

// SetApproval installs the session's pending approval and suspends automation
// by moving the status to hard handoff, both under one lock acquisition. At
// most one approval can be pending; a second request fails with
// ErrApprovalPending and changes nothing.
func (r *Registry) SetApproval(clientID string, amount float64, reason string) (domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return domain.ApprovalRequest{}, ErrUnknownSession
	}
	if s.pending != nil {
		return domain.ApprovalRequest{}, ErrApprovalPending
	}
	req := domain.ApprovalRequest{
		ClientID:    clientID,
		Amount:      amount,
		Reason:      reason,
		RequestedAt: time.Now(),
	}
	s.pending = &req
	s.status = domain.StatusHardHandoff
	return req, nil
}

// ClearApproval removes the pending approval and reverts the session to
// bot-only, both under one lock acquisition. Exactly one caller wins when
// decisions race; the rest get ErrNoPendingApproval.
func (r *Registry) ClearApproval(clientID string) (domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return domain.ApprovalRequest{}, ErrUnknownSession
	}
	if s.pending == nil {
		return domain.ApprovalRequest{}, ErrNoPendingApproval
	}
	req := *s.pending
	s.pending = nil
	s.status = domain.StatusBotOnly
	return req, nil
}

// Snapshot returns a point-in-time copy of one session.
func (r *Registry) Snapshot(clientID string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return Snapshot{}, ErrUnknownSession
	}
	return s.snapshot(), nil
}

// SnapshotAll returns a copy of every live session, oldest first.
func (r *Registry) SnapshotAll() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		snaps = append(snaps, s.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].ClientID < snaps[j].ClientID
		}
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
	return snaps
}

// Remove deletes the session and returns its final snapshot with the status
// already marked ended. Removing an unknown session returns ErrUnknownSession
// so callers can treat repeats as a no-op.
func (r *Registry) Remove(clientID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return Snapshot{}, ErrUnknownSession
	}
	s.status = domain.StatusEnded
	snap := s.snapshot()
	delete(r.sessions, clientID)
	return snap, nil
}

// RemoveIdle is Remove guarded by the idleness test: the session is deleted
// only while it is still bot-only with no activity since cutoff. A message or
// handoff that arrived after the caller selected the session keeps it alive
// and yields ErrSessionActive.
func (r *Registry) RemoveIdle(clientID string, cutoff time.Time) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return Snapshot{}, ErrUnknownSession
	}
	if s.status != domain.StatusBotOnly || !s.lastActivity.Before(cutoff) {
		return Snapshot{}, ErrSessionActive
	}
	s.status = domain.StatusEnded
	snap := s.snapshot()
	delete(r.sessions, clientID)
	return snap, nil
}

// IdleBefore returns the client ids of bot-only sessions whose last activity
// is strictly before cutoff. Sessions a supervisor has touched in any way are
// never reported, whatever their age.
func (r *Registry) IdleBefore(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		if s.status == domain.StatusBotOnly && s.lastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
