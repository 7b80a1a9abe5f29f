package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	// sendQueueSize bounds the per-connection backlog before the peer is
	// treated as dead.
	sendQueueSize = 64
	// writeTimeout bounds a single websocket write.
	writeTimeout = 10 * time.Second
)

// peer is one live websocket connection with its own delivery queue. A
// dedicated writer goroutine drains the queue, so a stalled socket never
// blocks the goroutines fanning frames out.
type peer struct {
	key    string
	role   string
	conn   *websocket.Conn
	queue  chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newPeer(ctx context.Context, key, role string, conn *websocket.Conn) *peer {
	pctx, cancel := context.WithCancel(ctx)
	return &peer{
		key:    key,
		role:   role,
		conn:   conn,
		queue:  make(chan []byte, sendQueueSize),
		ctx:    pctx,
		cancel: cancel,
	}
}

// shutdown stops the writer and closes the socket, once.
func (p *peer) shutdown(code websocket.StatusCode, reason string) {
	p.once.Do(func() {
		p.cancel()
		if err := p.conn.Close(code, reason); err != nil {
			slog.Debug("Error closing connection", "role", p.role, "key", p.key, "error", err)
		}
	})
}

// Broadcaster tracks every live connection and delivers frames to customers
// and supervisors. Customers are keyed by client id, supervisors by a
// generated subscription id. Delivery to one peer never waits on another.
type Broadcaster struct {
	mu          sync.RWMutex
	customers   map[string]*peer
	supervisors map[string]*peer
}

// NewBroadcaster creates a broadcaster with no connections.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		customers:   make(map[string]*peer),
		supervisors: make(map[string]*peer),
	}
}

// RegisterCustomer attaches the customer's connection and starts its writer.
// An existing connection for the same client id is closed and replaced.
func (b *Broadcaster) RegisterCustomer(ctx context.Context, clientID string, conn *websocket.Conn) {
	p := newPeer(ctx, clientID, roleCustomer, conn)

	b.mu.Lock()
	old := b.customers[clientID]
	b.customers[clientID] = p
	b.mu.Unlock()

	if old != nil {
		slog.Info("Customer connection replaced", "client_id", clientID)
		old.shutdown(websocket.StatusNormalClosure, "connection replaced")
	}
	go b.writeLoop(p)
}

// UnregisterCustomer detaches the connection if it is still the one on
// record, so a replaced connection cannot evict its successor on the way out.
func (b *Broadcaster) UnregisterCustomer(clientID string, conn *websocket.Conn) {
	b.mu.Lock()
	p, ok := b.customers[clientID]
	if ok && p.conn == conn {
		delete(b.customers, clientID)
	} else {
		p = nil
	}
	b.mu.Unlock()

	if p != nil {
		p.cancel()
	}
}

// RegisterSupervisor attaches a supervisor console and returns the
// subscription id used to address and unregister it.
func (b *Broadcaster) RegisterSupervisor(ctx context.Context, conn *websocket.Conn) string {
	id := uuid.NewString()
	p := newPeer(ctx, id, roleSupervisor, conn)

	b.mu.Lock()
	b.supervisors[id] = p
	b.mu.Unlock()

	go b.writeLoop(p)
	return id
}

// UnregisterSupervisor detaches one supervisor subscription.
func (b *Broadcaster) UnregisterSupervisor(id string) {
	b.mu.Lock()
	p := b.supervisors[id]
	delete(b.supervisors, id)
	b.mu.Unlock()

	if p != nil {
		p.cancel()
	}
}

// ToCustomer delivers one frame to the session's customer, if connected. A
// customer with no open socket is skipped; the conversation is already
// recorded and replays on reconnect.
func (b *Broadcaster) ToCustomer(clientID string, v any) {
	data, err := marshalFrame(v)
	if err != nil {
		return
	}
	b.mu.RLock()
	p := b.customers[clientID]
	b.mu.RUnlock()

	if p != nil {
		b.enqueue(p, data)
	}
}

// ToSupervisors delivers one frame to every connected supervisor.
func (b *Broadcaster) ToSupervisors(v any) {
	data, err := marshalFrame(v)
	if err != nil {
		return
	}
	b.mu.RLock()
	peers := make([]*peer, 0, len(b.supervisors))
	for _, p := range b.supervisors {
		peers = append(peers, p)
	}
	b.mu.RUnlock()

	for _, p := range peers {
		b.enqueue(p, data)
	}
}

// ToSupervisor delivers one frame to a single supervisor subscription.
func (b *Broadcaster) ToSupervisor(id string, v any) {
	data, err := marshalFrame(v)
	if err != nil {
		return
	}
	b.mu.RLock()
	p := b.supervisors[id]
	b.mu.RUnlock()

	if p != nil {
		b.enqueue(p, data)
	}
}

// SupervisorCount returns the number of connected supervisor consoles.
func (b *Broadcaster) SupervisorCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.supervisors)
}

// CustomerConnected reports whether the session's customer has a live socket.
func (b *Broadcaster) CustomerConnected(clientID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.customers[clientID]
	return ok
}

// CloseAll closes every connection. http.Server.Shutdown skips hijacked
// websockets, so the server calls this on exit.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	peers := make([]*peer, 0, len(b.customers)+len(b.supervisors))
	for _, p := range b.customers {
		peers = append(peers, p)
	}
	for _, p := range b.supervisors {
		peers = append(peers, p)
	}
	b.customers = make(map[string]*peer)
	b.supervisors = make(map[string]*peer)
	b.mu.Unlock()

	for _, p := range peers {
		p.shutdown(websocket.StatusGoingAway, "server shutting down")
	}
}

// enqueue hands the frame to the peer's writer without blocking. A full queue
// means the peer stopped draining and is dropped, so everyone else keeps
// receiving.
func (b *Broadcaster) enqueue(p *peer, data []byte) {
	select {
	case p.queue <- data:
	default:
		slog.Warn("Dropping backlogged connection", "role", p.role, "key", p.key)
		b.drop(p, websocket.StatusPolicyViolation, "send queue overflow")
	}
}

// drop removes the peer from its map and closes the socket. Safe to call for
// an already-removed peer.
func (b *Broadcaster) drop(p *peer, code websocket.StatusCode, reason string) {
	b.mu.Lock()
	switch p.role {
	case roleCustomer:
		if b.customers[p.key] == p {
			delete(b.customers, p.key)
		}
	case roleSupervisor:
		if b.supervisors[p.key] == p {
			delete(b.supervisors, p.key)
		}
	}
	b.mu.Unlock()

	p.shutdown(code, reason)
}

// writeLoop drains the peer's queue until its context ends. A failed or timed
// out write drops the peer.
func (b *Broadcaster) writeLoop(p *peer) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case data := <-p.queue:
			wctx, cancel := context.WithTimeout(p.ctx, writeTimeout)
			err := p.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("Write failed, dropping connection", "role", p.role, "key", p.key, "error", err)
				b.drop(p, websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

func marshalFrame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal frame", "error", err)
		return nil, err
	}
	return data, nil
}
