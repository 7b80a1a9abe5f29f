// Package transcript writes an append-only NDJSON activity log for each
// session: messages, approval requests and decisions, and session end. A
// bounded queue and a single writer goroutine keep the hub's hot path from
// ever blocking on disk.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types recorded in transcripts.
const (
	EventMessage         = "message"
	EventApprovalRequest = "approval_requested"
	EventApprovalDecided = "approval_decided"
	EventSessionEnded    = "session_ended"
)

// Config controls transcript logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Event is one NDJSON line in a session transcript.
type Event struct {
	Timestamp time.Time         `json:"ts"`
	ClientID  string            `json:"clientId"`
	EventType string            `json:"eventType"`
	Sender    string            `json:"sender,omitempty"`
	Content   string            `json:"content,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Logger appends session events to NDJSON files.
type Logger interface {
	// Log enqueues one event. It never blocks; events are dropped with a
	// counter when the queue is full.
	Log(event Event)

	// Close flushes queued events and stops the writer.
	Close() error
}

// New creates a transcript logger for the given config. When both the
// per-session and global streams are disabled it returns a no-op logger.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return noopLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Enabled {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("transcript dir is required when enabled")
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if cfg.GlobalPath == "" {
			return nil, fmt.Errorf("transcript global path is required when enabled")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create transcript global dir: %w", err)
		}
	}

	l := &fileLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

type fileLogger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// Log enqueues one event, stamping a missing timestamp.
func (l *fileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case l.queue <- event:
	default:
		l.dropped.Add(1)
		l.logger.Warn("transcript queue full, dropping event",
			"client_id", event.ClientID,
			"event_type", event.EventType,
			"dropped_total", l.dropped.Load())
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (l *fileLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close flushes queued events and stops the writer goroutine.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *fileLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		l.write(event)
	}
}

func (l *fileLogger) write(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Error("transcript marshal failed", "client_id", event.ClientID, "error", err)
		return
	}
	line = append(line, '\n')

	if l.cfg.Enabled {
		l.append(filepath.Join(l.cfg.Dir, safeName(event.ClientID)+".ndjson"), line)
	}
	if l.cfg.GlobalEnabled {
		l.append(l.cfg.GlobalPath, line)
	}
}

func (l *fileLogger) append(path string, line []byte) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error("transcript open failed", "path", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		l.logger.Error("transcript write failed", "path", path, "error", err)
	}
}

// safeName keeps caller-supplied client ids from escaping the transcript
// directory.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, id)
}

type noopLogger struct{}

func (noopLogger) Log(Event)    {}
func (noopLogger) Close() error { return nil }
