// Package audit records completed bridge operations. Entries go through a
// buffered channel so the host loop never waits on output or storage.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glinharesb/chevron-bridge/internal/bridge"
	"github.com/glinharesb/chevron-bridge/internal/provider"
)

// Entry represents an audit log entry.
type Entry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Operation string            `json:"operation"`
	TaskID    string            `json:"task_id,omitempty"`
	Status    string            `json:"status"`
	Provider  string            `json:"provider,omitempty"`
	Peer      string            `json:"peer,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Filter selects entries in Query. Zero fields match everything.
type Filter struct {
	Operation string
	TaskID    string
	Status    string
	Start     time.Time
	End       time.Time
	Limit     int
}

func (f Filter) match(e Entry) bool {
	switch {
	case f.Operation != "" && e.Operation != f.Operation:
		return false
	case f.TaskID != "" && e.TaskID != f.TaskID:
		return false
	case f.Status != "" && e.Status != f.Status:
		return false
	case !f.Start.IsZero() && e.Timestamp.Before(f.Start):
		return false
	case !f.End.IsZero() && e.Timestamp.After(f.End):
		return false
	}
	return true
}

// Sink is durable storage for entries. When a Logger has a sink, queries
// are answered from it instead of memory.
type Sink interface {
	Write(ctx context.Context, e Entry) error
	Query(ctx context.Context, f Filter) ([]Entry, error)
	Close() error
}

// Subscriber receives audit entries via a channel.
type Subscriber struct {
	C  chan Entry
	id string
}

// Logger is an async audit logger that decouples the host loop from log writes.
type Logger struct {
	entries chan Entry
	out     io.Writer
	sink    Sink
	logger  *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	store       []Entry

	done chan struct{}
}

// Option configures a Logger.
type Option func(*Logger)

// WithSink persists entries to s.
func WithSink(s Sink) Option {
	return func(l *Logger) { l.sink = s }
}

func WithLogger(z *zap.Logger) Option {
	return func(l *Logger) {
		if z != nil {
			l.logger = z
		}
	}
}

// NewLogger creates a logger with the given buffer size. Entries are written
// to out as JSON lines when out is not nil.
func NewLogger(bufferSize int, out io.Writer, opts ...Option) *Logger {
	l := &Logger{
		entries:     make(chan Entry, bufferSize),
		out:         out,
		logger:      zap.NewNop(),
		subscribers: make(map[string]*Subscriber),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.processLoop()
	return l
}

// Log sends an entry to the async processing pipeline. ID and Timestamp are
// filled in when empty. Entries are dropped when the buffer is full.
func (l *Logger) Log(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	select {
	case l.entries <- e:
	default:
		l.logger.Warn("audit log buffer full, dropping entry", zap.String("operation", e.Operation))
	}
}

// Observe records a bridge completion. It has the signature of
// bridge.Observer.
func (l *Logger) Observe(c bridge.Completion) {
	e := Entry{
		Timestamp: c.Finished,
		Operation: c.Op.String(),
		TaskID:    c.TaskID,
		Status:    StatusName(c.Status),
		Provider:  c.Provider,
		Duration:  c.Duration,
		Metadata:  map[string]string{"style": c.Style.String()},
	}
	if c.Op == bridge.OpVerifySignature && c.Status == provider.StatusTrue {
		e.Status = "TRUE"
	}
	if c.Op == bridge.OpLoadKey && c.Err == "" {
		e.Metadata["loaded_private_keys"] = fmt.Sprint(c.LoadedPrivateKeys)
	}
	if c.Err != "" {
		e.Metadata["error"] = c.Err
	}
	l.Log(e)
}

// StatusName names a provider status code.
func StatusName(status int32) string {
	switch status {
	case provider.StatusError:
		return "ERROR"
	case provider.StatusFalse:
		return "FALSE"
	case provider.StatusTrue:
		return "OK"
	default:
		return fmt.Sprintf("STATUS(%d)", status)
	}
}

// Subscribe creates a new subscriber that receives entries via a buffered channel.
func (l *Logger) Subscribe() *Subscriber {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub := &Subscriber{
		C:  make(chan Entry, 64),
		id: uuid.NewString(),
	}
	l.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (l *Logger) Unsubscribe(sub *Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.subscribers[sub.id]; !ok {
		return
	}
	delete(l.subscribers, sub.id)
	close(sub.C)
}

// Query returns entries matching f, newest first.
func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	if l.sink != nil {
		return l.sink.Query(ctx, f)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []Entry
	for i := len(l.store) - 1; i >= 0; i-- {
		e := l.store[i]
		if !f.match(e) {
			continue
		}
		results = append(results, e)
		if f.Limit > 0 && len(results) >= f.Limit {
			break
		}
	}
	return results, nil
}

// Close stops the processing loop, waits for queued entries to be written
// and closes the sink.
func (l *Logger) Close() error {
	close(l.entries)
	<-l.done

	l.mu.Lock()
	for id, sub := range l.subscribers {
		delete(l.subscribers, id)
		close(sub.C)
	}
	l.mu.Unlock()

	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

func (l *Logger) processLoop() {
	defer close(l.done)

	for entry := range l.entries {
		if l.sink != nil {
			if err := l.sink.Write(context.Background(), entry); err != nil {
				l.logger.Error("audit sink write", zap.String("id", entry.ID), zap.Error(err))
			}
		} else {
			l.mu.Lock()
			l.store = append(l.store, entry)
			l.mu.Unlock()
		}

		if l.out != nil {
			data, err := json.Marshal(entry)
			if err != nil {
				l.logger.Error("audit marshal", zap.Error(err))
			} else {
				fmt.Fprintf(l.out, "%s\n", data)
			}
		}

		// Fan-out to subscribers (non-blocking)
		l.mu.RLock()
		for _, sub := range l.subscribers {
			select {
			case sub.C <- entry:
			default:
				// subscriber too slow, drop
			}
		}
		l.mu.RUnlock()
	}
}
