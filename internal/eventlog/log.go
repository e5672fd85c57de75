// Package eventlog provides the per-run append-only event log.
package eventlog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/domain"
)

// Log stores events per run for the lifetime of the process. A single writer
// per run (the runner callback) appends while any number of HTTP handlers
// read snapshots; readers of one run never contend with writers of another.
type Log struct {
	mu   sync.RWMutex
	runs map[string]*runLog
}

type runLog struct {
	mu     sync.RWMutex
	events []domain.Event
}

// New creates an empty log.
func New() *Log {
	return &Log{runs: make(map[string]*runLog)}
}

// Register creates the event sequence for a run. Registering an existing run
// is a no-op.
func (l *Log) Register(scanID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.runs[scanID]; !ok {
		l.runs[scanID] = &runLog{}
	}
}

// Append assigns the next sequence number for the run, stores the event and
// returns its seq. The payload is marshalled to JSON.
func (l *Log) Append(scanID string, kind domain.EventKind, payload any) (int64, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}

	rl, err := l.runLog(scanID)
	if err != nil {
		return 0, err
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	seq := int64(len(rl.events)) + 1
	rl.events = append(rl.events, domain.Event{
		Seq:     seq,
		ScanID:  scanID,
		Ts:      time.Now().UnixMilli(),
		Kind:    kind,
		Payload: data,
	})
	return seq, nil
}

// ReadFrom returns all events with seq > afterSeq in ascending order. Each
// call is a fresh snapshot, not a live subscription; polling with the last
// seen seq is the supported pattern for incremental delivery.
func (l *Log) ReadFrom(scanID string, afterSeq int64) ([]domain.Event, error) {
	rl, err := l.runLog(scanID)
	if err != nil {
		return nil, err
	}

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(rl.events)) {
		return []domain.Event{}, nil
	}
	tail := rl.events[afterSeq:]
	out := make([]domain.Event, len(tail))
	copy(out, tail)
	return out, nil
}

func (l *Log) runLog(scanID string) (*runLog, error) {
	l.mu.RLock()
	rl, ok := l.runs[scanID]
	l.mu.RUnlock()
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "scan %q not found", scanID)
	}
	return rl, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}
