// Package runnertest provides a scripted in-process runner for tests.
package runnertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wardenhq/warden/internal/runner"
)

type handle struct {
	scanID string
}

func (h *handle) ScanID() string { return h.scanID }

// Runner is a fake runner.Runner. Tests drive the agent side by calling Emit.
type Runner struct {
	mu sync.Mutex

	PreflightErr error
	StartErr     error
	PushErr      error

	preflights int
	started    []runner.StartSpec
	pushed     []string
	callbacks  map[string]runner.Callback
	finished   map[string]bool
}

// New creates an idle fake runner.
func New() *Runner {
	return &Runner{
		callbacks: make(map[string]runner.Callback),
		finished:  make(map[string]bool),
	}
}

func (r *Runner) Preflight(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preflights++
	return r.PreflightErr
}

func (r *Runner) Start(ctx context.Context, spec runner.StartSpec, cb runner.Callback) (runner.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	r.started = append(r.started, spec)
	r.callbacks[spec.ScanID] = cb
	return &handle{scanID: spec.ScanID}, nil
}

func (r *Runner) PushMessage(ctx context.Context, h runner.Handle, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.PushErr != nil {
		return r.PushErr
	}
	if r.finished[h.ScanID()] {
		return runner.ErrNotRunning
	}
	r.pushed = append(r.pushed, text)
	return nil
}

func (r *Runner) Status(h runner.Handle) runner.HandleStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished[h.ScanID()] {
		return runner.HandleFinished
	}
	return runner.HandleActive
}

// Emit delivers a notice to the scan's callback synchronously, as the real
// runner's stream goroutine would.
func (r *Runner) Emit(scanID string, n runner.Notice) {
	r.mu.Lock()
	cb, ok := r.callbacks[scanID]
	if n.Kind == runner.NoticeCompleted || n.Kind == runner.NoticeFailed {
		r.finished[scanID] = true
	}
	r.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("runnertest: no callback registered for scan %q", scanID))
	}
	cb(scanID, n)
}

// Preflights returns how many times Preflight ran.
func (r *Runner) Preflights() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preflights
}

// Started returns the specs passed to Start.
func (r *Runner) Started() []runner.StartSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runner.StartSpec(nil), r.started...)
}

// Pushed returns the texts delivered via PushMessage.
func (r *Runner) Pushed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pushed...)
}
