// Package runner defines the boundary to the externally-hosted agent process.
package runner

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/wardenhq/warden/internal/domain"
)

// Push errors. The scan manager maps both onto its invalid-state taxonomy.
var (
	ErrNotWaiting = errors.New("agent is not waiting for input")
	ErrNotRunning = errors.New("agent handle is no longer active")
)

// StartSpec describes one scan to launch.
type StartSpec struct {
	ScanID      string            `json:"scan_id"`
	Target      string            `json:"target"`
	TargetType  domain.TargetType `json:"target_type"`
	Instruction string            `json:"instruction,omitempty"`
}

// HandleStatus is the observable state of a launched agent.
type HandleStatus string

const (
	HandleActive   HandleStatus = "active"
	HandleFinished HandleStatus = "finished"
)

// Handle identifies one launched agent within the runner.
type Handle interface {
	ScanID() string
}

// NoticeKind discriminates runner notices.
type NoticeKind string

const (
	NoticeStarted   NoticeKind = "started"
	NoticePaused    NoticeKind = "paused"
	NoticeEvent     NoticeKind = "event"
	NoticeFinding   NoticeKind = "finding"
	NoticeCompleted NoticeKind = "completed"
	NoticeFailed    NoticeKind = "failed"
)

// Notice is one observation delivered by the runner while a scan executes.
// Exactly the fields relevant to Kind are set.
type Notice struct {
	Kind      NoticeKind
	AgentID   string                // started
	EventKind domain.EventKind      // event
	Payload   json.RawMessage       // event
	Finding   *domain.Vulnerability // finding
	Report    string                // completed, failed
}

// Callback receives notices in stream order. It is invoked from the runner's
// background context and must not block on the agent.
type Callback func(scanID string, n Notice)

// Runner launches and communicates with the external agent process. The core
// treats it as a black box: it is the sole source of status-change and
// finding events.
type Runner interface {
	// Preflight validates the runner environment. It is called once before
	// the first launch and retried only while it keeps failing.
	Preflight(ctx context.Context) error

	// Start begins execution asynchronously. Failures are synchronous only;
	// after a nil error the agent is running and notices will follow.
	Start(ctx context.Context, spec StartSpec, cb Callback) (Handle, error)

	// PushMessage delivers operator text to the running agent. It fails with
	// ErrNotWaiting if the agent is not paused for input and ErrNotRunning if
	// the handle is no longer active.
	PushMessage(ctx context.Context, h Handle, text string) error

	// Status reports whether the handle is still active.
	Status(h Handle) HandleStatus
}
