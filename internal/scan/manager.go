// Package scan owns the single active run: single-flight creation, the run
// state machine, and serialized message delivery.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/wardenhq/warden/internal/archive"
	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/eventlog"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/runner"
)

// maxTextLen bounds operator-supplied instruction and message text.
const maxTextLen = 2000

// Manager mediates every mutation of run state. Runs are never destroyed,
// only retained for historical reads until process exit.
type Manager struct {
	runner  runner.Runner
	log     *eventlog.Log
	policy  *policy.Engine
	archive *archive.Archive // optional, may be nil

	mu     sync.Mutex
	runs   map[string]*runState
	order  []string // creation order
	active string   // id of the non-terminal run, "" if none

	// createMu serializes the check-and-launch step so no two creators pass
	// the single-flight check; mu stays brief for readers.
	createMu sync.Mutex

	preflight singleflight.Group
	ready     atomic.Bool
	statusMu  sync.Mutex
	initErr   string
}

// runState pairs a run with its locks. mu guards state transitions and is
// held only for a snapshot copy; msgMu serializes operator message delivery
// so reads never wait on the agent round trip.
type runState struct {
	mu     sync.Mutex
	msgMu  sync.Mutex
	run    domain.Run
	handle runner.Handle
}

// Status is the control-plane summary.
type Status struct {
	Initialized  bool   `json:"initialized"`
	Active       bool   `json:"active"`
	ActiveScanID string `json:"active_scan_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewManager creates a manager. ar may be nil to disable archiving.
func NewManager(r runner.Runner, elog *eventlog.Log, pol *policy.Engine, ar *archive.Archive) *Manager {
	return &Manager{
		runner:  r,
		log:     elog,
		policy:  pol,
		archive: ar,
		runs:    make(map[string]*runState),
	}
}

// CreateScan validates the target, enforces single-flight and launches the
// agent. The check-and-launch step is atomic with respect to concurrent
// CreateScan calls.
func (m *Manager) CreateScan(ctx context.Context, target, instruction string) (domain.RunSnapshot, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return domain.RunSnapshot{}, domain.NewError(domain.ErrValidation, "target must not be empty")
	}
	if len(instruction) > maxTextLen {
		return domain.RunSnapshot{}, domain.NewError(domain.ErrValidation, "instruction exceeds %d characters", maxTextLen)
	}

	info, err := inferTarget(target)
	if err != nil {
		return domain.RunSnapshot{}, err
	}

	if err := m.ensureReady(ctx); err != nil {
		return domain.RunSnapshot{}, err
	}

	decision, err := m.policy.Evaluate(ctx, policy.Input{
		Target: info.Target,
		Type:   string(info.Type),
		Host:   info.Host,
		Scheme: info.Scheme,
	})
	if err != nil {
		return domain.RunSnapshot{}, fmt.Errorf("policy evaluation failed: %w", err)
	}
	if decision != policy.DecisionAllow {
		return domain.RunSnapshot{}, domain.NewError(domain.ErrValidation, "target %q blocked by policy", target)
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if active != "" {
		return domain.RunSnapshot{}, domain.NewError(domain.ErrConflict, "scan %s is already running", active)
	}

	id := "scan_" + uuid.New().String()[:8]
	now := time.Now().UTC()
	rs := &runState{run: domain.Run{
		ID:          id,
		Target:      info.Target,
		TargetType:  info.Type,
		Instruction: instruction,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}

	// Register before launch so the runner's first notices find the log.
	m.log.Register(id)

	handle, err := m.runner.Start(ctx, runner.StartSpec{
		ScanID:      id,
		Target:      info.Target,
		TargetType:  info.Type,
		Instruction: instruction,
	}, func(scanID string, n runner.Notice) {
		m.handleNotice(rs, scanID, n)
	})
	if err != nil {
		return domain.RunSnapshot{}, domain.NewError(domain.ErrLaunch, "failed to launch agent: %v", err)
	}

	rs.mu.Lock()
	rs.handle = handle
	rs.mu.Unlock()

	m.mu.Lock()
	m.runs[id] = rs
	m.order = append(m.order, id)
	rs.mu.Lock()
	// The runner may already have delivered a terminal notice; a finished run
	// must not occupy the single-flight slot.
	if !rs.run.Status.Terminal() {
		m.active = id
	}
	snap := rs.run.Snapshot()
	runCopy := cloneRun(&rs.run)
	rs.mu.Unlock()
	m.mu.Unlock()

	m.archiveRun(&runCopy)
	return snap, nil
}

// SendMessage delivers operator text to a waiting run. The message lock
// guarantees at most one in-flight delivery per run; losing callers observe
// invalid_state rather than a double-send.
func (m *Manager) SendMessage(ctx context.Context, scanID, text string) (domain.RunSnapshot, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.RunSnapshot{}, domain.NewError(domain.ErrValidation, "message text must not be empty")
	}
	if len(text) > maxTextLen {
		return domain.RunSnapshot{}, domain.NewError(domain.ErrValidation, "message exceeds %d characters", maxTextLen)
	}

	rs, err := m.runState(scanID)
	if err != nil {
		return domain.RunSnapshot{}, err
	}

	rs.msgMu.Lock()
	defer rs.msgMu.Unlock()

	rs.mu.Lock()
	if rs.run.Status != domain.StatusWaiting {
		status := rs.run.Status
		rs.mu.Unlock()
		return domain.RunSnapshot{}, domain.NewError(domain.ErrInvalidState, "scan is %s, not waiting for input", status)
	}
	handle := rs.handle
	rs.mu.Unlock()

	// The state lock is not held across the agent round trip; msgMu keeps the
	// delivery exclusive.
	if err := m.runner.PushMessage(ctx, handle, text); err != nil {
		if errors.Is(err, runner.ErrNotWaiting) || errors.Is(err, runner.ErrNotRunning) {
			return domain.RunSnapshot{}, domain.NewError(domain.ErrInvalidState, "agent rejected message: %v", err)
		}
		return domain.RunSnapshot{}, fmt.Errorf("failed to deliver message: %w", err)
	}

	m.appendEvent(scanID, domain.EventKindChat, domain.ChatPayload{Role: "user", Text: text})

	rs.mu.Lock()
	// The agent may have finished between the push and this transition; a
	// terminal status wins.
	if rs.run.Status == domain.StatusWaiting {
		rs.run.Status = domain.StatusRunning
		rs.run.WaitingSince = nil
		rs.run.UpdatedAt = time.Now().UTC()
	}
	snap := rs.run.Snapshot()
	runCopy := cloneRun(&rs.run)
	rs.mu.Unlock()

	m.archiveRun(&runCopy)
	return snap, nil
}

// GetScan returns a point-in-time snapshot.
func (m *Manager) GetScan(scanID string) (domain.RunSnapshot, error) {
	rs, err := m.runState(scanID)
	if err != nil {
		return domain.RunSnapshot{}, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.run.Snapshot(), nil
}

// ListScans returns snapshots of all runs, newest first.
func (m *Manager) ListScans() []domain.RunSnapshot {
	m.mu.Lock()
	states := make([]*runState, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		states = append(states, m.runs[m.order[i]])
	}
	m.mu.Unlock()

	snaps := make([]domain.RunSnapshot, 0, len(states))
	for _, rs := range states {
		rs.mu.Lock()
		snaps = append(snaps, rs.run.Snapshot())
		rs.mu.Unlock()
	}
	return snaps
}

// Events returns the run's events with seq > afterSeq.
func (m *Manager) Events(scanID string, afterSeq int64) ([]domain.Event, error) {
	return m.log.ReadFrom(scanID, afterSeq)
}

// Report returns the final report once the run is terminal.
func (m *Manager) Report(scanID string) (string, error) {
	rs, err := m.runState(scanID)
	if err != nil {
		return "", err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.run.Status.Terminal() || rs.run.Report == "" {
		return "", domain.NewError(domain.ErrNotFound, "report for scan %s is not ready", scanID)
	}
	return rs.run.Report, nil
}

// Vulnerabilities returns the findings recorded so far.
func (m *Manager) Vulnerabilities(scanID string) ([]domain.Vulnerability, error) {
	rs, err := m.runState(scanID)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]domain.Vulnerability(nil), rs.run.Vulnerabilities...), nil
}

// Status summarizes the control plane.
func (m *Manager) Status() Status {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	m.statusMu.Lock()
	initErr := m.initErr
	m.statusMu.Unlock()
	return Status{
		Initialized:  m.ready.Load(),
		Active:       active != "",
		ActiveScanID: active,
		Error:        initErr,
	}
}

// ensureReady runs the runner preflight once; concurrent first callers share
// a single attempt and failures are retried on the next call.
func (m *Manager) ensureReady(ctx context.Context) error {
	if m.ready.Load() {
		return nil
	}
	_, err, _ := m.preflight.Do("preflight", func() (any, error) {
		return nil, m.runner.Preflight(ctx)
	})
	m.statusMu.Lock()
	if err != nil {
		m.initErr = err.Error()
	} else {
		m.initErr = ""
		m.ready.Store(true)
	}
	m.statusMu.Unlock()
	if err != nil {
		return domain.NewError(domain.ErrLaunch, "preflight failed: %v", err)
	}
	return nil
}

func (m *Manager) runState(scanID string) (*runState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.runs[scanID]
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "scan %q not found", scanID)
	}
	return rs, nil
}

// handleNotice is the runner's entry into the status-update path. It is the
// only place besides SendMessage that mutates run status. rs is bound at
// launch time so early notices do not race the run's registration.
func (m *Manager) handleNotice(rs *runState, scanID string, n runner.Notice) {
	switch n.Kind {
	case runner.NoticeStarted:
		m.markRunning(rs, n.AgentID)
	case runner.NoticePaused:
		m.markWaiting(rs)
	case runner.NoticeEvent:
		m.appendEvent(scanID, n.EventKind, n.Payload)
	case runner.NoticeFinding:
		m.recordFinding(rs, n.Finding)
	case runner.NoticeCompleted:
		m.finish(rs, domain.StatusCompleted, n.Report)
	case runner.NoticeFailed:
		m.finish(rs, domain.StatusFailed, n.Report)
	default:
		log.Printf("WARN: unknown notice kind %q for scan %s", n.Kind, scanID)
	}
}

func (m *Manager) markRunning(rs *runState, agentID string) {
	rs.mu.Lock()
	if rs.run.Status != domain.StatusPending {
		status := rs.run.Status
		rs.mu.Unlock()
		log.Printf("WARN: start confirmation for scan %s in status %s ignored", rs.run.ID, status)
		return
	}
	rs.run.Status = domain.StatusRunning
	rs.run.RootAgentID = agentID
	rs.run.UpdatedAt = time.Now().UTC()
	runCopy := cloneRun(&rs.run)
	rs.mu.Unlock()

	m.archiveRun(&runCopy)
}

func (m *Manager) markWaiting(rs *runState) {
	rs.mu.Lock()
	if rs.run.Status != domain.StatusRunning {
		status := rs.run.Status
		rs.mu.Unlock()
		log.Printf("WARN: pause for scan %s in status %s ignored", rs.run.ID, status)
		return
	}
	now := time.Now().UTC()
	rs.run.Status = domain.StatusWaiting
	rs.run.WaitingSince = &now
	rs.run.UpdatedAt = now
	runCopy := cloneRun(&rs.run)
	rs.mu.Unlock()

	m.archiveRun(&runCopy)
}

func (m *Manager) recordFinding(rs *runState, finding *domain.Vulnerability) {
	if finding == nil {
		return
	}
	v := *finding
	if v.ID == "" {
		v.ID = "vuln_" + uuid.New().String()[:8]
	}
	if v.Ts == 0 {
		v.Ts = time.Now().UnixMilli()
	}

	rs.mu.Lock()
	rs.run.Vulnerabilities = append(rs.run.Vulnerabilities, v)
	rs.run.UpdatedAt = time.Now().UTC()
	scanID := rs.run.ID
	runCopy := cloneRun(&rs.run)
	rs.mu.Unlock()

	m.appendEvent(scanID, domain.EventKindFinding, v)
	if m.archive != nil {
		if err := m.archive.SaveVulnerability(context.Background(), scanID, v); err != nil {
			log.Printf("ERROR: failed to archive vulnerability for scan %s: %v", scanID, err)
		}
	}
	m.archiveRun(&runCopy)
}

// finish applies a terminal transition. The report is set exactly once; a
// second terminal notice is ignored.
func (m *Manager) finish(rs *runState, to domain.ScanStatus, report string) {
	rs.mu.Lock()
	from := rs.run.Status
	if from.Terminal() {
		rs.mu.Unlock()
		log.Printf("WARN: %s notice for finished scan %s ignored", to, rs.run.ID)
		return
	}
	if !from.CanTransition(to) {
		rs.mu.Unlock()
		log.Printf("WARN: invalid transition %s -> %s for scan %s ignored", from, to, rs.run.ID)
		return
	}
	rs.run.Status = to
	rs.run.Report = report
	rs.run.WaitingSince = nil
	rs.run.UpdatedAt = time.Now().UTC()
	if to == domain.StatusFailed {
		rs.run.Error = report
	}
	scanID := rs.run.ID
	runCopy := cloneRun(&rs.run)
	rs.mu.Unlock()

	m.mu.Lock()
	if m.active == scanID {
		m.active = ""
	}
	m.mu.Unlock()

	m.appendEvent(scanID, domain.EventKindStatusChange, domain.StatusChangePayload{
		From:      from,
		To:        to,
		HasReport: report != "",
	})
	m.archiveRun(&runCopy)
}

// appendEvent records an event; failures are logged, never propagated into
// the agent stream.
func (m *Manager) appendEvent(scanID string, kind domain.EventKind, payload any) {
	seq, err := m.log.Append(scanID, kind, payload)
	if err != nil {
		log.Printf("ERROR: failed to record %s event for scan %s: %v", kind, scanID, err)
		return
	}
	if m.archive == nil {
		return
	}
	events, err := m.log.ReadFrom(scanID, seq-1)
	if err != nil || len(events) == 0 {
		return
	}
	if err := m.archive.SaveEvent(context.Background(), events[0]); err != nil {
		log.Printf("ERROR: failed to archive event %d for scan %s: %v", seq, scanID, err)
	}
}

func (m *Manager) archiveRun(run *domain.Run) {
	if m.archive == nil {
		return
	}
	if err := m.archive.SaveRun(context.Background(), run); err != nil {
		log.Printf("ERROR: failed to archive scan %s: %v", run.ID, err)
	}
}

func cloneRun(run *domain.Run) domain.Run {
	out := *run
	if run.WaitingSince != nil {
		ws := *run.WaitingSince
		out.WaitingSince = &ws
	}
	out.Vulnerabilities = append([]domain.Vulnerability(nil), run.Vulnerabilities...)
	return out
}
