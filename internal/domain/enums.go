// Package domain defines the core domain models for the scan control plane.
package domain

// ScanStatus represents the status of a scan run.
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusRunning   ScanStatus = "running"
	StatusWaiting   ScanStatus = "waiting"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
)

// Terminal reports whether the status is final.
func (s ScanStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a run may move from s to next.
func (s ScanStatus) CanTransition(next ScanStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusWaiting || next == StatusCompleted || next == StatusFailed
	case StatusWaiting:
		return next == StatusRunning || next == StatusCompleted || next == StatusFailed
	}
	return false
}

// EventKind represents the type of an event.
type EventKind string

const (
	EventKindChat         EventKind = "chat"
	EventKindToolCall     EventKind = "tool_call"
	EventKindToolResult   EventKind = "tool_result"
	EventKindStatusChange EventKind = "status_change"
	EventKindFinding      EventKind = "finding"
	EventKindError        EventKind = "error"
)

// TargetType classifies a scan target.
type TargetType string

const (
	TargetTypeURL    TargetType = "url"
	TargetTypeDomain TargetType = "domain"
	TargetTypeIP     TargetType = "ip"
)
