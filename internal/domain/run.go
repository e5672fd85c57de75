package domain

import "time"

// Run is the state container for one scan. The scan manager exclusively owns
// all mutable fields; everything handed out of the manager is a Snapshot.
type Run struct {
	ID              string
	Target          string
	TargetType      TargetType
	Instruction     string
	Status          ScanStatus
	RootAgentID     string
	WaitingSince    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Report          string
	Error           string
	Vulnerabilities []Vulnerability
}

// Vulnerability is one finding reported by the agent during a run.
type Vulnerability struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Content  string `json:"content"`
	Ts       int64  `json:"ts"` // Unix milliseconds
}

// RunSnapshot is the read-only view of a run exposed over the API.
type RunSnapshot struct {
	ID                 string     `json:"scan_id"`
	Target             string     `json:"target"`
	TargetType         TargetType `json:"target_type"`
	Instruction        string     `json:"instruction,omitempty"`
	Status             ScanStatus `json:"status"`
	WaitingForInput    bool       `json:"waiting_for_input"`
	WaitingSince       *time.Time `json:"waiting_since,omitempty"`
	RootAgentID        string     `json:"root_agent_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	VulnerabilityCount int        `json:"vulnerability_count"`
	HasReport          bool       `json:"has_report"`
	Error              string     `json:"error,omitempty"`
}

// Snapshot copies the run's observable state. Callers must hold the run's
// lock; the returned value shares nothing mutable with the run.
func (r *Run) Snapshot() RunSnapshot {
	snap := RunSnapshot{
		ID:                 r.ID,
		Target:             r.Target,
		TargetType:         r.TargetType,
		Instruction:        r.Instruction,
		Status:             r.Status,
		WaitingForInput:    r.Status == StatusWaiting,
		RootAgentID:        r.RootAgentID,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		VulnerabilityCount: len(r.Vulnerabilities),
		HasReport:          r.Report != "",
		Error:              r.Error,
	}
	if r.WaitingSince != nil {
		since := *r.WaitingSince
		snap.WaitingSince = &since
	}
	return snap
}
