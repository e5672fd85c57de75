package domain

import "encoding/json"

// Event is one immutable, ordered record of something that happened during a
// run. Seq is assigned at append time and is gapless from 1 within a run.
type Event struct {
	Seq     int64           `json:"seq"`
	ScanID  string          `json:"scan_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
