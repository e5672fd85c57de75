// Package archive mirrors run state and events into SQLite so completed
// scans remain inspectable on disk. The archive is write-behind and optional:
// the in-memory control plane never depends on it.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wardenhq/warden/internal/domain"
)

// Archive persists scan history to SQLite.
type Archive struct {
	db *sql.DB
}

// Open opens (and migrates) the archive database at dsn.
func Open(dsn string) (*Archive, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection so the schema survives across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return a, nil
}

func (a *Archive) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			scan_id TEXT PRIMARY KEY,
			target TEXT NOT NULL,
			target_type TEXT NOT NULL,
			instruction TEXT,
			status TEXT NOT NULL,
			root_agent_id TEXT,
			waiting_since DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			report TEXT,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			scan_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT,
			PRIMARY KEY (scan_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS vulnerabilities (
			vuln_id TEXT PRIMARY KEY,
			scan_id TEXT NOT NULL,
			title TEXT NOT NULL,
			severity TEXT NOT NULL,
			content TEXT,
			ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vulnerabilities_scan ON vulnerabilities(scan_id, ts)`,
	}

	for _, migration := range migrations {
		if _, err := a.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun upserts the run's current state.
func (a *Archive) SaveRun(ctx context.Context, run *domain.Run) error {
	var waitingSince *time.Time
	if run.WaitingSince != nil {
		ws := *run.WaitingSince
		waitingSince = &ws
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO scans (scan_id, target, target_type, instruction, status, root_agent_id, waiting_since, created_at, updated_at, report, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id) DO UPDATE SET
			status = excluded.status,
			root_agent_id = excluded.root_agent_id,
			waiting_since = excluded.waiting_since,
			updated_at = excluded.updated_at,
			report = excluded.report,
			error = excluded.error`,
		run.ID, run.Target, string(run.TargetType), run.Instruction, string(run.Status),
		run.RootAgentID, waitingSince, run.CreatedAt, run.UpdatedAt, run.Report, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}
	return nil
}

// SaveEvent records one event. Re-recording a seq is a no-op; events are
// immutable once appended.
func (a *Archive) SaveEvent(ctx context.Context, event domain.Event) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (scan_id, seq, ts, kind, payload)
		VALUES (?, ?, ?, ?, ?)`,
		event.ScanID, event.Seq, event.Ts, string(event.Kind), string(event.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// SaveVulnerability records one finding.
func (a *Archive) SaveVulnerability(ctx context.Context, scanID string, v domain.Vulnerability) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO vulnerabilities (vuln_id, scan_id, title, severity, content, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, scanID, v.Title, v.Severity, v.Content, v.Ts,
	)
	if err != nil {
		return fmt.Errorf("failed to save vulnerability: %w", err)
	}
	return nil
}

// GetRun loads an archived run, or nil if unknown.
func (a *Archive) GetRun(ctx context.Context, scanID string) (*domain.Run, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT scan_id, target, target_type, instruction, status, root_agent_id, waiting_since, created_at, updated_at, report, error
		FROM scans WHERE scan_id = ?`, scanID)

	var run domain.Run
	var targetType, status string
	var instruction, rootAgentID, report, errMsg sql.NullString
	var waitingSince sql.NullTime
	err := row.Scan(&run.ID, &run.Target, &targetType, &instruction, &status,
		&rootAgentID, &waitingSince, &run.CreatedAt, &run.UpdatedAt, &report, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	run.TargetType = domain.TargetType(targetType)
	run.Status = domain.ScanStatus(status)
	run.Instruction = instruction.String
	run.RootAgentID = rootAgentID.String
	run.Report = report.String
	run.Error = errMsg.String
	if waitingSince.Valid {
		ws := waitingSince.Time
		run.WaitingSince = &ws
	}
	return &run, nil
}

// ListEvents returns archived events with seq > afterSeq in order.
func (a *Archive) ListEvents(ctx context.Context, scanID string, afterSeq int64) ([]domain.Event, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT scan_id, seq, ts, kind, payload
		FROM events WHERE scan_id = ? AND seq > ? ORDER BY seq ASC`, scanID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var kind string
		var payload sql.NullString
		if err := rows.Scan(&ev.ScanID, &ev.Seq, &ev.Ts, &kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		if payload.Valid && payload.String != "" {
			ev.Payload = []byte(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
