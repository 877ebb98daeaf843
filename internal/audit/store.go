// Package audit persists a record of every privileged command the control
// plane executes.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Outcomes recorded for a command.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Event is a single executed (or rejected) command.
type Event struct {
	ID        int64             `json:"id" yaml:"id"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	Caller    string            `json:"caller" yaml:"caller"`
	Action    string            `json:"action" yaml:"action"`
	Command   string            `json:"command" yaml:"command"`
	Outcome   string            `json:"outcome" yaml:"outcome"`
	Duration  time.Duration     `json:"duration_ns" yaml:"duration"`
	Details   map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Since   time.Time
	Until   time.Time
	Action  string
	Outcome string
	Limit   int
}

// Store provides persistent storage for audit events.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	retentionDays int
}

// NewStore opens (or creates) the audit database at dbPath.
func NewStore(dbPath string, retentionDays int) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS command_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			caller TEXT NOT NULL,
			action TEXT NOT NULL,
			command TEXT NOT NULL,
			outcome TEXT NOT NULL,
			duration_ns INTEGER DEFAULT 0,
			details TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_command_timestamp ON command_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_command_action ON command_events(action);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = 30
	}

	return &Store{db: db, retentionDays: retentionDays}, nil
}

// Write persists an audit event.
func (s *Store) Write(evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	var details []byte
	if evt.Details != nil {
		var err error
		details, err = json.Marshal(evt.Details)
		if err != nil {
			details = []byte("{}")
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO command_events (timestamp, caller, action, command, outcome, duration_ns, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, evt.Timestamp.UTC(), evt.Caller, evt.Action, evt.Command, evt.Outcome, int64(evt.Duration), string(details))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns events matching f, newest first.
func (s *Store) Query(f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, timestamp, caller, action, command, outcome, duration_ns, details
		FROM command_events WHERE 1=1`
	var args []any

	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UTC())
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, f.Outcome)
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		var duration int64
		var details sql.NullString

		if err := rows.Scan(&evt.ID, &evt.Timestamp, &evt.Caller, &evt.Action,
			&evt.Command, &evt.Outcome, &duration, &details); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Duration = time.Duration(duration)
		if details.Valid && details.String != "" {
			json.Unmarshal([]byte(details.String), &evt.Details)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Prune removes events older than the retention period.
func (s *Store) Prune() (int64, error) {
	return s.PruneBefore(time.Now().AddDate(0, 0, -s.retentionDays))
}

// PruneBefore removes events older than cutoff.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM command_events WHERE timestamp < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of events in the store.
func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM command_events").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
