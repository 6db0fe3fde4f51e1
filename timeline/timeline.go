// Package timeline persists extracted events into a SQLite database using a
// log2timeline-style flat table, so runs can be reviewed with ordinary
// timeline tooling.
package timeline

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/trailhound/trailhound/event"
	"github.com/trailhound/trailhound/htime"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	datetime TEXT NOT NULL,
	timezone TEXT NOT NULL,
	description TEXT NOT NULL,
	data_type TEXT NOT NULL,
	parser TEXT NOT NULL,
	plugin TEXT NOT NULL,
	filename TEXT NOT NULL,
	extra TEXT NOT NULL,
	run_id TEXT NOT NULL,
	inserted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_datetime ON events (datetime);
`

// Store is a SQLite-backed event sink for one extraction run.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
	runID  string
}

// Open creates or opens the database at path and prepares it for inserts.
func Open(path, runID string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("unable to open timeline database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create timeline schema: %w", err)
	}
	insert, err := db.Prepare(`INSERT INTO events
		(datetime, timezone, description, data_type, parser, plugin, filename, extra, run_id, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to prepare timeline insert: %w", err)
	}
	return &Store{db: db, insert: insert, runID: runID}, nil
}

// Insert writes one event row. Fields beyond the fixed columns travel in
// the extra column as JSON.
func (s *Store) Insert(ev *event.Event, parserName, pluginName, filename string) error {
	dataType := ""
	extra := []byte("{}")
	if ev.Data != nil {
		dataType = ev.Data.Type
		encoded, err := json.Marshal(ev.Data.Fields)
		if err != nil {
			return fmt.Errorf("unable to encode event fields: %w", err)
		}
		extra = encoded
	}
	zone, _ := ev.Timestamp.Zone()
	_, err := s.insert.Exec(
		ev.Timestamp.Format("2006-01-02T15:04:05-07:00"),
		zone,
		ev.Description,
		dataType,
		parserName,
		pluginName,
		filename,
		string(extra),
		s.runID,
		htime.Now().Format("2006-01-02T15:04:05Z"),
	)
	return err
}

// Count returns the number of stored events for this run.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE run_id = ?`, s.runID).Scan(&n)
	return n, err
}

func (s *Store) Close() error {
	s.insert.Close()
	return s.db.Close()
}
