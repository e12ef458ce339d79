// Package audit keeps a durable trail of journal activity in SQLite:
// every recorded change, every rollback and the undo commands it ran.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"grimm.is/selab/internal/clock"
	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/rollback"
)

// Event kinds.
const (
	KindRecorded   = "recorded"
	KindRolledBack = "rolled_back"
	KindFailed     = "rollback_failed"
)

// Event represents a single audit log entry.
type Event struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	User        string    `json:"user"`
	Session     string    `json:"session,omitempty"`
	Kind        string    `json:"kind"`
	RecordID    string    `json:"record_id"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	Commands    []string  `json:"commands,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Store provides persistent storage for audit events.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	retentionDays int
}

// NewStore creates a new audit store at the given path.
func NewStore(dbPath string, retentionDays int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS journal_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			user TEXT NOT NULL,
			session TEXT,
			kind TEXT NOT NULL,
			record_id TEXT NOT NULL,
			action TEXT NOT NULL,
			description TEXT,
			commands TEXT,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_journal_timestamp ON journal_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_journal_record ON journal_events(record_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = 90
	}

	return &Store{db: db, retentionDays: retentionDays}, nil
}

// Write persists an audit event.
func (s *Store) Write(evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmds, err := json.Marshal(evt.Commands)
	if err != nil {
		cmds = []byte("[]")
	}

	_, err = s.db.Exec(`
		INSERT INTO journal_events (timestamp, user, session, kind, record_id, action, description, commands, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.Timestamp.UTC(), evt.User, evt.Session, evt.Kind, evt.RecordID, evt.Action, evt.Description, string(cmds), evt.Error)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns events newest first. An empty recordID matches all
// records; a non-positive limit returns everything.
func (s *Store) Query(recordID string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, timestamp, user, session, kind, record_id, action, description, commands, error
		FROM journal_events`
	var args []any
	if recordID != "" {
		query += " WHERE record_id = ?"
		args = append(args, recordID)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		var session, description, commands, errText sql.NullString

		if err := rows.Scan(&evt.ID, &evt.Timestamp, &evt.User, &session, &evt.Kind, &evt.RecordID,
			&evt.Action, &description, &commands, &errText); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		evt.Session = session.String
		evt.Description = description.String
		evt.Error = errText.String
		if commands.Valid && commands.String != "" {
			_ = json.Unmarshal([]byte(commands.String), &evt.Commands)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Prune removes events older than the retention period.
func (s *Store) Prune() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := clock.Now().UTC().AddDate(0, 0, -s.retentionDays)
	result, err := s.db.Exec("DELETE FROM journal_events WHERE timestamp < ?", cutoff)
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
	err := s.db.QueryRow("SELECT COUNT(*) FROM journal_events").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Recorder adapts a Store to the journal's observer hooks. Every event of
// one process run shares a session id.
type Recorder struct {
	store   *Store
	session string
	user    string
	logger  *logging.Logger
}

var _ rollback.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder with a fresh session id.
func NewRecorder(store *Store, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.WithComponent("audit")
	}
	name := "unknown"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	return &Recorder{store: store, session: uuid.NewString(), user: name, logger: logger}
}

// Session returns the session id stamped on events.
func (r *Recorder) Session() string { return r.session }

func (r *Recorder) ChangeRecorded(rec rollback.ChangeRecord) {
	r.write(Event{Kind: KindRecorded, RecordID: rec.ID, Action: rec.Action, Description: rec.Description, Commands: rec.RollbackCommands})
}

func (r *Recorder) RolledBack(marker, undone rollback.ChangeRecord) {
	r.write(Event{Kind: KindRolledBack, RecordID: undone.ID, Action: undone.Action, Description: marker.Description, Commands: marker.AppliedCommands})
}

func (r *Recorder) RollbackFailed(rec rollback.ChangeRecord, err error) {
	r.write(Event{Kind: KindFailed, RecordID: rec.ID, Action: rec.Action, Description: rec.Description, Commands: rec.AppliedCommands, Error: err.Error()})
}

// SaveFailed is tracked by metrics and the log; nothing to store here.
func (r *Recorder) SaveFailed(error) {}

func (r *Recorder) write(evt Event) {
	evt.Timestamp = clock.Now()
	evt.User = r.user
	evt.Session = r.session
	if err := r.store.Write(evt); err != nil {
		r.logger.Warn("audit write failed", "record", evt.RecordID, "error", err)
		return
	}
	r.logger.Audit(evt.Kind, evt.RecordID, map[string]any{"action": evt.Action, "session": r.session})
}
