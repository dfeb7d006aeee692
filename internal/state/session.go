package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mwhitaker/conclave/internal/shared"
	"github.com/mwhitaker/conclave/pkg/models"
)

// SessionStatus represents the status of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCanceled  SessionStatus = "canceled"
)

// Session represents one orchestration run.
type Session struct {
	ID         string               `json:"id"`
	Task       string               `json:"task"`
	Mode       models.ExecutionMode `json:"mode"`
	Success    bool                 `json:"success"`
	Summary    string               `json:"summary"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at"`
	Status     SessionStatus        `json:"status"`
}

// CreateSession creates a new session row.
func (db *DB) CreateSession(s *Session) error {
	var finished interface{}
	if s.FinishedAt != nil {
		finished = formatTime(*s.FinishedAt)
	}
	_, err := db.Exec(`
		INSERT INTO sessions (id, task, mode, success, summary, started_at, finished_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Task, string(s.Mode), boolToInt(s.Success), s.Summary,
		formatTime(s.StartedAt), finished, string(s.Status))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`
		SELECT id, task, mode, success, summary, started_at, finished_at, status
		FROM sessions WHERE id = ?
	`, id)

	var s Session
	var success int
	var summary sql.NullString
	var startedAt string
	var finishedAt sql.NullString
	err := row.Scan(&s.ID, &s.Task, &s.Mode, &success, &summary, &startedAt, &finishedAt, &s.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	s.Success = success != 0
	s.Summary = summary.String
	s.StartedAt, _ = parseTime(startedAt)
	if finishedAt.Valid {
		if t, err := parseTime(finishedAt.String); err == nil {
			s.FinishedAt = &t
		}
	}
	return &s, nil
}

// UpdateSession updates a session row.
func (db *DB) UpdateSession(s *Session) error {
	var finished interface{}
	if s.FinishedAt != nil {
		finished = formatTime(*s.FinishedAt)
	}
	_, err := db.Exec(`
		UPDATE sessions SET task = ?, mode = ?, success = ?, summary = ?, finished_at = ?, status = ?
		WHERE id = ?
	`, s.Task, string(s.Mode), boolToInt(s.Success), s.Summary, finished, string(s.Status), s.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// ListSessions returns sessions newest-first, up to limit. A limit of
// zero returns all sessions.
func (db *DB) ListSessions(limit int) ([]*Session, error) {
	query := `
		SELECT id, task, mode, success, summary, started_at, finished_at, status
		FROM sessions ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var s Session
		var success int
		var summary sql.NullString
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&s.ID, &s.Task, &s.Mode, &success, &summary, &startedAt, &finishedAt, &s.Status); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Success = success != 0
		s.Summary = summary.String
		s.StartedAt, _ = parseTime(startedAt)
		if finishedAt.Valid {
			if t, err := parseTime(finishedAt.String); err == nil {
				s.FinishedAt = &t
			}
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// SaveResults stores a run's task results under the session.
func (db *DB) SaveResults(sessionID string, results []*models.Result) error {
	return db.Transaction(func(tx *sql.Tx) error {
		for i, r := range results {
			_, err := tx.Exec(`
				INSERT INTO results (session_id, seq, agent, task, output, success, duration_ms, error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, sessionID, i, string(r.Agent), r.Task, r.Output, boolToInt(r.Success),
				r.Duration.Milliseconds(), r.Error)
			if err != nil {
				return fmt.Errorf("save result %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetResults loads a session's task results in original order.
func (db *DB) GetResults(sessionID string) ([]*models.Result, error) {
	rows, err := db.Query(`
		SELECT agent, task, output, success, duration_ms, error
		FROM results WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	defer rows.Close()

	var results []*models.Result
	for rows.Next() {
		var r models.Result
		var output, errMsg sql.NullString
		var success int
		var durationMs int64
		if err := rows.Scan(&r.Agent, &r.Task, &output, &success, &durationMs, &errMsg); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Output = output.String
		r.Success = success != 0
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.Error = errMsg.String
		results = append(results, &r)
	}
	return results, rows.Err()
}

// SaveMessages stores a run's message history under the session.
func (db *DB) SaveMessages(sessionID string, messages []models.Message) error {
	return db.Transaction(func(tx *sql.Tx) error {
		for i, m := range messages {
			meta, err := json.Marshal(m.Meta)
			if err != nil {
				return fmt.Errorf("marshal meta: %w", err)
			}
			_, err = tx.Exec(`
				INSERT INTO messages (session_id, seq, id, sender, recipient, kind, content, timestamp, meta)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, sessionID, i, m.ID, m.From, m.To, string(m.Kind), m.Content,
				formatTime(m.Timestamp), string(meta))
			if err != nil {
				return fmt.Errorf("save message %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetMessages loads a session's message history in record order.
func (db *DB) GetMessages(sessionID string) ([]models.Message, error) {
	rows, err := db.Query(`
		SELECT id, sender, recipient, kind, content, timestamp, meta
		FROM messages WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var content, meta sql.NullString
		var timestamp string
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Kind, &content, &timestamp, &meta); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Content = content.String
		m.Timestamp, _ = parseTime(timestamp)
		if meta.Valid && meta.String != "" {
			json.Unmarshal([]byte(meta.String), &m.Meta)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SaveContext stores a shared store's entries under the session,
// replacing any previous snapshot for it.
func (db *DB) SaveContext(sessionID string, store *shared.Store) error {
	entries := store.Entries()
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM context_entries WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("clear context: %w", err)
		}
		for _, e := range entries {
			value, err := json.Marshal(e.Value)
			if err != nil {
				return fmt.Errorf("marshal value for %s: %w", e.Key, err)
			}
			_, err = tx.Exec(`
				INSERT INTO context_entries (session_id, key, value, set_by, version, timestamp)
				VALUES (?, ?, ?, ?, ?, ?)
			`, sessionID, e.Key, string(value), e.SetBy, e.Version, formatTime(e.Timestamp))
			if err != nil {
				return fmt.Errorf("save context entry %s: %w", e.Key, err)
			}
		}
		return nil
	})
}

// LoadContext replays a session's context snapshot into the store.
// Each key becomes a fresh write, so versions and listeners behave as
// for manual sets.
func (db *DB) LoadContext(sessionID string, store *shared.Store, setBy string) error {
	rows, err := db.Query(`
		SELECT key, value FROM context_entries WHERE session_id = ? ORDER BY version
	`, sessionID)
	if err != nil {
		return fmt.Errorf("load context: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var raw sql.NullString
		if err := rows.Scan(&key, &raw); err != nil {
			return fmt.Errorf("scan context entry: %w", err)
		}
		var value interface{}
		if raw.Valid && raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &value); err != nil {
				return fmt.Errorf("unmarshal value for %s: %w", key, err)
			}
		}
		store.Set(key, value, setBy)
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
