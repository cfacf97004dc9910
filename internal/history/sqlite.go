package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteSink appends execution records to a local SQLite database.
type SQLiteSink struct {
	mu   sync.Mutex
	conn *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the history database at path.
// Parent directories are created and WAL mode is enabled for concurrent
// reads.
func OpenSQLite(path string) (*SQLiteSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteSink{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies pending schema migrations.
func (s *SQLiteSink) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, `CREATE TABLE IF NOT EXISTS executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME,
			completed_at DATETIME
		)`},
		{2, `CREATE INDEX IF NOT EXISTS idx_executions_task ON executions(task_id)`},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.conn.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.conn.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Record appends an execution entry.
func (s *SQLiteSink) Record(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		INSERT INTO executions (task_id, agent_name, status, detail, retry_count, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.AgentName, e.Status, e.Detail, e.RetryCount, e.StartedAt, e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first. Operator-facing;
// the scheduler never calls this.
func (s *SQLiteSink) Recent(limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.Query(`
		SELECT task_id, agent_name, status, detail, retry_count, started_at, completed_at
		FROM executions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TaskID, &e.AgentName, &e.Status, &e.Detail, &e.RetryCount, &e.StartedAt, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (s *SQLiteSink) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
