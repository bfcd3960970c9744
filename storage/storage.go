// Storage module - SQLite data storage

package storage

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB

	// Prepared statements for the hot paths
	stmtAddMessage    *sql.Stmt
	stmtGetMessages   *sql.Stmt
	stmtClearMessages *sql.Stmt
	stmtRecordLookup  *sql.Stmt
	stmtGetConfig     *sql.Stmt
	stmtSetConfig     *sql.Stmt
}

type Message struct {
	ID         int64     `json:"id"`
	SessionKey string    `json:"session_key"`
	Role       string    `json:"role"` // user, assistant, system, tool
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Lookup records one resolved game-metadata lookup
type Lookup struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`  // user-supplied game name
	Title     string    `json:"title"` // canonical page title, may be empty
	View      string    `json:"view"`  // genres, story, developer
	Kind      string    `json:"kind"`  // ok, lookup_failed, not_found, undetermined
	CreatedAt time.Time `json:"created_at"`
}

type Config struct {
	ID        int64     `json:"id"`
	Section   string    `json:"section"` // e.g., "llm", "gateway"
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SessionMeta struct {
	SessionKey  string    `json:"session_key"`
	TotalTokens int       `json:"total_tokens"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path required")
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database connection failed: %v", err)
	}

	s := &Storage{db: db}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to set WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous: %v", err)
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %v", err)
	}

	if err := s.initPreparedStmts(); err != nil {
		log.Printf("[WARN] Failed to prepare statements: %v (continuing without prepared statements)", err)
	}

	log.Printf("[OK] Storage: database %s", dbPath)
	return s, nil
}

func (s *Storage) initPreparedStmts() error {
	var err error

	if s.stmtAddMessage, err = s.db.Prepare("INSERT INTO messages (session_key, role, content) VALUES (?, ?, ?)"); err != nil {
		return fmt.Errorf("AddMessage: %v", err)
	}
	if s.stmtGetMessages, err = s.db.Prepare("SELECT id, session_key, role, content, created_at FROM messages WHERE session_key = ? ORDER BY id ASC LIMIT ?"); err != nil {
		return fmt.Errorf("GetMessages: %v", err)
	}
	if s.stmtClearMessages, err = s.db.Prepare("DELETE FROM messages WHERE session_key = ?"); err != nil {
		return fmt.Errorf("ClearMessages: %v", err)
	}
	if s.stmtRecordLookup, err = s.db.Prepare("INSERT INTO lookups (name, title, view, kind) VALUES (?, ?, ?, ?)"); err != nil {
		return fmt.Errorf("RecordLookup: %v", err)
	}
	if s.stmtGetConfig, err = s.db.Prepare("SELECT value FROM config WHERE section = ? AND key = ?"); err != nil {
		return fmt.Errorf("GetConfig: %v", err)
	}
	if s.stmtSetConfig, err = s.db.Prepare("INSERT INTO config (section, key, value) VALUES (?, ?, ?) ON CONFLICT(section, key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP"); err != nil {
		return fmt.Errorf("SetConfig: %v", err)
	}

	return nil
}

func (s *Storage) initSchema() error {
	// Messages table
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_key TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Lookup history table
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS lookups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			title TEXT DEFAULT '',
			view TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Config table (persistent config)
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS config (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			section TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(section, key)
		)
	`)
	if err != nil {
		return err
	}

	// Session meta
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_meta (
			session_key TEXT PRIMARY KEY,
			total_tokens INTEGER DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Rate limiting table
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			endpoint TEXT NOT NULL,
			key TEXT NOT NULL,
			requests INTEGER DEFAULT 0,
			window_start DATETIME DEFAULT CURRENT_TIMESTAMP,
			max_requests INTEGER DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(endpoint, key)
		)
	`)
	if err != nil {
		return err
	}

	// Indexes
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_key)`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_lookups_created ON lookups(created_at)`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_config_section ON config(section, key)`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_rate_limits_endpoint ON rate_limits(endpoint, key)`); err != nil {
		return err
	}

	return nil
}

// ============ Messages ============

func (s *Storage) AddMessage(sessionKey, role, content string) error {
	if s.stmtAddMessage != nil {
		_, err := s.stmtAddMessage.Exec(sessionKey, role, content)
		return err
	}
	_, err := s.db.Exec(
		"INSERT INTO messages (session_key, role, content) VALUES (?, ?, ?)",
		sessionKey, role, content,
	)
	return err
}

func (s *Storage) GetMessages(sessionKey string, limit int) ([]Message, error) {
	var rows *sql.Rows
	var err error

	if s.stmtGetMessages != nil {
		rows, err = s.stmtGetMessages.Query(sessionKey, limit)
	} else {
		rows, err = s.db.Query(
			"SELECT id, session_key, role, content, created_at FROM messages WHERE session_key = ? ORDER BY id ASC LIMIT ?",
			sessionKey, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionKey, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return msgs, nil
}

func (s *Storage) ClearMessages(sessionKey string) error {
	if s.stmtClearMessages != nil {
		_, err := s.stmtClearMessages.Exec(sessionKey)
		return err
	}
	_, err := s.db.Exec("DELETE FROM messages WHERE session_key = ?", sessionKey)
	return err
}

// ============ Lookups ============

// RecordLookup records a resolved game lookup for the history endpoint
func (s *Storage) RecordLookup(name, title, view, kind string) error {
	if s.stmtRecordLookup != nil {
		_, err := s.stmtRecordLookup.Exec(name, title, view, kind)
		return err
	}
	_, err := s.db.Exec(
		"INSERT INTO lookups (name, title, view, kind) VALUES (?, ?, ?, ?)",
		name, title, view, kind,
	)
	return err
}

// GetRecentLookups returns the most recent lookups, newest first
func (s *Storage) GetRecentLookups(limit int) ([]Lookup, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, name, title, view, kind, created_at FROM lookups ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lookups := make([]Lookup, 0)
	for rows.Next() {
		var l Lookup
		if err := rows.Scan(&l.ID, &l.Name, &l.Title, &l.View, &l.Kind, &l.CreatedAt); err != nil {
			return nil, err
		}
		lookups = append(lookups, l)
	}
	return lookups, rows.Err()
}

// ============ Session Meta ============

func (s *Storage) GetSessionMeta(sessionKey string) (SessionMeta, error) {
	var meta SessionMeta
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT session_key, total_tokens, COALESCE(updated_at, datetime('now'))
		FROM session_meta WHERE session_key = ?
	`, sessionKey).Scan(&meta.SessionKey, &meta.TotalTokens, &updatedAt)
	if err == sql.ErrNoRows {
		return SessionMeta{SessionKey: sessionKey}, nil
	}
	if err == nil {
		meta.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt)
	}
	return meta, err
}

func (s *Storage) UpsertSessionMeta(meta SessionMeta) error {
	_, err := s.db.Exec(`
		INSERT INTO session_meta (session_key, total_tokens, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_key) DO UPDATE SET
			total_tokens=excluded.total_tokens,
			updated_at=CURRENT_TIMESTAMP
	`, meta.SessionKey, meta.TotalTokens)
	return err
}

// ResetSession clears all messages for a session (but keeps the session entry)
func (s *Storage) ResetSession(sessionKey string) error {
	if err := s.ClearMessages(sessionKey); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		UPDATE session_meta SET
			total_tokens = 0,
			updated_at = CURRENT_TIMESTAMP
		WHERE session_key = ?
	`, sessionKey)
	return err
}

func (s *Storage) GetAllSessions() ([]SessionMeta, error) {
	rows, err := s.db.Query(`
		SELECT session_key, total_tokens, updated_at
		FROM session_meta
		ORDER BY updated_at DESC
		LIMIT 50
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionMeta
	for rows.Next() {
		var m SessionMeta
		if err := rows.Scan(&m.SessionKey, &m.TotalTokens, &m.UpdatedAt); err != nil {
			continue
		}
		sessions = append(sessions, m)
	}
	return sessions, rows.Err()
}

// ============ Config (persistence) ============

// SetConfig writes a config entry to the database
func (s *Storage) SetConfig(section, key, value string) error {
	if s.stmtSetConfig != nil {
		_, err := s.stmtSetConfig.Exec(section, key, value)
		return err
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO config (section, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		section, key, value,
	)
	return err
}

// GetConfig reads a config value
func (s *Storage) GetConfig(section, key string) (string, error) {
	var value string
	var err error
	if s.stmtGetConfig != nil {
		err = s.stmtGetConfig.QueryRow(section, key).Scan(&value)
	} else {
		err = s.db.QueryRow("SELECT value FROM config WHERE section = ? AND key = ?", section, key).Scan(&value)
	}
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetConfigSection reads all config values in a section
func (s *Storage) GetConfigSection(section string) (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM config WHERE section = ?", section)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	config := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		config[key] = value
	}
	return config, rows.Err()
}

// DeleteConfig deletes a config entry
func (s *Storage) DeleteConfig(section, key string) error {
	_, err := s.db.Exec("DELETE FROM config WHERE section = ? AND key = ?", section, key)
	return err
}

// ============ Rate Limiting ============

type RateLimit struct {
	ID          int64     `json:"id"`
	Endpoint    string    `json:"endpoint"`
	Key         string    `json:"key"`
	Requests    int       `json:"requests"`
	WindowStart time.Time `json:"window_start"`
	MaxRequests int       `json:"max_requests"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SetRateLimit sets the rate limit for an endpoint/key
func (s *Storage) SetRateLimit(endpoint, key string, maxRequests int) error {
	_, err := s.db.Exec(`
		INSERT INTO rate_limits (endpoint, key, max_requests, requests, window_start)
		VALUES (?, ?, ?, 0, CURRENT_TIMESTAMP)
		ON CONFLICT(endpoint, key) DO UPDATE SET
			max_requests = excluded.max_requests,
			updated_at = CURRENT_TIMESTAMP
	`, endpoint, key, maxRequests)
	return err
}

// GetRateLimit gets the rate limit status for an endpoint/key
func (s *Storage) GetRateLimit(endpoint, key string) (*RateLimit, error) {
	var r RateLimit
	err := s.db.QueryRow(`
		SELECT id, endpoint, key, requests, window_start, max_requests, updated_at
		FROM rate_limits
		WHERE endpoint = ? AND key = ?
	`, endpoint, key).Scan(&r.ID, &r.Endpoint, &r.Key, &r.Requests, &r.WindowStart, &r.MaxRequests, &r.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No limit set = unlimited
		}
		return nil, err
	}
	return &r, nil
}

// CheckRateLimit checks if a request is allowed, returns true if allowed.
// The check-and-increment is a single UPDATE so concurrent requests cannot
// exceed the limit.
func (s *Storage) CheckRateLimit(endpoint, key string) (bool, error) {
	limit, err := s.GetRateLimit(endpoint, key)
	if err != nil {
		return false, err
	}
	// No limit configured = unlimited
	if limit == nil || limit.MaxRequests == 0 {
		return true, nil
	}

	// Window resets after an hour
	if time.Since(limit.WindowStart) > time.Hour {
		_, err := s.db.Exec(`
			UPDATE rate_limits
			SET requests = 1, window_start = CURRENT_TIMESTAMP
			WHERE endpoint = ? AND key = ?
		`, endpoint, key)
		if err != nil {
			return false, err
		}
		return true, nil
	}

	result, err := s.db.Exec(`
		UPDATE rate_limits
		SET requests = requests + 1
		WHERE endpoint = ? AND key = ? AND requests < max_requests
	`, endpoint, key)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// DeleteRateLimit removes a rate limit config
func (s *Storage) DeleteRateLimit(endpoint, key string) error {
	_, err := s.db.Exec(`DELETE FROM rate_limits WHERE endpoint = ? AND key = ?`, endpoint, key)
	return err
}

// ============ Misc ============

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Stats() (map[string]int, error) {
	stats := make(map[string]int)

	row := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM lookups),
			(SELECT COUNT(*) FROM session_meta)
	`)
	var msgs, lookups, sessions int
	if err := row.Scan(&msgs, &lookups, &sessions); err != nil {
		return nil, err
	}
	stats["messages"] = msgs
	stats["lookups"] = lookups
	stats["sessions"] = sessions

	return stats, nil
}
