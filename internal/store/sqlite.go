package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/devpulse/devpulse/internal/session"
)

// sqliteStore is the durable Store backed by a single SQLite file.
type sqliteStore struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dbPath, runs schema
// initialization, and configures WAL mode for concurrent reads.
func Open(dbPath string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

// DefaultPath returns the database location under the XDG data directory:
// $XDG_DATA_HOME/devpulse/devpulse.db or ~/.local/share/devpulse/devpulse.db.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "devpulse", "devpulse.db"), nil
}

// initSchema creates all tables. Every statement is idempotent so it is
// safe to run on every open.
func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id                  TEXT PRIMARY KEY,
			project_id          TEXT NOT NULL,
			started_at          INTEGER NOT NULL,
			ended_at            INTEGER,
			last_activity_at    INTEGER NOT NULL,
			status              TEXT NOT NULL,
			goal                TEXT NOT NULL DEFAULT '',
			tags                TEXT NOT NULL DEFAULT '[]',
			model               TEXT NOT NULL DEFAULT '',
			tasks_created       INTEGER NOT NULL DEFAULT 0,
			tasks_completed     INTEGER NOT NULL DEFAULT 0,
			tasks_in_progress   INTEGER NOT NULL DEFAULT 0,
			tasks_todo          INTEGER NOT NULL DEFAULT 0,
			context_items_added INTEGER NOT NULL DEFAULT 0,
			decisions_made      INTEGER NOT NULL DEFAULT 0,
			loc_added           INTEGER NOT NULL DEFAULT 0,
			loc_removed         INTEGER NOT NULL DEFAULT 0,
			productivity_score  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id)`,
		`CREATE TABLE IF NOT EXISTS session_activities (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			type        TEXT NOT NULL,
			task_id     TEXT NOT NULL DEFAULT '',
			context_id  TEXT NOT NULL DEFAULT '',
			decision_id TEXT NOT NULL DEFAULT '',
			file_path   TEXT NOT NULL DEFAULT '',
			ai_assisted INTEGER NOT NULL DEFAULT 0,
			note        TEXT NOT NULL DEFAULT '',
			timestamp   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_session ON session_activities(session_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS session_files (
			session_id       TEXT NOT NULL,
			path             TEXT NOT NULL,
			times_modified   INTEGER NOT NULL DEFAULT 0,
			times_mentioned  INTEGER NOT NULL DEFAULT 0,
			first_touched_at INTEGER NOT NULL,
			last_touched_at  INTEGER NOT NULL,
			PRIMARY KEY (session_id, path)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Timestamps are stored as unix nanoseconds so round-trips preserve the
// engine's full precision.

func toNano(t time.Time) int64 { return t.UnixNano() }

func fromNano(n int64) time.Time { return time.Unix(0, n).UTC() }

func (s *sqliteStore) SaveSession(sess *session.Session) error {
	tags, err := json.Marshal(sess.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	var endedAt sql.NullInt64
	if sess.EndedAt != nil {
		endedAt = sql.NullInt64{Int64: toNano(*sess.EndedAt), Valid: true}
	}
	var score sql.NullInt64
	if sess.Score != nil {
		score = sql.NullInt64{Int64: int64(*sess.Score), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (
			id, project_id, started_at, ended_at, last_activity_at, status,
			goal, tags, model,
			tasks_created, tasks_completed, tasks_in_progress, tasks_todo,
			context_items_added, decisions_made,
			loc_added, loc_removed, productivity_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id          = excluded.project_id,
			started_at          = excluded.started_at,
			ended_at            = excluded.ended_at,
			last_activity_at    = excluded.last_activity_at,
			status              = excluded.status,
			goal                = excluded.goal,
			tags                = excluded.tags,
			model               = excluded.model,
			tasks_created       = excluded.tasks_created,
			tasks_completed     = excluded.tasks_completed,
			tasks_in_progress   = excluded.tasks_in_progress,
			tasks_todo          = excluded.tasks_todo,
			context_items_added = excluded.context_items_added,
			decisions_made      = excluded.decisions_made,
			loc_added           = excluded.loc_added,
			loc_removed         = excluded.loc_removed,
			productivity_score  = excluded.productivity_score
	`,
		sess.ID, sess.ProjectID, toNano(sess.StartedAt), endedAt,
		toNano(sess.LastActivityAt), string(sess.Status),
		sess.Goal, string(tags), sess.Model,
		sess.Counters.TasksCreated, sess.Counters.TasksCompleted,
		sess.Counters.TasksInProgress, sess.Counters.TasksTodo,
		sess.Counters.ContextItemsAdded, sess.Counters.DecisionsMade,
		sess.LOCAdded, sess.LOCRemoved, score,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

const sessionColumns = `
	id, project_id, started_at, ended_at, last_activity_at, status,
	goal, tags, model,
	tasks_created, tasks_completed, tasks_in_progress, tasks_todo,
	context_items_added, decisions_made,
	loc_added, loc_removed, productivity_score`

// scanSession maps one sessions row onto a Session.
func scanSession(row interface{ Scan(...any) error }) (*session.Session, error) {
	var (
		sess             session.Session
		startedAt, lastA int64
		endedAt, score   sql.NullInt64
		status, tags     string
	)
	err := row.Scan(
		&sess.ID, &sess.ProjectID, &startedAt, &endedAt, &lastA, &status,
		&sess.Goal, &tags, &sess.Model,
		&sess.Counters.TasksCreated, &sess.Counters.TasksCompleted,
		&sess.Counters.TasksInProgress, &sess.Counters.TasksTodo,
		&sess.Counters.ContextItemsAdded, &sess.Counters.DecisionsMade,
		&sess.LOCAdded, &sess.LOCRemoved, &score,
	)
	if err != nil {
		return nil, err
	}

	sess.StartedAt = fromNano(startedAt)
	sess.LastActivityAt = fromNano(lastA)
	sess.Status = session.Status(status)
	if endedAt.Valid {
		t := fromNano(endedAt.Int64)
		sess.EndedAt = &t
	}
	if score.Valid {
		v := int(score.Int64)
		sess.Score = &v
	}
	if err := json.Unmarshal([]byte(tags), &sess.Tags); err != nil {
		return nil, fmt.Errorf("parse tags: %w", err)
	}
	return &sess, nil
}

func (s *sqliteStore) LoadSession(id string) (*session.Session, error) {
	row := s.db.QueryRow(`SELECT`+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func (s *sqliteStore) ListSessions(f Filter) ([]*session.Session, error) {
	var (
		conds []string
		args  []any
	)
	if !f.From.IsZero() {
		conds = append(conds, "started_at >= ?")
		args = append(args, toNano(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "started_at < ?")
		args = append(args, toNano(f.To))
	}
	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.OnlyFinalized {
		conds = append(conds, "status IN (?, ?)")
		args = append(args, string(session.StatusEnded), string(session.StatusTimedOut))
	}
	if f.OnlyOpen {
		conds = append(conds, "status IN (?, ?)")
		args = append(args, string(session.StatusActive), string(session.StatusPaused))
	}

	query := `SELECT` + sessionColumns + ` FROM sessions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		// Tag filtering happens here rather than in SQL; tags are stored
		// as a JSON array and the lists involved are small.
		if f.Tag != "" && !slices.Contains(sess.Tags, f.Tag) {
			continue
		}
		out = append(out, sess)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendActivity(a session.Activity) error {
	_, err := s.db.Exec(`
		INSERT INTO session_activities (
			id, session_id, type, task_id, context_id, decision_id,
			file_path, ai_assisted, note, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.SessionID, string(a.Type), a.TaskID, a.ContextID, a.DecisionID,
		a.FilePath, a.AIAssisted, a.Note, toNano(a.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListActivities(sessionID string) ([]session.Activity, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, type, task_id, context_id, decision_id,
		       file_path, ai_assisted, note, timestamp
		FROM session_activities WHERE session_id = ? ORDER BY timestamp, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []session.Activity
	for rows.Next() {
		var (
			a   session.Activity
			typ string
			ts  int64
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &typ, &a.TaskID, &a.ContextID,
			&a.DecisionID, &a.FilePath, &a.AIAssisted, &a.Note, &ts); err != nil {
			return nil, fmt.Errorf("list activities: %w", err)
		}
		a.Type = session.ActivityType(typ)
		a.Timestamp = fromNano(ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertSessionFile relies on SQLite's conflict clause so concurrent touches
// of the same path are additive, never overwritten.
func (s *sqliteStore) UpsertSessionFile(sessionID, path string, modified, mentioned bool, at time.Time) error {
	mod, men := 0, 0
	if modified {
		mod = 1
	}
	if mentioned {
		men = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO session_files (
			session_id, path, times_modified, times_mentioned,
			first_touched_at, last_touched_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, path) DO UPDATE SET
			times_modified  = times_modified + excluded.times_modified,
			times_mentioned = times_mentioned + excluded.times_mentioned,
			last_touched_at = excluded.last_touched_at
	`, sessionID, path, mod, men, toNano(at), toNano(at))
	if err != nil {
		return fmt.Errorf("upsert session file: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListSessionFiles(sessionID string) ([]session.FileStat, error) {
	rows, err := s.db.Query(`
		SELECT session_id, path, times_modified, times_mentioned,
		       first_touched_at, last_touched_at
		FROM session_files WHERE session_id = ? ORDER BY path
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session files: %w", err)
	}
	defer rows.Close()

	var out []session.FileStat
	for rows.Next() {
		var (
			fstat       session.FileStat
			first, last int64
		)
		if err := rows.Scan(&fstat.SessionID, &fstat.Path, &fstat.TimesModified,
			&fstat.TimesMentioned, &first, &last); err != nil {
			return nil, fmt.Errorf("list session files: %w", err)
		}
		fstat.FirstTouchedAt = fromNano(first)
		fstat.LastTouchedAt = fromNano(last)
		out = append(out, fstat)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CreateProject(p session.Project) error {
	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)
	`, p.ID, p.Name, toNano(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *sqliteStore) ProjectByName(name string) (*session.Project, error) {
	var (
		p       session.Project
		created int64
	)
	err := s.db.QueryRow(`
		SELECT id, name, created_at FROM projects WHERE name = ?
	`, name).Scan(&p.ID, &p.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project by name: %w", err)
	}
	p.CreatedAt = fromNano(created)
	return &p, nil
}

func (s *sqliteStore) ListProjects() ([]session.Project, error) {
	rows, err := s.db.Query(`SELECT id, name, created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []session.Project
	for rows.Next() {
		var (
			p       session.Project
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &created); err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		p.CreatedAt = fromNano(created)
		out = append(out, p)
	}
	return out, rows.Err()
}
