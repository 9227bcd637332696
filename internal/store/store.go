// Package store defines the persistence adapter the engine writes through.
// The engine depends only on the Store interface; the sqlite implementation
// in this package is one durable backend for it.
package store

import (
	"errors"
	"time"

	"github.com/devpulse/devpulse/internal/session"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Filter selects sessions for ListSessions. Zero-valued fields match
// everything.
type Filter struct {
	From          time.Time // inclusive lower bound on StartedAt
	To            time.Time // exclusive upper bound on StartedAt
	ProjectID     string
	Tag           string
	OnlyFinalized bool // restrict to ended / timed_out sessions
	OnlyOpen      bool // restrict to active / paused sessions
	Limit         int  // 0 = unlimited; applies after newest-first ordering
}

// Store persists sessions, their activity timelines, per-file aggregates,
// and projects. Implementations must provide at least atomic single-row
// writes; cross-row transactions are not required by the engine.
type Store interface {
	// SaveSession inserts or fully replaces a session row.
	SaveSession(s *session.Session) error
	// LoadSession returns ErrNotFound if no session has the given id.
	LoadSession(id string) (*session.Session, error)
	// ListSessions returns sessions matching f, newest StartedAt first.
	ListSessions(f Filter) ([]*session.Session, error)

	// AppendActivity stores one immutable timeline row.
	AppendActivity(a session.Activity) error
	// ListActivities returns a session's timeline in recording order.
	ListActivities(sessionID string) ([]session.Activity, error)

	// UpsertSessionFile creates or additively updates the (session, path)
	// aggregate. Increments must be additive under concurrent calls.
	UpsertSessionFile(sessionID, path string, modified, mentioned bool, at time.Time) error
	// ListSessionFiles returns a session's file aggregates ordered by path.
	ListSessionFiles(sessionID string) ([]session.FileStat, error)

	// CreateProject inserts a project row.
	CreateProject(p session.Project) error
	// ProjectByName returns ErrNotFound if no project has the given name.
	ProjectByName(name string) (*session.Project, error)
	// ListProjects returns all projects, newest CreatedAt first.
	ListProjects() ([]session.Project, error)
}
