// Package activity records the discrete events that occur inside a session
// and keeps the per-file touch aggregates.
package activity

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/devpulse/devpulse/internal/session"
)

// Sessions is the slice of the lifecycle manager the recorder needs: an
// atomic mutate-and-touch on the open session.
type Sessions interface {
	Apply(sessionID string, fn func(*session.Session)) error
}

// Appender is the slice of the persistence adapter the recorder writes
// timeline rows and file aggregates through.
type Appender interface {
	AppendActivity(a session.Activity) error
	UpsertSessionFile(sessionID, path string, modified, mentioned bool, at time.Time) error
}

// Details carries the optional attributes of one recorded event.
type Details struct {
	TaskID     string
	ContextID  string
	DecisionID string
	FilePath   string
	AIAssisted bool
	Note       string
}

// Recorder validates, counts, and appends session activity.
type Recorder struct {
	sessions Sessions
	store    Appender
	files    *FileTracker
	now      func() time.Time
	logger   *slog.Logger
}

// NewRecorder creates a Recorder over the manager and store.
func NewRecorder(sessions Sessions, st Appender, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sessions: sessions,
		store:    st,
		files:    NewFileTracker(st),
		now:      time.Now,
		logger:   logger,
	}
}

// Record appends one immutable activity row, increments the counter mapped
// to typ, and refreshes the session's inactivity clock. It fails with
// session.ErrClosed when the session is finalized — a finalized session is
// never mutated. Unrecognized types land in the timeline without touching
// any counter. If details carry a file path, the per-file aggregate is
// updated as well.
//
// A store failure on the write path is surfaced, but the already-applied
// in-memory counter is not reverted: losing a write beats losing activity.
func (r *Recorder) Record(sessionID string, typ session.ActivityType, d Details) (*session.Activity, error) {
	now := r.now()

	// Counter increment and last-activity bump are one atomic step under
	// the manager lock; it also rejects finalized or paused sessions
	// before anything is written.
	var persistErr error
	if err := r.sessions.Apply(sessionID, func(s *session.Session) {
		typ.Apply(&s.Counters)
	}); err != nil {
		if isLifecycle(err) {
			return nil, err
		}
		r.logger.Warn("session write failed, keeping counter applied",
			"session", sessionID, "type", string(typ), "error", err)
		persistErr = err
	}

	a := session.Activity{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Type:       typ,
		TaskID:     d.TaskID,
		ContextID:  d.ContextID,
		DecisionID: d.DecisionID,
		FilePath:   d.FilePath,
		AIAssisted: d.AIAssisted,
		Note:       d.Note,
		Timestamp:  now,
	}
	if err := r.store.AppendActivity(a); err != nil {
		return nil, fmt.Errorf("appending activity: %w", err)
	}

	if d.FilePath != "" {
		touch := Touch{
			Modified:  typ.ModifiesFile(),
			Mentioned: !typ.ModifiesFile(),
			At:        now,
		}
		if err := r.files.Touch(sessionID, d.FilePath, touch); err != nil {
			return nil, err
		}
	}
	return &a, persistErr
}

// isLifecycle reports whether err is a state rejection rather than a store
// failure on an otherwise-applied mutation.
func isLifecycle(err error) bool {
	return errors.Is(err, session.ErrClosed) ||
		errors.Is(err, session.ErrPaused) ||
		errors.Is(err, session.ErrNoSession)
}
