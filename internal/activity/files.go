package activity

import (
	"fmt"
	"time"
)

// Touch describes one contact with a file. At least one of Modified or
// Mentioned should be set.
type Touch struct {
	Modified  bool
	Mentioned bool
	At        time.Time
}

// FileTracker aggregates per-file touch counts within one session. Each
// (session, path) pair has exactly one aggregate row; repeated touches are
// additive increments, delegated to the store's atomic upsert so concurrent
// touches of the same path never overwrite each other.
type FileTracker struct {
	store Appender
}

// NewFileTracker creates a FileTracker writing through st.
func NewFileTracker(st Appender) *FileTracker {
	return &FileTracker{store: st}
}

// Touch upserts the aggregate for (sessionID, path): the first contact
// creates the row with the given flags counted once, later contacts
// increment the matching counters and advance last_touched_at.
func (f *FileTracker) Touch(sessionID, path string, t Touch) error {
	if !t.Modified && !t.Mentioned {
		return nil
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	if err := f.store.UpsertSessionFile(sessionID, path, t.Modified, t.Mentioned, at); err != nil {
		return fmt.Errorf("tracking file %s: %w", path, err)
	}
	return nil
}
