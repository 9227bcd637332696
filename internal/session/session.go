package session

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusEnded    Status = "ended"
	StatusTimedOut Status = "timed_out"
)

// Terminal reports whether s is a final state. A terminal session is frozen:
// no counter, timestamp, or score may change after entering it.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusTimedOut
}

// EndReason distinguishes a manual end from an inactivity timeout.
type EndReason string

const (
	EndManual  EndReason = "manual"
	EndTimeout EndReason = "timeout"
)

// Counters accumulates per-session activity totals. All fields are
// monotonically non-decreasing while the session is open.
type Counters struct {
	TasksCreated      int `json:"tasks_created"`
	TasksCompleted    int `json:"tasks_completed"`
	TasksInProgress   int `json:"tasks_in_progress"`
	TasksTodo         int `json:"tasks_todo"`
	ContextItemsAdded int `json:"context_items_added"`
	DecisionsMade     int `json:"decisions_made"`
}

// Session represents one bounded unit of tracked development work.
type Session struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	Status         Status     `json:"status"`
	Goal           string     `json:"goal,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Model          string     `json:"model,omitempty"` // AI model identifier
	Counters       Counters   `json:"counters"`

	// Code metrics, populated once at finalization.
	LOCAdded   int `json:"loc_added"`
	LOCRemoved int `json:"loc_removed"`

	// Score is set exactly once, at the same transition that sets EndedAt.
	Score *int `json:"productivity_score,omitempty"`
}

// NetLOC returns lines added minus lines removed.
func (s *Session) NetLOC() int {
	return s.LOCAdded - s.LOCRemoved
}

// Duration returns the session length. It is only meaningful once EndedAt
// is set; for an open session it returns zero.
func (s *Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Clone returns a deep copy. Callers receive clones so the manager's live
// session can never be mutated from outside its lock.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Score != nil {
		v := *s.Score
		c.Score = &v
	}
	if s.Tags != nil {
		c.Tags = append([]string(nil), s.Tags...)
	}
	return &c
}

// Activity is an immutable record of one event within a session.
type Activity struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"session_id"`
	Type       ActivityType `json:"type"`
	TaskID     string       `json:"task_id,omitempty"`
	ContextID  string       `json:"context_id,omitempty"`
	DecisionID string       `json:"decision_id,omitempty"`
	FilePath   string       `json:"file_path,omitempty"`
	AIAssisted bool         `json:"ai_assisted"`
	Note       string       `json:"note,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// FileStat aggregates touches of one file path within one session.
// There is exactly one FileStat per (session, path) pair.
type FileStat struct {
	SessionID      string    `json:"session_id"`
	Path           string    `json:"path"`
	TimesModified  int       `json:"times_modified"`
	TimesMentioned int       `json:"times_mentioned"`
	FirstTouchedAt time.Time `json:"first_touched_at"`
	LastTouchedAt  time.Time `json:"last_touched_at"`
}
