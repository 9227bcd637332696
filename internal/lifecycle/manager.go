// Package lifecycle owns the session state machine: start, keep-alive,
// pause, manual end, and inactivity timeout. One Manager instance owns at
// most one open session at a time.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devpulse/devpulse/internal/scoring"
	"github.com/devpulse/devpulse/internal/session"
	"github.com/devpulse/devpulse/internal/store"
)

// ErrAlreadyActive is returned by Start when this manager already owns an
// open session.
var ErrAlreadyActive = errors.New("a session is already active")

// DefaultTimeout is the inactivity window after which an open session is
// automatically finalized as timed_out.
const DefaultTimeout = 2 * time.Hour

// ProjectResolver picks the project for a new session when the caller gives
// no hint.
type ProjectResolver interface {
	Resolve() (string, error)
}

// Store is the slice of the persistence adapter the manager writes through.
type Store interface {
	SaveSession(s *session.Session) error
	ListSessions(f store.Filter) ([]*session.Session, error)
}

// DiffCollector reports the line delta accumulated since a point in time.
// It may fail (not a git workspace, repository unavailable); the manager
// degrades to zero lines rather than failing finalization.
type DiffCollector interface {
	LinesChangedSince(since time.Time) (added, removed int, err error)
}

// Config tunes a Manager. Zero values fall back to defaults.
type Config struct {
	Timeout       time.Duration   // inactivity window, default DefaultTimeout
	Weights       scoring.Weights // scoring policy, default DefaultWeights
	Clock         Clock           // default SystemClock
	Logger        *slog.Logger    // default slog.Default
	RetryAttempts int             // finalization persist attempts, default 5
	RetryDelay    time.Duration   // base backoff between attempts, default 200ms
}

// Manager is the session lifecycle state machine.
type Manager struct {
	store    Store
	resolver ProjectResolver
	diff     DiffCollector
	clock    Clock
	weights  scoring.Weights
	timeout  time.Duration
	logger   *slog.Logger

	retryAttempts int
	retryDelay    time.Duration

	mu    sync.Mutex
	cur   *session.Session // nil until Start or Recover
	timer Timer            // armed while cur is active
}

// NewManager creates a Manager over the given collaborators.
func NewManager(st Store, resolver ProjectResolver, diff DiffCollector, cfg Config) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Weights == (scoring.Weights{}) {
		cfg.Weights = scoring.DefaultWeights()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	return &Manager{
		store:         st,
		resolver:      resolver,
		diff:          diff,
		clock:         cfg.Clock,
		weights:       cfg.Weights,
		timeout:       cfg.Timeout,
		logger:        cfg.Logger,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}
}

// Handle identifies a started session to its caller.
type Handle struct {
	SessionID string
	ProjectID string
	StartedAt time.Time
}

// StartOptions carries the optional attributes of a new session.
type StartOptions struct {
	ProjectID string // hint; empty means consult the resolver
	Goal      string
	Tags      []string
	Model     string // AI model identifier
}

// Start opens a new session and arms the inactivity timer. It fails with
// ErrAlreadyActive when this manager already owns an open session, and a
// persistence failure is fatal to the call: no session is returned and no
// state is retained.
func (m *Manager) Start(opts StartOptions) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil && !m.cur.Status.Terminal() {
		return nil, ErrAlreadyActive
	}

	projectID := opts.ProjectID
	if projectID == "" {
		var err error
		projectID, err = m.resolver.Resolve()
		if err != nil {
			return nil, err
		}
	}

	now := m.clock.Now()
	s := &session.Session{
		ID:             uuid.New().String(),
		ProjectID:      projectID,
		StartedAt:      now,
		LastActivityAt: now,
		Status:         session.StatusActive,
		Goal:           opts.Goal,
		Tags:           opts.Tags,
		Model:          opts.Model,
	}
	if err := m.store.SaveSession(s); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}

	m.cur = s
	m.armTimer(s.ID, m.timeout)
	m.logger.Info("session started", "session", s.ID, "project", projectID)
	return &Handle{SessionID: s.ID, ProjectID: projectID, StartedAt: now}, nil
}

// Touch refreshes the inactivity clock. Called on every recorded activity.
// Safe to call concurrently with itself and with End: once the session is
// terminal it returns session.ErrClosed and changes nothing, so a finalized
// session can never be resurrected.
func (m *Manager) Touch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil {
		return session.ErrNoSession
	}
	return m.touchLocked(m.cur.ID, nil)
}

// Apply runs fn on the open session identified by sessionID under the
// manager lock, then refreshes the inactivity clock, re-arms the timer, and
// persists. The in-memory mutation survives a persistence failure
// (at-least-once: losing the write is preferred over losing the activity).
func (m *Manager) Apply(sessionID string, fn func(*session.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touchLocked(sessionID, fn)
}

func (m *Manager) touchLocked(sessionID string, fn func(*session.Session)) error {
	switch {
	case m.cur == nil || m.cur.ID != sessionID:
		return session.ErrClosed
	case m.cur.Status.Terminal():
		return session.ErrClosed
	case m.cur.Status == session.StatusPaused:
		return session.ErrPaused
	}

	if fn != nil {
		fn(m.cur)
	}
	m.cur.LastActivityAt = m.clock.Now()
	if m.timer != nil {
		m.timer.Reset(m.timeout)
	}

	if err := m.store.SaveSession(m.cur); err != nil {
		// Surfaced, but the session stays live and counters stay applied.
		return fmt.Errorf("persisting activity: %w", err)
	}
	return nil
}

// End finalizes the open session. It is idempotent and race-free: only the
// first caller to move the session out of active/paused runs finalization
// (timer cancellation, LOC lookup, scoring, persistence); any later call,
// including a timer firing after a manual end, observes the terminal state
// and returns the already-finalized session without side effects.
func (m *Manager) End(reason session.EndReason) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil {
		return nil, session.ErrNoSession
	}
	if m.cur.Status.Terminal() {
		return m.cur.Clone(), nil
	}
	return m.endLocked(reason, m.clock.Now())
}

// timeoutFired is the timer callback. It re-checks under the lock that the
// session it was armed for is still the open one; a manual end that won the
// race leaves it nothing to do.
func (m *Manager) timeoutFired(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil || m.cur.ID != sessionID || m.cur.Status.Terminal() {
		return
	}
	if m.cur.Status == session.StatusPaused {
		return // paused sessions never time out
	}
	if _, err := m.endLocked(session.EndTimeout, m.clock.Now()); err != nil {
		// The session is still open; re-arm so the timeout finalization
		// keeps retrying rather than leaving it stuck active.
		m.logger.Error("timeout finalization failed", "session", sessionID, "error", err)
		m.armTimer(sessionID, m.retryDelay)
	}
}

// endLocked performs finalization. Caller holds m.mu and has verified the
// session is open. at becomes ended_at, which matters for the recovery path
// where the deadline passed while the process was down.
//
// Finalization runs on a clone and the terminal state is committed to m.cur
// only after the write lands. If every persist attempt fails the in-memory
// session stays open, so a retried End re-runs the whole idempotent
// finalization instead of reporting a success the store never saw.
func (m *Manager) endLocked(reason session.EndReason, at time.Time) (*session.Session, error) {
	s := m.cur.Clone()

	s.EndedAt = &at
	if reason == session.EndTimeout {
		s.Status = session.StatusTimedOut
	} else {
		s.Status = session.StatusEnded
	}

	// LOC accounting is advisory: a missing repository degrades to zero
	// lines instead of blocking finalization.
	added, removed, err := m.diff.LinesChangedSince(s.StartedAt)
	if err != nil {
		m.logger.Warn("diff collector unavailable, recording zero lines",
			"session", s.ID, "error", err)
		added, removed = 0, 0
	}
	s.LOCAdded = added
	s.LOCRemoved = removed

	score := m.weights.Score(scoring.InputFromSession(s))
	s.Score = &score

	// The finalization write must eventually land or the session would be
	// stuck active in the store forever. Scoring is deterministic, so the
	// retries rewrite the identical record.
	var saveErr error
	for attempt := 0; attempt < m.retryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(m.retryDelay << (attempt - 1))
		}
		if saveErr = m.store.SaveSession(s); saveErr == nil {
			break
		}
	}
	if saveErr != nil {
		return nil, fmt.Errorf("persisting finalized session: %w", saveErr)
	}

	// Commit. A timer callback that already fired blocks on m.mu and then
	// sees the terminal status.
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.cur = s

	m.logger.Info("session finalized",
		"session", s.ID, "reason", string(reason), "score", score,
		"duration", s.Duration().Round(time.Second).String())
	return s.Clone(), nil
}

// Pause suspends the inactivity timer without finalizing. Counters are
// unaffected and the inactivity clock does not advance while paused.
func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.cur == nil:
		return session.ErrNoSession
	case m.cur.Status.Terminal():
		return session.ErrClosed
	case m.cur.Status == session.StatusPaused:
		return nil
	}

	// Persist first: a failed write leaves the session active with its
	// timer running, so Pause can simply be retried.
	next := m.cur.Clone()
	next.Status = session.StatusPaused
	if err := m.store.SaveSession(next); err != nil {
		return fmt.Errorf("persisting pause: %w", err)
	}

	if m.timer != nil {
		m.timer.Stop()
	}
	m.cur = next
	return nil
}

// Resume reactivates a paused session with a fresh inactivity window.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.cur == nil:
		return session.ErrNoSession
	case m.cur.Status.Terminal():
		return session.ErrClosed
	case m.cur.Status == session.StatusActive:
		return nil
	}

	next := m.cur.Clone()
	next.Status = session.StatusActive
	next.LastActivityAt = m.clock.Now()
	if err := m.store.SaveSession(next); err != nil {
		return fmt.Errorf("persisting resume: %w", err)
	}

	m.cur = next
	if m.timer != nil {
		m.timer.Reset(m.timeout)
	} else {
		m.armTimer(m.cur.ID, m.timeout)
	}
	return nil
}

// Current returns a snapshot of the open session, or session.ErrNoSession
// when none is open.
func (m *Manager) Current() (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil || m.cur.Status.Terminal() {
		return nil, session.ErrNoSession
	}
	return m.cur.Clone(), nil
}

// Recover adopts an open session persisted by a previous process. When the
// inactivity deadline already passed while no process was running, the
// session is finalized as timed_out with ended_at set to that deadline, so
// a stuck-active session always eventually transitions. Otherwise the timer
// is armed for the remaining window.
func (m *Manager) Recover() (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil && !m.cur.Status.Terminal() {
		return m.cur.Clone(), nil
	}

	open, err := m.store.ListSessions(store.Filter{OnlyOpen: true, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("recovering session: %w", err)
	}
	if len(open) == 0 {
		return nil, session.ErrNoSession
	}

	s := open[0]
	m.cur = s
	if s.Status == session.StatusPaused {
		return s.Clone(), nil
	}

	deadline := s.LastActivityAt.Add(m.timeout)
	now := m.clock.Now()
	if !deadline.After(now) {
		final, err := m.endLocked(session.EndTimeout, deadline)
		if err != nil {
			// Adopted but not finalized; keep retrying on a timer.
			m.armTimer(s.ID, m.retryDelay)
			return nil, err
		}
		return final, nil
	}
	m.armTimer(s.ID, deadline.Sub(now))
	return s.Clone(), nil
}

func (m *Manager) armTimer(sessionID string, d time.Duration) {
	m.timer = m.clock.AfterFunc(d, func() { m.timeoutFired(sessionID) })
}
