package lifecycle_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devpulse/devpulse/internal/lifecycle"
	"github.com/devpulse/devpulse/internal/session"
	"github.com/devpulse/devpulse/internal/store"
)

// ── Fakes ──

// fakeClock is a manually advanced Clock. Advancing it fires any due timer
// callbacks outside the clock lock, mimicking time.AfterFunc.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) lifecycle.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.deadline = t.clock.now.Add(d)
	t.stopped = false
	return was
}

// Advance moves the clock forward and fires every due, unstopped timer.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.deadline.After(c.now) {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// fakeStore is an in-memory lifecycle.Store that can inject write failures
// and counts finalization writes.
type fakeStore struct {
	mu          sync.Mutex
	sessions    map[string]*session.Session
	failSaves   int // next N saves fail
	saveCalls   int
	finalWrites int // saves carrying a terminal status
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*session.Session{}}
}

var errInjected = errors.New("injected store failure")

func (s *fakeStore) SaveSession(sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.failSaves > 0 {
		s.failSaves--
		return errInjected
	}
	if sess.Status.Terminal() {
		s.finalWrites++
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *fakeStore) ListSessions(f store.Filter) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		if f.OnlyOpen && sess.Status.Terminal() {
			continue
		}
		if f.OnlyFinalized && !sess.Status.Terminal() {
			continue
		}
		out = append(out, sess.Clone())
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) stored(id string) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id].Clone()
}

type fakeDiff struct {
	added, removed int
	err            error
}

func (d *fakeDiff) LinesChangedSince(time.Time) (int, int, error) {
	return d.added, d.removed, d.err
}

type fakeResolver struct{ id string }

func (r *fakeResolver) Resolve() (string, error) { return r.id, nil }

func newManager(st *fakeStore, clock *fakeClock, diff *fakeDiff) *lifecycle.Manager {
	return lifecycle.NewManager(st, &fakeResolver{id: "proj-1"}, diff, lifecycle.Config{
		Clock:      clock,
		RetryDelay: time.Nanosecond,
	})
}

// ── Tests ──

func TestStartRejectsSecondSession(t *testing.T) {
	m := newManager(newFakeStore(), newFakeClock(), &fakeDiff{})

	if _, err := m.Start(lifecycle.StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Start(lifecycle.StartOptions{}); !errors.Is(err, lifecycle.ErrAlreadyActive) {
		t.Fatalf("second Start: got %v, want ErrAlreadyActive", err)
	}
}

func TestStartPersistFailureIsFatal(t *testing.T) {
	st := newFakeStore()
	st.failSaves = 1
	m := newManager(st, newFakeClock(), &fakeDiff{})

	if _, err := m.Start(lifecycle.StartOptions{}); err == nil {
		t.Fatal("Start succeeded despite persist failure")
	}
	if _, err := m.Current(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("Current after failed Start: got %v, want ErrNoSession", err)
	}
}

func TestManualEndFinalizesOnce(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{added: 200, removed: 50})

	h, err := m.Start(lifecycle.StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(90 * time.Minute)

	final, err := m.End(session.EndManual)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if final.Status != session.StatusEnded {
		t.Errorf("Status = %s, want ended", final.Status)
	}
	if final.EndedAt == nil || final.Score == nil {
		t.Fatal("EndedAt and Score must be set at finalization")
	}
	if got := final.Duration(); got != 90*time.Minute {
		t.Errorf("Duration = %s, want 90m", got)
	}
	if final.LOCAdded != 200 || final.LOCRemoved != 50 {
		t.Errorf("LOC = (%d,%d), want (200,50)", final.LOCAdded, final.LOCRemoved)
	}
	// net 150 → 20, duration 1.5h → 10, everything else zero.
	if *final.Score != 30 {
		t.Errorf("Score = %d, want 30", *final.Score)
	}

	// Second End (a late timer or a double call) returns the identical
	// result with no further write.
	again, err := m.End(session.EndTimeout)
	if err != nil {
		t.Fatalf("second End: %v", err)
	}
	if again.Status != session.StatusEnded || !again.EndedAt.Equal(*final.EndedAt) || *again.Score != *final.Score {
		t.Errorf("second End returned a different result: %+v vs %+v", again, final)
	}
	if st.finalWrites != 1 {
		t.Errorf("finalization writes = %d, want exactly 1", st.finalWrites)
	}
	if st.stored(h.SessionID).Status != session.StatusEnded {
		t.Error("stored session not finalized")
	}
}

func TestTimeoutFiresAtDeadline(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{})

	h, err := m.Start(lifecycle.StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	started := clock.Now()

	clock.Advance(2*time.Hour - time.Minute)
	if _, err := m.Current(); err != nil {
		t.Fatalf("session ended before the deadline: %v", err)
	}

	clock.Advance(time.Minute)
	stored := st.stored(h.SessionID)
	if stored.Status != session.StatusTimedOut {
		t.Fatalf("Status = %s, want timed_out", stored.Status)
	}
	if want := started.Add(2 * time.Hour); !stored.EndedAt.Equal(want) {
		t.Errorf("EndedAt = %s, want %s", stored.EndedAt, want)
	}
}

func TestTouchPostponesTimeout(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{})

	h, err := m.Start(lifecycle.StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Two touches ten minutes apart, then silence: the window runs from
	// the second touch, not the first.
	clock.Advance(10 * time.Minute)
	if err := m.Touch(); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	clock.Advance(10 * time.Minute)
	if err := m.Touch(); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	secondTouch := clock.Now()

	clock.Advance(2*time.Hour - time.Second)
	if _, err := m.Current(); err != nil {
		t.Fatal("timed out measured from the wrong touch")
	}

	clock.Advance(time.Second)
	stored := st.stored(h.SessionID)
	if stored.Status != session.StatusTimedOut {
		t.Fatalf("Status = %s, want timed_out", stored.Status)
	}
	if want := secondTouch.Add(2 * time.Hour); !stored.EndedAt.Equal(want) {
		t.Errorf("EndedAt = %s, want %s", stored.EndedAt, want)
	}
}

func TestNoResurrectionAfterEnd(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{})

	h, _ := m.Start(lifecycle.StartOptions{})
	if _, err := m.End(session.EndManual); err != nil {
		t.Fatalf("End: %v", err)
	}
	before := st.stored(h.SessionID)

	if err := m.Touch(); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Touch after End: got %v, want ErrClosed", err)
	}
	if err := m.Apply(h.SessionID, func(s *session.Session) {
		s.Counters.TasksCreated++
	}); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Apply after End: got %v, want ErrClosed", err)
	}

	// And a stale timer firing later must not touch anything either.
	clock.Advance(3 * time.Hour)
	after := st.stored(h.SessionID)
	if !after.LastActivityAt.Equal(before.LastActivityAt) || after.Counters != before.Counters {
		t.Error("finalized session was mutated")
	}
	if st.finalWrites != 1 {
		t.Errorf("finalization writes = %d, want 1", st.finalWrites)
	}
}

func TestEndRaceExactlyOneWinner(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{})

	h, _ := m.Start(lifecycle.StartOptions{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		clock.Advance(2 * time.Hour) // fires the timeout path
	}()
	go func() {
		defer wg.Done()
		_, _ = m.End(session.EndManual)
	}()
	wg.Wait()

	stored := st.stored(h.SessionID)
	if !stored.Status.Terminal() {
		t.Fatalf("Status = %s, want terminal", stored.Status)
	}
	if st.finalWrites != 1 {
		t.Errorf("finalization writes = %d, want exactly 1", st.finalWrites)
	}
}

func TestDiffFailureDegradesToZero(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{err: errors.New("not a git workspace")})

	_, _ = m.Start(lifecycle.StartOptions{})
	clock.Advance(time.Hour)

	final, err := m.End(session.EndManual)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if final.LOCAdded != 0 || final.LOCRemoved != 0 {
		t.Errorf("LOC = (%d,%d), want zeros", final.LOCAdded, final.LOCRemoved)
	}
	if final.Score == nil {
		t.Fatal("score missing despite diff failure")
	}
	// cleanup bucket 15 + duration 10
	if *final.Score != 25 {
		t.Errorf("Score = %d, want 25", *final.Score)
	}
}

func TestFinalizationRetriesPersist(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{})

	h, _ := m.Start(lifecycle.StartOptions{})
	st.failSaves = 2 // first two finalization attempts fail

	final, err := m.End(session.EndManual)
	if err != nil {
		t.Fatalf("End should retry past transient failures: %v", err)
	}
	if !final.Status.Terminal() {
		t.Errorf("Status = %s, want terminal", final.Status)
	}
	if st.stored(h.SessionID).Status != session.StatusEnded {
		t.Error("finalization write never landed")
	}
}

func TestEndRetriableAfterExhaustedPersists(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{})

	h, _ := m.Start(lifecycle.StartOptions{})
	clock.Advance(time.Hour)
	st.failSaves = 5 // every bounded attempt of the first End fails

	if _, err := m.End(session.EndManual); err == nil {
		t.Fatal("End succeeded although no finalization write landed")
	}
	// The failed End must leave the session open on both sides so the
	// caller can retry it.
	if st.finalWrites != 0 {
		t.Fatalf("finalization writes = %d, want 0 after a failed End", st.finalWrites)
	}
	if st.stored(h.SessionID).Status != session.StatusActive {
		t.Fatal("store no longer holds the session as active")
	}
	if _, err := m.Current(); err != nil {
		t.Fatalf("session vanished from the manager after a failed End: %v", err)
	}

	final, err := m.End(session.EndManual)
	if err != nil {
		t.Fatalf("retried End: %v", err)
	}
	if final.Status != session.StatusEnded {
		t.Errorf("Status = %s, want ended (manual reason preserved)", final.Status)
	}
	if st.finalWrites != 1 {
		t.Errorf("finalization writes = %d, want exactly 1", st.finalWrites)
	}
	if st.stored(h.SessionID).Status != session.StatusEnded {
		t.Error("retried End never reached the store")
	}
}

func TestTimeoutRetriesAfterPersistFailure(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{})

	h, _ := m.Start(lifecycle.StartOptions{})
	st.failSaves = 5 // exhaust the timeout's first finalization

	clock.Advance(2 * time.Hour)
	if st.stored(h.SessionID).Status != session.StatusActive {
		t.Fatal("failed timeout finalization still reached the store")
	}

	// The timeout path re-arms itself and finalizes once writes recover.
	clock.Advance(time.Millisecond)
	if st.stored(h.SessionID).Status != session.StatusTimedOut {
		t.Error("timeout finalization was never retried")
	}
	if st.finalWrites != 1 {
		t.Errorf("finalization writes = %d, want exactly 1", st.finalWrites)
	}
}

func TestPausePersistFailureKeepsSessionActive(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{})

	h, _ := m.Start(lifecycle.StartOptions{})
	st.failSaves = 1

	if err := m.Pause(); err == nil {
		t.Fatal("Pause succeeded although the write failed")
	}
	if st.stored(h.SessionID).Status != session.StatusActive {
		t.Fatal("store diverged: pause persisted despite the reported failure")
	}
	if err := m.Touch(); err != nil {
		t.Fatalf("session not active after a failed Pause: %v", err)
	}

	if err := m.Pause(); err != nil {
		t.Fatalf("retried Pause: %v", err)
	}
	if st.stored(h.SessionID).Status != session.StatusPaused {
		t.Error("retried Pause never reached the store")
	}
}

func TestResumePersistFailureStaysPaused(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{})

	h, _ := m.Start(lifecycle.StartOptions{})
	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	st.failSaves = 1

	if err := m.Resume(); err == nil {
		t.Fatal("Resume succeeded although the write failed")
	}
	if st.stored(h.SessionID).Status != session.StatusPaused {
		t.Fatal("store diverged: resume persisted despite the reported failure")
	}
	if err := m.Touch(); !errors.Is(err, session.ErrPaused) {
		t.Fatalf("Touch after failed Resume: got %v, want ErrPaused", err)
	}
	// Still paused, so still exempt from the inactivity timeout.
	clock.Advance(5 * time.Hour)
	if st.stored(h.SessionID).Status != session.StatusPaused {
		t.Fatal("session timed out while paused")
	}

	if err := m.Resume(); err != nil {
		t.Fatalf("retried Resume: %v", err)
	}
	if err := m.Touch(); err != nil {
		t.Fatalf("Touch after retried Resume: %v", err)
	}
}

func TestPauseSuspendsTimeout(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()
	m := newManager(st, clock, &fakeDiff{})

	h, _ := m.Start(lifecycle.StartOptions{})
	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	clock.Advance(5 * time.Hour)
	if st.stored(h.SessionID).Status != session.StatusPaused {
		t.Fatal("paused session timed out")
	}
	if err := m.Touch(); !errors.Is(err, session.ErrPaused) {
		t.Errorf("Touch while paused: got %v, want ErrPaused", err)
	}

	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	clock.Advance(2 * time.Hour)
	if st.stored(h.SessionID).Status != session.StatusTimedOut {
		t.Error("resumed session did not time out after a full idle window")
	}
}

func TestRecoverFinalizesOverdueSession(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()

	// A previous process left this session active, last touched 3h ago.
	last := clock.Now().Add(-3 * time.Hour)
	stale := &session.Session{
		ID:             "stale",
		ProjectID:      "proj-1",
		StartedAt:      last.Add(-time.Hour),
		LastActivityAt: last,
		Status:         session.StatusActive,
	}
	if err := st.SaveSession(stale); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := newManager(st, clock, &fakeDiff{})
	final, err := m.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if final.Status != session.StatusTimedOut {
		t.Fatalf("Status = %s, want timed_out", final.Status)
	}
	// The session ends at its deadline, not at recovery time.
	if want := last.Add(2 * time.Hour); !final.EndedAt.Equal(want) {
		t.Errorf("EndedAt = %s, want %s", final.EndedAt, want)
	}
}

func TestRecoverArmsRemainingWindow(t *testing.T) {
	st := newFakeStore()
	clock := newFakeClock()

	last := clock.Now().Add(-30 * time.Minute)
	open := &session.Session{
		ID:             "open",
		ProjectID:      "proj-1",
		StartedAt:      last,
		LastActivityAt: last,
		Status:         session.StatusActive,
	}
	if err := st.SaveSession(open); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := newManager(st, clock, &fakeDiff{})
	got, err := m.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got.Status != session.StatusActive {
		t.Fatalf("Status = %s, want active", got.Status)
	}

	clock.Advance(90*time.Minute - time.Second)
	if _, err := m.Current(); err != nil {
		t.Fatal("session timed out before the remaining window elapsed")
	}
	clock.Advance(time.Second)
	if st.stored("open").Status != session.StatusTimedOut {
		t.Error("session did not time out at last_activity + window")
	}
}
