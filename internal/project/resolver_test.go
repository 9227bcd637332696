package project_test

import (
	"errors"
	"testing"
	"time"

	"github.com/devpulse/devpulse/internal/project"
	"github.com/devpulse/devpulse/internal/session"
	"github.com/devpulse/devpulse/internal/store"
)

// fakeStore implements the parts of store.Store the resolver exercises.
// The embedded interface panics on anything unexpected.
type fakeStore struct {
	store.Store
	sessions []*session.Session
	projects []session.Project
	created  []session.Project
}

func (f *fakeStore) ListSessions(filter store.Filter) ([]*session.Session, error) {
	var out []*session.Session
	for _, s := range f.sessions {
		if !filter.From.IsZero() && s.StartedAt.Before(filter.From) {
			continue
		}
		out = append(out, s)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ProjectByName(name string) (*session.Project, error) {
	for i := range f.projects {
		if f.projects[i].Name == name {
			return &f.projects[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListProjects() ([]session.Project, error) {
	// Newest first, as the real store guarantees.
	out := append([]session.Project(nil), f.projects...)
	for i := 0; i < len(out)/2; i++ {
		out[i], out[len(out)-1-i] = out[len(out)-1-i], out[i]
	}
	return out, nil
}

func (f *fakeStore) CreateProject(p session.Project) error {
	f.projects = append(f.projects, p)
	f.created = append(f.created, p)
	return nil
}

func TestResolvePrefersRecentSession(t *testing.T) {
	now := time.Now()
	st := &fakeStore{
		sessions: []*session.Session{{
			ID:        "s-1",
			ProjectID: "p-recent",
			StartedAt: now.Add(-2 * time.Hour),
			Status:    session.StatusEnded,
		}},
		projects: []session.Project{
			{ID: "p-default", Name: "default"},
			{ID: "p-newest", Name: "newest"},
		},
	}

	r := project.NewResolver(st, "default")
	got, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "p-recent" {
		t.Errorf("Resolve = %s, want p-recent (continuity wins)", got)
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	// Only a stale session, outside the 24h continuity window.
	st := &fakeStore{
		sessions: []*session.Session{{
			ID:        "s-old",
			ProjectID: "p-stale",
			StartedAt: time.Now().Add(-48 * time.Hour),
		}},
		projects: []session.Project{
			{ID: "p-default", Name: "default"},
			{ID: "p-newest", Name: "newest"},
		},
	}

	r := project.NewResolver(st, "default")
	got, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "p-default" {
		t.Errorf("Resolve = %s, want p-default", got)
	}
}

func TestResolveFallsBackToNewestProject(t *testing.T) {
	st := &fakeStore{
		projects: []session.Project{
			{ID: "p-older", Name: "older"},
			{ID: "p-newest", Name: "newest"},
		},
	}

	// No default configured, no recent session.
	r := project.NewResolver(st, "")
	got, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "p-newest" {
		t.Errorf("Resolve = %s, want p-newest", got)
	}
}

func TestResolveNoProjects(t *testing.T) {
	r := project.NewResolver(&fakeStore{}, "missing")
	if _, err := r.Resolve(); !errors.Is(err, project.ErrNoProject) {
		t.Fatalf("got %v, want ErrNoProject", err)
	}
}

func TestEnsureCreatesOnce(t *testing.T) {
	st := &fakeStore{}
	r := project.NewResolver(st, "")

	first, err := r.Ensure("parser")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	second, err := r.Ensure("parser")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if first != second {
		t.Errorf("Ensure returned different ids: %s vs %s", first, second)
	}
	if len(st.created) != 1 {
		t.Errorf("projects created = %d, want 1", len(st.created))
	}
}
