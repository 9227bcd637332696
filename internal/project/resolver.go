// Package project decides which project a new session belongs to.
package project

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devpulse/devpulse/internal/session"
	"github.com/devpulse/devpulse/internal/store"
)

// ErrNoProject is returned when no project exists at all. Starting a session
// is impossible until one is created.
var ErrNoProject = errors.New("no project available")

// continuityWindow is how far back Resolve looks for a recent session. A
// developer resuming work inside this window keeps the same project without
// being asked again.
const continuityWindow = 24 * time.Hour

// Resolver picks a project for a new session.
type Resolver struct {
	store       store.Store
	defaultName string           // configured default project name, may be empty
	now         func() time.Time // injected for tests
}

// NewResolver creates a Resolver. defaultName is the configured default
// project; pass "" when none is configured.
func NewResolver(st store.Store, defaultName string) *Resolver {
	return &Resolver{store: st, defaultName: defaultName, now: time.Now}
}

// Resolve returns the project id for a new session. Policy, in order:
// a session started within the last 24 hours reuses its project; otherwise
// the configured default project if it exists; otherwise the most recently
// created project. Fails with ErrNoProject only when no project exists.
func (r *Resolver) Resolve() (string, error) {
	recent, err := r.store.ListSessions(store.Filter{
		From:  r.now().Add(-continuityWindow),
		Limit: 1,
	})
	if err != nil {
		return "", fmt.Errorf("finding recent session: %w", err)
	}
	if len(recent) > 0 {
		return recent[0].ProjectID, nil
	}

	if r.defaultName != "" {
		p, err := r.store.ProjectByName(r.defaultName)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("looking up default project: %w", err)
		}
		if p != nil {
			return p.ID, nil
		}
	}

	projects, err := r.store.ListProjects()
	if err != nil {
		return "", fmt.Errorf("listing projects: %w", err)
	}
	if len(projects) == 0 {
		return "", ErrNoProject
	}
	return projects[0].ID, nil
}

// Ensure returns the id of the project named name, creating it first if it
// does not exist yet.
func (r *Resolver) Ensure(name string) (string, error) {
	p, err := r.store.ProjectByName(name)
	if err == nil {
		return p.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("looking up project %q: %w", name, err)
	}

	created := session.Project{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: r.now(),
	}
	if err := r.store.CreateProject(created); err != nil {
		return "", fmt.Errorf("creating project %q: %w", name, err)
	}
	return created.ID, nil
}
