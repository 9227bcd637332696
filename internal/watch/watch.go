// Package watch turns filesystem write events into file_modified activity
// records for the open session. It is an optional activity source: the
// engine works without it, it just sees fewer file touches.
package watch

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/devpulse/devpulse/internal/activity"
	"github.com/devpulse/devpulse/internal/session"
)

// Watcher records file modification events against one session.
type Watcher struct {
	WorkDir        string
	SessionID      string
	Recorder       *activity.Recorder
	IgnorePatterns []string
	Logger         *slog.Logger
}

// Run starts a recursive fsnotify watcher on WorkDir and records a
// file_modified activity for every Write/Create event until ctx is
// cancelled. Recording failures on a closed session stop the watcher;
// other failures are logged and skipped.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Walk the directory tree and add a watcher for every subdirectory.
	if err := filepath.WalkDir(w.WorkDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		return err
	}

	patterns, _ := w.loadIgnorePatterns()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if w.isIgnored(event.Name, patterns) {
				continue
			}

			_, err := w.Recorder.Record(w.SessionID, session.ActivityFileModified,
				activity.Details{FilePath: event.Name})
			if err != nil {
				if errors.Is(err, session.ErrClosed) {
					// Session finalized underneath us; nothing left to watch.
					return nil
				}
				logger.Warn("recording file event failed",
					"path", event.Name, "error", err)
			}

			// If a new directory was created, watch it too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
		}
	}
}

// isIgnored reports whether path matches any of the given glob patterns.
func (w *Watcher) isIgnored(path string, patterns []string) bool {
	// Normalise to a relative path for matching when possible.
	rel := path
	if w.WorkDir != "" {
		if r, err := filepath.Rel(w.WorkDir, path); err == nil {
			rel = r
		}
	}
	base := filepath.Base(path)

	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
		// Directory patterns ignore everything beneath them.
		if strings.HasPrefix(rel, strings.TrimSuffix(pattern, "/")+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns merges the configured patterns with those from
// .gitignore and .devpulseignore files found in the working directory.
func (w *Watcher) loadIgnorePatterns() ([]string, error) {
	patterns := make([]string, len(w.IgnorePatterns))
	copy(patterns, w.IgnorePatterns)

	for _, name := range []string{".gitignore", ".devpulseignore"} {
		p := filepath.Join(w.WorkDir, name)
		extra, err := readPatternFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return patterns, err
		}
		patterns = append(patterns, extra...)
	}
	return patterns, nil
}

// readPatternFile reads a gitignore-style file and returns non-empty,
// non-comment lines.
func readPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}
