// Package gitdiff reads the lines-added/removed delta for a session window
// from the local git repository. It shells out to git rather than linking a
// git implementation; the runner is injectable so tests never need a real
// repository.
package gitdiff

import (
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNotRepository is returned when the working directory is not inside a
// git repository. Callers treat the delta as zero in that case.
var ErrNotRepository = errors.New("not a git repository")

// GitRunner executes a git command and returns its output.
// This abstraction allows mocking in tests.
type GitRunner func(workDir string, args ...string) (string, error)

// Collector reports line deltas for one working directory.
type Collector struct {
	WorkDir string
	Runner  GitRunner // if nil, uses the real git subprocess
}

// defaultGitRunner runs git as a real subprocess.
func defaultGitRunner(workDir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workDir
	out, err := cmd.Output()
	return string(out), err
}

// LinesChangedSince sums the numstat deltas attributable to the window from
// since until now: uncommitted changes against HEAD plus commits made since
// the given time. A working directory outside any repository (git exit code
// 128) yields ErrNotRepository.
func (c *Collector) LinesChangedSince(since time.Time) (added, removed int, err error) {
	runner := c.Runner
	if runner == nil {
		runner = defaultGitRunner
	}

	// Uncommitted work, staged and unstaged. Also serves as the
	// "is this a git repo?" check.
	diffOut, err := runner(c.WorkDir, "diff", "HEAD", "--numstat")
	if err != nil {
		if isExitCode128(err) {
			return 0, 0, ErrNotRepository
		}
		return 0, 0, err
	}
	a, r := parseNumstat(diffOut)
	added += a
	removed += r

	// Commits landed during the window.
	logOut, err := runner(c.WorkDir, "log", "--since="+since.Format(time.RFC3339), "--numstat", "--pretty=format:")
	if err != nil {
		return 0, 0, err
	}
	a, r = parseNumstat(logOut)
	added += a
	removed += r

	return added, removed, nil
}

// isExitCode128 reports whether err is an *exec.ExitError with exit code 128.
func isExitCode128(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == 128
	}
	return false
}

// parseNumstat sums the added/removed columns of git numstat output.
// Binary files report "-" in both columns and are skipped.
func parseNumstat(out string) (added, removed int) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		a, errA := strconv.Atoi(fields[0])
		r, errR := strconv.Atoi(fields[1])
		if errA != nil || errR != nil {
			continue
		}
		added += a
		removed += r
	}
	return added, removed
}
