package gitdiff_test

import (
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/devpulse/devpulse/internal/gitdiff"
)

func TestLinesChangedSinceSumsNumstat(t *testing.T) {
	var calls [][]string
	c := &gitdiff.Collector{
		WorkDir: "/repo",
		Runner: func(workDir string, args ...string) (string, error) {
			calls = append(calls, args)
			switch args[0] {
			case "diff":
				return "10\t3\tinternal/store/sqlite.go\n5\t0\tcmd/root.go\n-\t-\tassets/logo.png\n", nil
			case "log":
				return "\n100\t20\tinternal/lifecycle/manager.go\n", nil
			}
			return "", nil
		},
	}

	added, removed, err := c.LinesChangedSince(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("LinesChangedSince: %v", err)
	}
	if added != 115 || removed != 23 {
		t.Errorf("delta = (%d,%d), want (115,23)", added, removed)
	}
	if len(calls) != 2 {
		t.Fatalf("git invocations = %d, want 2", len(calls))
	}
	if calls[0][0] != "diff" || calls[1][0] != "log" {
		t.Errorf("unexpected git commands: %v", calls)
	}
}

func TestLinesChangedSinceNotARepository(t *testing.T) {
	c := &gitdiff.Collector{
		Runner: func(workDir string, args ...string) (string, error) {
			// git exits 128 outside a repository.
			cmd := exec.Command("sh", "-c", "exit 128")
			err := cmd.Run()
			return "", err
		},
	}

	_, _, err := c.LinesChangedSince(time.Now())
	if !errors.Is(err, gitdiff.ErrNotRepository) {
		t.Fatalf("got %v, want ErrNotRepository", err)
	}
}

func TestLinesChangedSinceOtherFailure(t *testing.T) {
	boom := errors.New("git binary missing")
	c := &gitdiff.Collector{
		Runner: func(workDir string, args ...string) (string, error) {
			return "", boom
		},
	}

	_, _, err := c.LinesChangedSince(time.Now())
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want underlying error", err)
	}
}
