package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/devpulse/devpulse/internal/activity"
	"github.com/devpulse/devpulse/internal/config"
	"github.com/devpulse/devpulse/internal/gitdiff"
	"github.com/devpulse/devpulse/internal/lifecycle"
	"github.com/devpulse/devpulse/internal/project"
	"github.com/devpulse/devpulse/internal/session"
	"github.com/devpulse/devpulse/internal/stats"
	"github.com/devpulse/devpulse/internal/store"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "devpulse",
	Short: "Track AI-assisted development sessions and score productivity",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelInfo
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		// Load and merge config files.
		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		proj, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		cfg = config.Merge(global, proj)
		return nil
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")
}

// app bundles the engine components a subcommand works with.
type app struct {
	store    store.Store
	resolver *project.Resolver
	manager  *lifecycle.Manager
	recorder *activity.Recorder
	stats    *stats.Aggregator
}

// newApp wires the engine from the merged config: sqlite store, project
// resolver, git-diff collector for the current directory, lifecycle
// manager, recorder, and aggregator. It then adopts any session persisted
// by a previous process so inactivity timeouts survive restarts.
func newApp() (*app, error) {
	dbPath := cfg.DatabasePath
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	resolver := project.NewResolver(st, cfg.DefaultProject)
	manager := lifecycle.NewManager(st, resolver, &gitdiff.Collector{WorkDir: cwd}, lifecycle.Config{
		Timeout: time.Duration(cfg.IdleTimeoutMinutes) * time.Minute,
		Weights: cfg.Weights(),
	})
	recorder := activity.NewRecorder(manager, st, slog.Default())

	// Adopt a session left open by a previous process. This is also the
	// point where an overdue session finally times out.
	if _, err := manager.Recover(); err != nil && !errors.Is(err, session.ErrNoSession) {
		return nil, err
	}

	a := &app{
		store:    st,
		resolver: resolver,
		manager:  manager,
		recorder: recorder,
		stats:    stats.New(st),
	}
	return a, nil
}

// styled reports whether output should carry ANSI styling.
func styled() bool {
	return term.IsTerminal(os.Stdout.Fd())
}
