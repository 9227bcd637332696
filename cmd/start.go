package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devpulse/devpulse/internal/lifecycle"
	"github.com/devpulse/devpulse/internal/watch"
)

var (
	startProject string
	startGoal    string
	startTags    []string
	startModel   string
	startWatch   bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Begin a new tracking session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}

		if cur, err := app.manager.Current(); err == nil {
			return fmt.Errorf("session already in progress (started at %s)",
				cur.StartedAt.Format(time.RFC3339))
		}

		opts := lifecycle.StartOptions{
			Goal:  startGoal,
			Tags:  startTags,
			Model: startModel,
		}
		if opts.Model == "" {
			opts.Model = cfg.DefaultModel
		}
		if startProject != "" {
			id, err := app.resolver.Ensure(startProject)
			if err != nil {
				return err
			}
			opts.ProjectID = id
		}

		handle, err := app.manager.Start(opts)
		if err != nil {
			return err
		}
		cmd.Printf("Session %s started.\n", handle.SessionID[:8])

		if !startWatch {
			return nil
		}

		// Foreground mode: record file writes until interrupted or the
		// inactivity timeout finalizes the session.
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := &watch.Watcher{
			WorkDir:        cwd,
			SessionID:      handle.SessionID,
			Recorder:       app.recorder,
			IgnorePatterns: cfg.IgnorePatterns,
		}
		cmd.Println("Watching for file changes (ctrl-c to detach)...")
		return w.Run(ctx)
	},
}

func init() {
	startCmd.Flags().StringVarP(&startProject, "project", "p", "", "Project name (created if missing; otherwise auto-resolved)")
	startCmd.Flags().StringVarP(&startGoal, "goal", "g", "", "Free-text goal for the session")
	startCmd.Flags().StringArrayVarP(&startTags, "tag", "t", nil, "Tag to attach (repeatable)")
	startCmd.Flags().StringVarP(&startModel, "model", "m", "", "AI model identifier")
	startCmd.Flags().BoolVarP(&startWatch, "watch", "w", false, "Stay in the foreground recording file changes")
	rootCmd.AddCommand(startCmd)
}
