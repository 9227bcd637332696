package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devpulse/devpulse/internal/session"
)

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "End the current tracking session and compute its score",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}

		final, err := app.manager.End(session.EndManual)
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				return fmt.Errorf("no active session")
			}
			return err
		}

		score := 0
		if final.Score != nil {
			score = *final.Score
		}
		cmd.Printf("Session %s %s.\n", final.ID[:8], final.Status)
		cmd.Printf("Duration: %s\n", final.Duration().Round(time.Second))
		cmd.Printf("Tasks: %d created, %d completed\n",
			final.Counters.TasksCreated, final.Counters.TasksCompleted)
		cmd.Printf("Net LOC: %+d (%d added, %d removed)\n",
			final.NetLOC(), final.LOCAdded, final.LOCRemoved)
		cmd.Printf("Productivity score: %d/100\n", score)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(endCmd)
}
