package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devpulse/devpulse/internal/activity"
	"github.com/devpulse/devpulse/internal/session"
)

var (
	recordTask     string
	recordContext  string
	recordDecision string
	recordFile     string
	recordNote     string
	recordAI       bool
)

var recordCmd = &cobra.Command{
	Use:   "record <type>",
	Short: "Record an activity in the current session",
	Long: `Record one activity event in the open session.

Recognized types update a session counter:
  task_created, task_completed, task_in_progress, task_todo,
  context_added, decision_made
Other types (note, file_modified, file_mentioned, ...) are kept in the
timeline only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}

		cur, err := app.manager.Current()
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				return fmt.Errorf("no active session (run `devpulse start` first)")
			}
			return err
		}

		_, err = app.recorder.Record(cur.ID, session.ActivityType(args[0]), activity.Details{
			TaskID:     recordTask,
			ContextID:  recordContext,
			DecisionID: recordDecision,
			FilePath:   recordFile,
			Note:       recordNote,
			AIAssisted: recordAI,
		})
		if err != nil {
			return err
		}
		cmd.Printf("Recorded %s.\n", args[0])
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordTask, "task", "", "Linked task id")
	recordCmd.Flags().StringVar(&recordContext, "context", "", "Linked context item id")
	recordCmd.Flags().StringVar(&recordDecision, "decision", "", "Linked decision id")
	recordCmd.Flags().StringVarP(&recordFile, "file", "f", "", "File path touched by this activity")
	recordCmd.Flags().StringVarP(&recordNote, "note", "n", "", "Free-text note")
	recordCmd.Flags().BoolVar(&recordAI, "ai", false, "Mark the activity as AI-assisted")
	rootCmd.AddCommand(recordCmd)
}
