package cmd

import (
	"errors"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/devpulse/devpulse/internal/session"
)

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))
)

// renderField formats one "Label: value" line, styled only on a terminal.
func renderField(label, value string) string {
	if !styled() {
		return label + ": " + value
	}
	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current tracking session snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}

		s, err := app.manager.Current()
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				cmd.Println("no active session")
				return nil
			}
			return err
		}

		cmd.Println(renderField("Session", s.ID[:8]+"  ("+string(s.Status)+")"))
		cmd.Println(renderField("Started", s.StartedAt.Format(time.RFC3339)))
		cmd.Println(renderField("Last activity", s.LastActivityAt.Format(time.RFC3339)))
		if s.Goal != "" {
			cmd.Println(renderField("Goal", s.Goal))
		}
		if s.Model != "" {
			cmd.Println(renderField("Model", s.Model))
		}
		cmd.Println(renderField("Tasks",
			strconv.Itoa(s.Counters.TasksCreated)+" created, "+
				strconv.Itoa(s.Counters.TasksCompleted)+" completed, "+
				strconv.Itoa(s.Counters.TasksInProgress)+" in progress, "+
				strconv.Itoa(s.Counters.TasksTodo)+" todo"))
		cmd.Println(renderField("Decisions", strconv.Itoa(s.Counters.DecisionsMade)))
		cmd.Println(renderField("Context items", strconv.Itoa(s.Counters.ContextItemsAdded)))

		files, err := app.store.ListSessionFiles(s.ID)
		if err != nil {
			return err
		}
		cmd.Println(renderField("Files touched", strconv.Itoa(len(files))))
		if styled() {
			cmd.Println(dimStyle.Render("score is computed when the session ends"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
