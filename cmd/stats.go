package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/devpulse/devpulse/internal/stats"
)

var (
	statsDays    int
	statsProject string
	statsTag     string
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("86"))

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize finalized sessions over a time window",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}

		filter := stats.Filter{
			From: time.Now().AddDate(0, 0, -statsDays),
			Tag:  statsTag,
		}
		if statsProject != "" {
			p, err := app.store.ProjectByName(statsProject)
			if err != nil {
				return fmt.Errorf("unknown project %q", statsProject)
			}
			filter.ProjectID = p.ID
		}

		report, err := app.stats.Aggregate(filter)
		if err != nil {
			return err
		}

		header := fmt.Sprintf("Last %d days — %d sessions", statsDays, report.SessionCount)
		if styled() {
			header = headerStyle.Render(header)
		}
		cmd.Println(header)
		if report.SessionCount == 0 {
			return nil
		}

		cmd.Println(renderField("Total time", report.TotalDuration.Round(time.Minute).String()))
		cmd.Println(renderField("Avg session", report.AvgDuration.Round(time.Minute).String()))
		cmd.Println(renderField("Avg score", fmt.Sprintf("%.1f/100", report.AvgScore)))
		cmd.Println(renderField("Tasks", fmt.Sprintf("%d created, %d completed (%.0f%%)",
			report.TasksCreated, report.TasksCompleted, report.TaskCompletionRate*100)))
		cmd.Println(renderField("Decisions", fmt.Sprintf("%d", report.DecisionsMade)))
		cmd.Println(renderField("Context items", fmt.Sprintf("%d", report.ContextItemsAdded)))
		cmd.Println(renderField("Net LOC", fmt.Sprintf("%+d", report.NetLOC)))
		if report.MostProductiveDay != "" {
			cmd.Println(renderField("Best day", report.MostProductiveDay))
		}
		if report.MostUsedModel != "" {
			cmd.Println(renderField("Top model", report.MostUsedModel))
		}
		if len(report.TopTags) > 0 {
			cmd.Println(renderField("Top tags", strings.Join(report.TopTags, ", ")))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVarP(&statsDays, "days", "d", 30, "Window size in days")
	statsCmd.Flags().StringVarP(&statsProject, "project", "p", "", "Restrict to one project")
	statsCmd.Flags().StringVarP(&statsTag, "tag", "t", "", "Restrict to sessions carrying a tag")
	rootCmd.AddCommand(statsCmd)
}
