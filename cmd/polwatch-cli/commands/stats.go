package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var recentLimit int

func init() {
	rootCmd.AddCommand(statsCmd)

	recentCmd.PersistentFlags().IntVar(&recentLimit, "limit", 10, "The number of rows to print.")
	recentCmd.AddCommand(recentPostsCmd)
	recentCmd.AddCommand(recentSessionsCmd)
	rootCmd.AddCommand(recentCmd)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.DateTime)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints row counts and the latest ingestion activity.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := application.Stats.GetStats(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable(table.Row{"Metric", "Value"})
		t.AppendRows([]table.Row{
			{"Parties", s.Counts.Parties},
			{"Politicians", s.Counts.Politicians},
			{"Sessions", s.Counts.Sessions},
			{"Votes", s.Counts.Votes},
			{"Posts", s.Counts.Posts},
			{"System logs", s.Counts.SystemLogs},
		})
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Latest session", formatTime(s.LatestSessionAt)},
			{"Latest post", formatTime(s.LatestPostAt)},
			{"Latest sync", formatTime(s.LatestSyncAt)},
		})
		if s.LastRun != nil {
			t.AppendRow(table.Row{
				"Last run",
				fmt.Sprintf("%s (%s) %s", s.LastRun.Type, s.LastRun.Status, s.LastRun.CreatedAt.Format(time.DateTime)),
			})
		}
		t.Render()
		return nil
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Prints the most recent posts or sessions.",
}

var recentPostsCmd = &cobra.Command{
	Use:   "posts [--limit <n>]",
	Short: "Prints the most recent posts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		posts, err := application.Stats.RecentPosts(cmd.Context(), recentLimit)
		if err != nil {
			return err
		}

		t := newTable(table.Row{"Posted", "Politician", "Content"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		})
		for _, p := range posts {
			t.AppendRow(table.Row{p.PostedAt.Format(time.DateTime), p.PoliticianName, p.Content})
		}
		t.Render()
		return nil
	},
}

var recentSessionsCmd = &cobra.Command{
	Use:   "sessions [--limit <n>]",
	Short: "Prints the most recent voting sessions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := application.Stats.RecentSessions(cmd.Context(), recentLimit)
		if err != nil {
			return err
		}

		t := newTable(table.Row{"Date", "External ID", "Title", "Votes"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		})
		for _, s := range sessions {
			t.AppendRow(table.Row{s.Date.Format(time.DateOnly), s.ExternalID, s.Title, s.VoteCount})
		}
		t.Render()
		return nil
	},
}
