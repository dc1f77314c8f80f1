package commands

import (
	"fmt"
	"polwatch-backend/internal/ingest"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	votesFrom int
	votesTo   int

	postsMax        int
	postsPolitician int64
)

func init() {
	ingestVotesCmd.Flags().IntVar(&votesFrom, "from", 1, "The first session number to ingest.")
	ingestVotesCmd.Flags().IntVar(&votesTo, "to", 1, "The last session number to ingest (inclusive).")
	rootCmd.AddCommand(ingestVotesCmd)

	ingestPostsCmd.Flags().IntVar(&postsMax, "max", 0, "The maximum number of posts fetched per politician, 0 uses the configured default.")
	ingestPostsCmd.Flags().Int64Var(&postsPolitician, "politician", 0, "Only ingest posts of the politician with this id.")
	rootCmd.AddCommand(ingestPostsCmd)

	rootCmd.AddCommand(fixHandlesCmd)
}

func printItemErrors(errs []ingest.ItemError) {
	if len(errs) == 0 {
		return
	}
	t := newTable(table.Row{"Ref", "Field", "Error"})
	for _, e := range errs {
		t.AppendRow(table.Row{e.Ref, e.Field, e.Message})
	}
	t.Render()
}

var ingestVotesCmd = &cobra.Command{
	Use:   "ingest-votes --from <n> --to <n>",
	Short: "Fetches a range of voting sessions and stores their votes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := application.Ingest.IngestVotes(cmd.Context(), ingest.SessionRange{
			From: votesFrom,
			To:   votesTo,
		})
		if err != nil {
			return err
		}

		t := newTable(table.Row{"Sessions", "Created", "Votes", "Inserted", "Updated", "Errors"})
		t.AppendRow(table.Row{
			report.SessionsUpserted,
			report.SessionsCreated,
			report.VotesUpserted,
			report.VotesInserted,
			report.VotesUpdated,
			len(report.Errors),
		})
		t.Render()
		printItemErrors(report.Errors)
		return nil
	},
}

func appendDetail(t table.Writer, d ingest.PostsDetail) {
	t.AppendRow(table.Row{d.PoliticianID, d.Name, d.Handle, d.NewPosts, d.SkippedPosts, d.RateLimited, d.Error})
}

var ingestPostsCmd = &cobra.Command{
	Use:   "ingest-posts [--max <n>] [--politician <id>]",
	Short: "Fetches recent posts of politicians with a handle and stores the new ones.",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := newTable(table.Row{"ID", "Name", "Handle", "New", "Skipped", "Rate limited", "Error"})

		if postsPolitician > 0 {
			detail, err := application.Ingest.IngestPostsForPolitician(cmd.Context(), postsPolitician, postsMax)
			if err != nil {
				return err
			}
			appendDetail(t, detail)
			t.Render()
			return nil
		}

		report, err := application.Ingest.IngestPostsForAll(cmd.Context(), postsMax)
		if err != nil {
			return err
		}
		for _, d := range report.Details {
			appendDetail(t, d)
		}
		t.AppendFooter(table.Row{
			"",
			fmt.Sprintf("%d/%d processed", report.Processed, report.TotalPoliticians),
			"",
			report.NewPosts,
			report.SkippedPosts,
			report.RateLimited,
			"",
		})
		t.Render()
		return nil
	},
}

var fixHandlesCmd = &cobra.Command{
	Use:   "fix-handles",
	Short: "Normalizes the social media handles of every politician.",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := application.Ingest.FixHandles(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable(table.Row{"ID", "Name", "Original", "Fixed"})
		for _, fix := range report.Details {
			t.AppendRow(table.Row{fix.ID, fix.Name, fix.Original, fix.Fixed})
		}
		t.AppendFooter(table.Row{"", "Total", report.Total, report.Fixed})
		t.Render()
		return nil
	},
}
