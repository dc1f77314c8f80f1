package commands

import (
	"context"
	"fmt"
	"os"
	"polwatch-backend/internal/app"
	"polwatch-backend/internal/components/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "polwatch-cli",
	Short: "polwatch-cli runs ingestion and queries against the polwatch database once.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger := telemetry.InitSlog(verbose)
		if cmd.Name() == "help" {
			return nil
		}

		cfg, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}
		application, err = app.New(cfg, telemetry.NewSlogAPI(logger))
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		return application.Close()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "The config file to read.")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(header)
	return t
}
