package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-ingest-service/internal/app"
	"github.com/helixir/paper-ingest-service/internal/corpus"
	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print corpus size and per-category counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		top, _ := cmd.Flags().GetInt("top")
		return withApp(cmd, func(a *app.App) error {
			snap := a.Engine.Snapshot()
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"corpus_size": len(snap.Records),
					"categories":  snap.CategoryStats,
				})
			}
			printStats(cmd.OutOrStdout(), snap, top)
			return nil
		})
	},
}

var watermarkCmd = &cobra.Command{
	Use:   "watermark",
	Short: "Print the corpus watermark and last fetch time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			snap := a.Engine.Snapshot()
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"newest":          snap.Watermark.Newest,
					"oldest":          snap.Watermark.Oldest,
					"last_fetch_time": snap.LastFetchTime,
					"corpus_size":     len(snap.Records),
				})
			}
			printWatermark(cmd.OutOrStdout(), snap)
			return nil
		})
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List corpus records, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app.App) error {
			page, err := a.Engine.GetCorpusSnapshot(f)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"records": page.Records,
					"total":   page.Total,
				})
			}
			printRecords(cmd.OutOrStdout(), page)
			return nil
		})
	},
}

func filterFromFlags(cmd *cobra.Command) (corpus.Filter, error) {
	var f corpus.Filter
	flags := cmd.Flags()

	provider, _ := flags.GetString("provider")
	f.Provider = domain.SourceType(provider)
	if f.Provider != "" && !domain.IsValidSourceType(f.Provider) {
		return f, fmt.Errorf("unsupported provider %q", provider)
	}
	f.Category, _ = flags.GetString("category")
	f.Tag, _ = flags.GetString("tag")
	f.Query, _ = flags.GetString("query")
	f.Limit, _ = flags.GetInt("limit")
	f.Offset, _ = flags.GetInt("offset")

	var err error
	if f.Since, err = dateFlag(cmd, "since"); err != nil {
		return f, err
	}
	if f.Until, err = dateFlag(cmd, "until"); err != nil {
		return f, err
	}

	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t := papersources.ParseTimestamp(raw)
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("--%s: unrecognised date %q", name, raw)
	}
	return t, nil
}

func init() {
	statsCmd.Flags().Int("top", 20, "number of categories to print (0 prints all)")

	recordsCmd.Flags().String("provider", "", "keep records from this provider")
	recordsCmd.Flags().String("category", "", "keep records in this category")
	recordsCmd.Flags().String("tag", "", "keep records carrying this tag")
	recordsCmd.Flags().String("query", "", "case-insensitive title or summary match")
	recordsCmd.Flags().String("since", "", "published on or after this date")
	recordsCmd.Flags().String("until", "", "published on or before this date")
	recordsCmd.Flags().Int("limit", 20, "maximum number of records")
	recordsCmd.Flags().Int("offset", 0, "records to skip")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(watermarkCmd)
	rootCmd.AddCommand(recordsCmd)
}
