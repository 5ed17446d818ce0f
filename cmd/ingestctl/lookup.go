package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-ingest-service/internal/app"
	"github.com/helixir/paper-ingest-service/internal/papersources/huggingface"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <arxiv-id>",
	Short: "Look up a paper on the Hugging Face Hub",
	Long: `lookup fetches the Hub's record of an arXiv paper. With --artifacts it
also lists the models, datasets and Spaces that cite the paper. The corpus
and store are not touched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		withArtifacts, _ := cmd.Flags().GetBool("artifacts")

		client := app.NewHuggingFace(cfg.Providers.HuggingFace)
		paper, err := client.LookupPaper(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("lookup %s: %w", args[0], err)
		}

		var artifacts *huggingface.Artifacts
		if withArtifacts {
			found, err := client.RelatedArtifacts(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("artifacts for %s: %w", args[0], err)
			}
			artifacts = &found
		}

		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"paper":     paper,
				"artifacts": artifacts,
			})
		}
		printPaper(cmd.OutOrStdout(), paper, artifacts)
		return nil
	},
}

func init() {
	lookupCmd.Flags().Bool("artifacts", false, "also list models, datasets and Spaces citing the paper")
	rootCmd.AddCommand(lookupCmd)
}
