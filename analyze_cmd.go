package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/batchtts/tts/batch"
)

var (
	showUnits bool

	analyzeCmd = &cobra.Command{
		Use:     "analyze MANIFEST",
		Short:   "Report how well a manifest batches without synthesizing it",
		Long:    paragraph(fmt.Sprintf("\n%s the grouping a manifest would get: batched share, group sizes, parameter switches and the estimated reduction in engine calls.", keyword("Preview"))),
		Example: paragraph("batchtts analyze chapter.yaml\nbatchtts analyze chunks.json --global --units"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyBatchingFlags(cmd.Flags(), &cfg.Batching); err != nil {
				return err
			}
			opts, err := batch.OptionsFromConfig(cfg.Batching)
			if err != nil {
				return err
			}

			chunks, err := loadManifest(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printAnalysis(w, batch.Analyze(chunks, opts))
			if showUnits {
				printUnits(w, batch.NewGrouper(opts).Group(chunks))
			}
			return nil
		},
	}
)

func init() {
	analyzeCmd.Flags().BoolVarP(&showUnits, "units", "u", false, "list every execution unit")
	addBatchingFlags(analyzeCmd.Flags())
}
