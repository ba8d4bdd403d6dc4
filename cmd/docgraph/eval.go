package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docgraph/eval"
)

func newEvalCmd(a *app) *cobra.Command {
	var datasetPath, outputPath string
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score the active rule table against a dataset of expected triples",
		Long: `Score the active rule table against a dataset of texts with expected
triples and print precision, recall and per-case differences.

Without --dataset the built-in report dataset is used.

Examples:
  docgraph eval
  docgraph eval --rules rules.yaml --dataset golden.yaml --output report.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newPipeline()
			if err != nil {
				return err
			}

			ds := eval.ReportDataset()
			if datasetPath != "" {
				if ds, err = eval.LoadDataset(datasetPath); err != nil {
					return err
				}
			}

			report := eval.Evaluate(p.Extractor(), ds)
			fmt.Fprint(cmd.OutOrStdout(), eval.FormatReport(report))

			if outputPath != "" {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(outputPath, data, 0o644); err != nil {
					return fmt.Errorf("writing report: %w", err)
				}
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d cases failed", report.Failed, report.TotalTests)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "YAML dataset of texts and expected triples")
	cmd.Flags().StringVar(&outputPath, "output", "", "also write the report as JSON to this file")
	return cmd
}
