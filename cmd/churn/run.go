package main

import (
	"github.com/YuminosukeSato/churn/pipeline"
	"github.com/spf13/cobra"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline and write the predictions listing",
	Long: `Prepares the records, compares the configured models, evaluates the selected
model once on the test set and writes customer_id, probability and
predicted_churn for every customer in predictions.scope.`,
	RunE: runPipeline,
}

var runOut string

func init() {
	runCommand.Flags().StringVarP(&runOut, "out", "o", "", "Predictions path (defaults to predictions.path)")
	rootCmd.AddCommand(runCommand)
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	src, err := cfg.OpenSource()
	if err != nil {
		return err
	}
	res, err := pipeline.Run(cmd.Context(), cfg, src)
	if res != nil && res.Comparison != nil {
		if perr := printComparison(cmd, res.Comparison); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}

	t := res.Test
	cmd.Printf("test (%d records, %s): recall %.4f, accuracy %.4f, precision %.4f, f1 %.4f, auc %.4f, log loss %.4f\n",
		t.Samples, t.ModelID, t.Scores.Recall, t.Scores.Accuracy, t.Scores.Precision, t.Scores.F1, t.AUC, t.LogLoss)

	out := runOut
	if out == "" {
		out = cfg.Predictions.Path
	}
	if err := pipeline.WritePredictionsFile(out, res.Predictions); err != nil {
		return err
	}
	cmd.Printf("wrote %d predictions (%s) to %s, run %s\n", len(res.Predictions), cfg.Predictions.Scope, out, res.RunID)
	return nil
}
