package main

import (
	"github.com/YuminosukeSato/churn/harness"
	"github.com/YuminosukeSato/churn/pipeline"
	"github.com/spf13/cobra"
)

var compareCommand = &cobra.Command{
	Use:   "compare",
	Short: "Fit every configured model and rank them on the validate set",
	Long: `Fits the majority-class baseline and every configured model on train and
ranks them on validate by metrics.metric_primary, then metrics.metric_secondary.
The test set is not touched; use run for the final evaluation.`,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCommand)
}

func runCompare(cmd *cobra.Command, _ []string) error {
	src, err := cfg.OpenSource()
	if err != nil {
		return err
	}
	p, err := pipeline.Prepare(cmd.Context(), cfg, src)
	if err != nil {
		return err
	}
	c, err := pipeline.Compare(cmd.Context(), cfg, p)
	if err != nil {
		return err
	}
	return printComparison(cmd, c)
}

func printComparison(cmd *cobra.Command, c *harness.Comparison) error {
	w := newTable(cmd)
	w.row("rank", "id", "family", string(c.Primary), string(c.Secondary), "precision", "f1", "auc", "log_loss", "useful")
	for i, r := range c.Ranked() {
		w.row(i+1, r.ID, r.Family, r.Primary, r.Secondary, r.Scores.Precision, r.Scores.F1, r.AUC, r.LogLoss, usefulMark(r))
	}
	if err := w.flush(); err != nil {
		return err
	}
	for _, r := range c.Failed() {
		cmd.Printf("failed: %s (%s): %v\n", r.ID, r.Family, r.Err)
	}
	if sel, err := c.Selected(); err == nil {
		cmd.Printf("selected: %s\n", sel.ID)
	}
	return nil
}

func usefulMark(r *harness.ModelResult) string {
	switch {
	case r.Baseline:
		return "baseline"
	case r.Useful:
		return "yes"
	default:
		return "no"
	}
}
