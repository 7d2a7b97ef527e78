package main

import (
	"github.com/YuminosukeSato/churn/explore"
	"github.com/YuminosukeSato/churn/pipeline"
	"github.com/YuminosukeSato/churn/prepare"
	"github.com/spf13/cobra"
)

var exploreCommand = &cobra.Command{
	Use:   "explore",
	Short: "Describe the prepared records and run the churn hypothesis tests",
	RunE:  runExplore,
}

func init() {
	rootCmd.AddCommand(exploreCommand)
}

func runExplore(cmd *cobra.Command, _ []string) error {
	src, err := cfg.OpenSource()
	if err != nil {
		return err
	}
	raw, err := pipeline.Acquire(cmd.Context(), src)
	if err != nil {
		return err
	}
	records, _, err := prepare.Prepare(raw, cfg.PrepareOptions())
	if err != nil {
		return err
	}
	rep, err := explore.Analyze(records)
	if err != nil {
		return err
	}

	cmd.Printf("labeled %d, churned %d, churn rate %.4f\n", rep.Labeled, rep.Churned, rep.ChurnRate)
	cmd.Printf("churned customers with tenure <= %d months: %.2f%%\n\n", explore.ShortTenureMonths, rep.ShortTenureShare*100)

	w := newTable(cmd)
	w.row("column", "count", "mean", "std", "min", "25%", "50%", "75%", "max")
	for _, c := range []struct {
		name string
		s    explore.Summary
	}{
		{"tenure", rep.Tenure},
		{"monthly_charges", rep.MonthlyCharges},
		{"total_charges", rep.TotalCharges},
	} {
		w.row(c.name, c.s.Count, c.s.Mean, c.s.StdDev, c.s.Min, c.s.Q1, c.s.Median, c.s.Q3, c.s.Max)
	}
	if err := w.flush(); err != nil {
		return err
	}

	for _, g := range []struct {
		title string
		rates []explore.GroupRate
	}{
		{"contract_type", rep.ByContract},
		{"payment_type", rep.ByPayment},
		{"tech_support", rep.ByTechSupport},
	} {
		cmd.Println()
		w := newTable(cmd)
		w.row(g.title, "count", "churned", "rate")
		for _, r := range g.rates {
			w.row(r.Value, r.Count, r.Churned, r.Rate)
		}
		if err := w.flush(); err != nil {
			return err
		}
	}

	cmd.Printf("\nalpha = %.2f\n", explore.Alpha)
	cmd.Printf("monthly charges, churned > retained: %v\n", rep.MonthlyChargesTest)
	cmd.Printf("tenure, churned < retained:          %v\n", rep.TenureTest)
	cmd.Printf("contract type vs churn:              %v\n", rep.ContractTest)
	cmd.Printf("tech support vs churn:               %v\n", rep.TechSupportTest)
	return nil
}
