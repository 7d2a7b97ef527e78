package main

import (
	"github.com/YuminosukeSato/churn/pipeline"
	"github.com/spf13/cobra"
)

var prepareCommand = &cobra.Command{
	Use:   "prepare",
	Short: "Normalize, filter, encode and split the records, then report counts",
	RunE:  runPrepare,
}

var prepareShowErrors bool

func init() {
	prepareCommand.Flags().BoolVar(&prepareShowErrors, "show-errors", false, "List every dropped record and why")
	rootCmd.AddCommand(prepareCommand)
}

func runPrepare(cmd *cobra.Command, _ []string) error {
	src, err := cfg.OpenSource()
	if err != nil {
		return err
	}
	p, err := pipeline.Prepare(cmd.Context(), cfg, src)
	if err != nil {
		return err
	}
	r := p.Report
	cmd.Printf("raw records:          %d\n", r.Raw)
	cmd.Printf("schema dropped:       %d\n", r.SchemaDropped)
	cmd.Printf("validation dropped:   %d\n", r.ValidationDropped)
	cmd.Printf("retained:             %d\n", r.Retained)
	cmd.Printf("unlabeled:            %d\n", r.Unlabeled)
	cmd.Printf("inconsistent charges: %d\n", r.InconsistentCharges)
	cmd.Printf("encoded columns:      %d (%s)\n", len(p.Encoded.Columns), p.Encoded.MappingVersion)

	train, validate, test := p.Partition.Sizes()
	cmd.Printf("train/validate/test:  %d/%d/%d (seed %d)\n", train, validate, test, cfg.Split.Seed)
	cmd.Printf("churn rate:           train %.4f, validate %.4f, test %.4f\n",
		p.Partition.Train.ChurnRate(), p.Partition.Validate.ChurnRate(), p.Partition.Test.ChurnRate())

	if prepareShowErrors {
		for _, e := range r.Errors {
			cmd.Printf("  %v\n", e)
		}
	}
	return nil
}
