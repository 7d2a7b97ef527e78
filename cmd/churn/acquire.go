package main

import (
	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/pipeline"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/spf13/cobra"
)

var acquireCommand = &cobra.Command{
	Use:   "acquire",
	Short: "Fetch raw customer rows and write them to a CSV snapshot",
	Long: `Fetches every row of the configured source and writes it to --out, or to
source.cache_path when --out is not given. Later commands read the snapshot
when source.use_cache is set.`,
	RunE: runAcquire,
}

var acquireOut string

func init() {
	acquireCommand.Flags().StringVarP(&acquireOut, "out", "o", "", "Snapshot path (defaults to source.cache_path)")
	rootCmd.AddCommand(acquireCommand)
}

func runAcquire(cmd *cobra.Command, _ []string) error {
	out := acquireOut
	if out == "" {
		out = cfg.Source.CachePath
	}
	if out == "" {
		return errors.NewConfigurationError("out", "no --out and no source.cache_path", "")
	}

	// Always go to the primary source; a snapshot is what we are making.
	src, err := primarySource()
	if err != nil {
		return err
	}
	raw, err := pipeline.Acquire(cmd.Context(), src)
	if err != nil {
		return err
	}
	if err := dataset.WriteCSVFile(out, raw); err != nil {
		return err
	}
	cmd.Printf("wrote %d rows to %s\n", len(raw), out)
	return nil
}

// primarySource opens the configured source without the cache layer.
func primarySource() (dataset.Source, error) {
	c := *cfg
	c.Source.UseCache = false
	c.Source.CachePath = ""
	return c.OpenSource()
}
