// Command churn prepares the telco customer data, compares churn
// classifiers and writes predictions for customers without a label.
package main

import (
	"fmt"
	"os"

	"github.com/YuminosukeSato/churn/config"
	"github.com/YuminosukeSato/churn/pkg/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "churn",
	Short: "Telco customer churn preparation and model comparison",
	Long: `churn fetches the telco customer table (MySQL, PostgreSQL or a cached CSV),
normalizes and filters the records, encodes categorical fields through a fixed
mapping table, splits the labeled records 56/24/20 and ranks classifiers by
recall, then accuracy, against a majority-class baseline.

Database credentials are read from CHURN_DB_USER, CHURN_DB_PASSWORD and
CHURN_DB_HOST, optionally loaded from a .env file.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath string
	logLevel   string
	envFile    string

	// cfg is loaded by setup before any subcommand runs.
	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File of KEY=value database credentials")
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := log.SetupLogger(logLevel, cmd.ErrOrStderr()); err != nil {
		return err
	}
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}
	if configPath == "" {
		cfg = config.Default()
		return nil
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
