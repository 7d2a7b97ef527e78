// Package churn prepares the telco customer table and compares classifiers
// that predict which customers will churn.
//
// The work is split into small packages, each usable on its own:
//
//	dataset                  raw and typed records, CSV/MySQL/PostgreSQL sources, the CSV cache
//	prepare                  schema normalization and record filtering
//	preprocessing            the categorical mapping table, one-hot encoding, scalers
//	sklearn/model_selection  the seeded stratified train/validate/test partition
//	sklearn/{dummy,tree,neighbors,linear_model}
//	                         the classifiers the harness can fit
//	harness                  baseline plus model comparison, test evaluation, predictions
//	explore                  churn rates, summary statistics and hypothesis tests
//	config                   JSON configuration and .env credentials
//	pipeline                 end-to-end wiring used by cmd/churn
//
// # Quick Start
//
//	cfg := config.Default()
//	cfg.Source = config.SourceConfig{Kind: "csv", Path: "telco.csv"}
//
//	src, err := cfg.OpenSource()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := pipeline.Run(ctx, cfg, src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s: test recall %.3f\n", res.Test.ModelID, res.Test.Scores.Recall)
//
// # Determinism
//
// With the same input rows, mapping table, split seed and model
// hyperparameters, every run produces the same partition, the same ranking
// and the same predictions.
//
// # Errors
//
// Errors come from pkg/errors, built on github.com/cockroachdb/errors.
// Per-record problems are collected in the prepare report rather than
// aborting the run; configuration and schema problems stop it before any
// model is fit.
package churn
