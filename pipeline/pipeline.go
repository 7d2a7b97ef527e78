// Package pipeline wires the stages together: fetch raw rows, prepare,
// encode, partition, compare models, evaluate the selected model on test
// once, and predict.
package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/churn/config"
	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/harness"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/YuminosukeSato/churn/pkg/log"
	"github.com/YuminosukeSato/churn/prepare"
	"github.com/YuminosukeSato/churn/preprocessing"
	"github.com/YuminosukeSato/churn/sklearn/model_selection"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
)

// Prepared is everything computed before model fitting.
type Prepared struct {
	RunID string

	Records []dataset.Record
	Report  prepare.Report

	Encoded   *dataset.EncodedSet
	Unlabeled *dataset.EncodedSet
	Partition model_selection.Partition
}

// Result is the outcome of a full run.
type Result struct {
	*Prepared

	Comparison  *harness.Comparison
	Test        *harness.TestEvaluation
	Predictions []harness.Prediction
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

func runLogger(runID string) log.Logger {
	return log.GetLoggerWithName("pipeline").With(log.RunIDKey, runID)
}

// Acquire fetches raw rows from src.
func Acquire(ctx context.Context, src dataset.Source) ([]dataset.RawRecord, error) {
	start := time.Now()
	raw, err := src.FetchAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch raw records")
	}
	log.GetLoggerWithName("pipeline").Info("fetched raw records",
		log.PhaseKey, log.PhaseAcquire,
		log.SamplesKey, len(raw),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return raw, nil
}

// Prepare validates cfg, fetches, prepares, encodes and partitions. Any
// configuration problem is reported before src is touched.
func Prepare(ctx context.Context, cfg *config.Config, src dataset.Source) (*Prepared, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.SplitOptions().Check(); err != nil {
		return nil, err
	}
	encoder, err := preprocessing.NewCategoricalEncoder(cfg.MappingTable())
	if err != nil {
		return nil, err
	}

	p := &Prepared{RunID: NewRunID()}
	logger := runLogger(p.RunID)

	raw, err := Acquire(ctx, src)
	if err != nil {
		return nil, err
	}

	p.Records, p.Report, err = prepare.Prepare(raw, cfg.PrepareOptions())
	if err != nil {
		return nil, err
	}

	encoded, err := encoder.Encode(p.Records)
	if err != nil {
		return nil, errors.Wrap(err, "encode records")
	}
	p.Encoded = encoded
	labeled, unlabeled := encoded.Split()
	p.Unlabeled = unlabeled
	logger.Info("encoded records",
		log.PhaseKey, log.PhaseEncode,
		log.MappingVersionKey, encoder.Version(),
		log.FeaturesKey, len(encoder.Columns()),
		log.SamplesKey, encoded.Len(),
		"unlabeled", unlabeled.Len(),
	)

	p.Partition, err = model_selection.TrainValidateTestSplit(labeled, cfg.SplitOptions())
	if err != nil {
		return nil, errors.Wrap(err, "partition labeled records")
	}
	train, validate, test := p.Partition.Sizes()
	logger.Info("partitioned records",
		log.PhaseKey, log.PhasePartition,
		log.RandomSeedKey, cfg.Split.Seed,
		log.TrainSizeKey, train,
		log.ValidateSizeKey, validate,
		log.TestSizeKey, test,
		"churn_rate", labeled.ChurnRate(),
	)
	return p, nil
}

// Compare runs the model harness on a prepared partition.
func Compare(ctx context.Context, cfg *config.Config, p *Prepared) (*harness.Comparison, error) {
	opts := cfg.HarnessOptions()
	opts.Logger = log.GetLoggerWithName("harness").With(log.RunIDKey, p.RunID)
	return harness.Compare(ctx, p.Partition.Train, p.Partition.Validate, cfg.Models, opts)
}

// Run executes the full pipeline.
func Run(ctx context.Context, cfg *config.Config, src dataset.Source) (*Result, error) {
	p, err := Prepare(ctx, cfg, src)
	if err != nil {
		return nil, err
	}
	res := &Result{Prepared: p}

	res.Comparison, err = Compare(ctx, cfg, p)
	if err != nil {
		return nil, err
	}
	sel, err := res.Comparison.Selected()
	if err != nil {
		return res, err
	}

	res.Test, err = res.Comparison.EvaluateTest(ctx, p.Partition.Test)
	if err != nil {
		return res, err
	}

	target := p.Unlabeled
	if cfg.Predictions.Scope == config.ScopeTest {
		target = p.Partition.Test
	}
	res.Predictions, err = res.Comparison.Predict(target)
	if err != nil {
		return res, err
	}
	runLogger(p.RunID).Info("run finished",
		log.PhaseKey, log.PhaseInference,
		log.EstimatorIDKey, sel.ID,
		log.RecallKey, res.Test.Scores.Recall,
		log.AccuracyKey, res.Test.Scores.Accuracy,
		"predictions", len(res.Predictions),
		"scope", cfg.Predictions.Scope,
	)
	return res, nil
}

// WritePredictions writes rows as CSV with a header row.
func WritePredictions(w io.Writer, rows []harness.Prediction) error {
	if rows == nil {
		rows = []harness.Prediction{}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return errors.Wrap(err, "write predictions")
	}
	return nil
}

// WritePredictionsFile writes rows to path, creating parent directories.
func WritePredictionsFile(path string, rows []harness.Prediction) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	return WritePredictions(f, rows)
}
