// Package harness compares candidate churn classifiers against a
// majority-class baseline.
//
// Every configured model is fitted on the train set and scored on the
// validate set. Results are ranked by a primary metric, ties broken by a
// secondary metric and then by registration order. The test set is touched
// only by Comparison.EvaluateTest, once, after selection is final.
package harness

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/YuminosukeSato/churn/core/model"
	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/metrics"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/YuminosukeSato/churn/pkg/log"
	"github.com/YuminosukeSato/churn/sklearn/dummy"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

var nan = math.NaN()

// BaselineID identifies the majority-class baseline in every Comparison.
const (
	BaselineID     = "baseline"
	BaselineFamily = "most_frequent"
)

// ModelConfig is one candidate: an identifier, a family name and the
// family's hyperparameters.
type ModelConfig struct {
	ID     string `json:"id" validate:"required"`
	Family string `json:"family" validate:"required"`
	Params Params `json:"params,omitempty"`
}

// Options controls a comparison run.
type Options struct {
	// Features selects encoded columns. Empty means every column.
	Features []string

	Primary   metrics.Metric
	Secondary metrics.Metric

	// Parallelism bounds concurrent fits; 0 means runtime.NumCPU().
	Parallelism int

	// FitTimeout bounds each configuration's fit and validation; 0 means no limit.
	FitTimeout time.Duration

	// Registry resolves family names; nil means DefaultRegistry().
	Registry *Registry

	Logger log.Logger
}

// DefaultOptions ranks by recall, then accuracy, over every column.
func DefaultOptions() Options {
	return Options{
		Primary:   metrics.MetricRecall,
		Secondary: metrics.MetricAccuracy,
	}
}

func (o *Options) validate() error {
	if _, err := metrics.ParseMetric("metric_primary", string(o.Primary)); err != nil {
		return err
	}
	if _, err := metrics.ParseMetric("metric_secondary", string(o.Secondary)); err != nil {
		return err
	}
	if o.Parallelism < 0 {
		return errors.NewConfigurationError("parallelism", "must be >= 0", o.Parallelism)
	}
	if o.FitTimeout < 0 {
		return errors.NewConfigurationError("fit_timeout", "must be >= 0", o.FitTimeout)
	}
	if o.Parallelism == 0 {
		o.Parallelism = runtime.NumCPU()
	}
	if o.Registry == nil {
		o.Registry = DefaultRegistry()
	}
	if o.Logger == nil {
		o.Logger = log.GetLoggerWithName("harness")
	}
	return nil
}

// ModelResult is the validation outcome of one configuration.
type ModelResult struct {
	ID       string
	Family   string
	Params   Params
	Baseline bool

	// Failed results carry Err (a ModelFitError) and no scores.
	Failed bool
	Err    error

	Primary   float64
	Secondary float64
	Scores    metrics.Report

	// AUC and LogLoss score P(churned); both are NaN when the classifier
	// never saw the churned label.
	AUC     float64
	LogLoss float64

	// Useful reports Primary strictly above the baseline's Primary.
	Useful bool

	FitDuration time.Duration

	order int
	model model.Classifier
}

// Model returns the fitted classifier, nil for failed results.
func (r *ModelResult) Model() model.Classifier { return r.model }

// Compare fits the baseline and every configuration on train and scores
// them on validate.
//
// Configuration problems (duplicate ids, unknown families, bad metrics) are
// returned before any fitting. A configuration that fails to fit is
// recorded as a failed ModelResult; it never fails the comparison.
func Compare(ctx context.Context, train, validate *dataset.EncodedSet, configs []ModelConfig, opts Options) (*Comparison, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	families, err := resolveConfigs(configs, opts.Registry)
	if err != nil {
		return nil, err
	}
	Xtr, ytr, err := train.XY(opts.Features)
	if err != nil {
		return nil, errors.Wrap(err, "train set")
	}
	Xva, yva, err := validate.XY(opts.Features)
	if err != nil {
		return nil, errors.Wrap(err, "validate set")
	}
	logger := opts.Logger.With(log.PhaseKey, log.PhaseValidation)
	logger.Info("comparing models",
		"models", len(configs),
		log.TrainSizeKey, train.Len(),
		log.ValidateSizeKey, validate.Len(),
		log.FeaturesKey, len(opts.Features),
	)

	c := &Comparison{
		Primary:   opts.Primary,
		Secondary: opts.Secondary,
		Features:  append([]string(nil), opts.Features...),
		logger:    opts.Logger,
	}

	baseline := &ModelResult{ID: BaselineID, Family: BaselineFamily, Baseline: true}
	start := time.Now()
	d := dummy.NewDummyClassifier()
	if err := d.Fit(Xtr, ytr); err != nil {
		return nil, errors.Wrap(err, "fit baseline")
	}
	baseline.FitDuration = time.Since(start)
	baseline.model = d
	if err := c.score(baseline, Xva, yva); err != nil {
		return nil, errors.Wrap(err, "score baseline")
	}
	c.baseline = baseline

	results := make([]*ModelResult, len(configs))
	var g errgroup.Group
	g.SetLimit(opts.Parallelism)
	for i, cfg := range configs {
		g.Go(func() error {
			results[i] = c.run(ctx, cfg, families[i], i+1, opts.FitTimeout, Xtr, ytr, Xva, yva)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "compare models")
	}

	ranked := []*ModelResult{baseline}
	for _, r := range results {
		if r.Failed {
			c.failed = append(c.failed, r)
			logger.Warn("model fit failed", r.Err, log.EstimatorIDKey, r.ID, log.FamilyKey, r.Family)
			continue
		}
		r.Useful = r.Primary > baseline.Primary
		ranked = append(ranked, r)
	}
	rank(ranked)
	c.ranked = ranked

	for i, r := range ranked {
		logger.Info("model ranked",
			"rank", i+1,
			log.EstimatorIDKey, r.ID,
			log.FamilyKey, r.Family,
			log.PrimaryKey, r.Primary,
			log.SecondaryKey, r.Secondary,
			log.UsefulKey, r.Useful,
			log.DurationMsKey, r.FitDuration.Milliseconds(),
		)
	}
	return c, nil
}

func resolveConfigs(configs []ModelConfig, registry *Registry) ([]Family, error) {
	seen := make(map[string]bool, len(configs))
	families := make([]Family, len(configs))
	for i, cfg := range configs {
		switch {
		case cfg.ID == "":
			return nil, errors.NewConfigurationError("models.id", "must not be empty", cfg.ID)
		case cfg.ID == BaselineID:
			return nil, errors.NewConfigurationError("models.id", "reserved for the baseline", cfg.ID)
		case seen[cfg.ID]:
			return nil, errors.NewConfigurationError("models.id", "duplicate model id", cfg.ID)
		}
		seen[cfg.ID] = true
		f, ok := registry.Lookup(cfg.Family)
		if !ok {
			return nil, errors.NewConfigurationError("models.family",
				fmt.Sprintf("unknown family for %s, registered: %v", cfg.ID, registry.Names()), cfg.Family)
		}
		families[i] = f
	}
	return families, nil
}

// run fits and scores one configuration. Panics and errors both end up in
// a ModelFitError on the returned result.
func (c *Comparison) run(ctx context.Context, cfg ModelConfig, f Family, order int, timeout time.Duration,
	Xtr, ytr, Xva, yva mat.Matrix) *ModelResult {
	r := &ModelResult{ID: cfg.ID, Family: cfg.Family, Params: cfg.Params, order: order}
	fitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := errors.SafeExecute("fit "+cfg.ID, func() error {
		m, err := f.Fit(fitCtx, Xtr, ytr, cfg.Params)
		if err != nil {
			return err
		}
		r.FitDuration = time.Since(start)
		r.model = m
		return c.score(r, Xva, yva)
	})
	if err != nil {
		r.Failed = true
		r.Err = errors.NewModelFitError(cfg.ID, cfg.Family, err)
		r.model = nil
	}
	return r
}

// score predicts validate and fills the metric fields of r.
func (c *Comparison) score(r *ModelResult, X, y mat.Matrix) error {
	rep, ps, err := evaluate(r.model, X, y)
	if err != nil {
		return err
	}
	r.Scores = rep
	r.AUC, r.LogLoss = ps.auc, ps.logLoss
	r.Primary = rep.Score(c.Primary)
	r.Secondary = rep.Score(c.Secondary)
	return nil
}

type probScores struct {
	auc     float64
	logLoss float64
}

func evaluate(m model.Classifier, X, y mat.Matrix) (metrics.Report, probScores, error) {
	yPred, err := m.Predict(X)
	if err != nil {
		return metrics.Report{}, probScores{}, errors.Wrap(err, "predict")
	}
	rep, err := metrics.Evaluate(y, yPred)
	if err != nil {
		return metrics.Report{}, probScores{}, err
	}
	return rep, positiveScores(m, X, y), nil
}

// positiveScores returns ROC AUC and log loss of P(churned). A score that
// cannot be computed is NaN.
func positiveScores(m model.Classifier, X, y mat.Matrix) probScores {
	ps := probScores{auc: nan, logLoss: nan}
	p, err := positiveProba(m, X)
	if err != nil || p == nil {
		return ps
	}
	yTrue := mat.NewVecDense(len(p), mat.Col(nil, 0, y))
	yProb := mat.NewVecDense(len(p), p)
	if auc, err := metrics.AUC(yTrue, yProb); err == nil {
		ps.auc = auc
	}
	if ll, err := metrics.BinaryLogLoss(yTrue, yProb); err == nil {
		ps.logLoss = ll
	}
	return ps
}

// positiveProba returns the probability column of label 1, or nil when the
// classifier never saw label 1.
func positiveProba(m model.Classifier, X mat.Matrix) ([]float64, error) {
	col := -1
	for j, cl := range m.Classes() {
		if cl == 1 {
			col = j
		}
	}
	if col < 0 {
		return nil, nil
	}
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, col, proba), nil
}

// rank orders results by primary desc, secondary desc, then registration
// order with the baseline first.
func rank(results []*ModelResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Primary != b.Primary {
			return a.Primary > b.Primary
		}
		if a.Secondary != b.Secondary {
			return a.Secondary > b.Secondary
		}
		return a.order < b.order
	})
}

// Comparison is the ranked outcome of Compare.
type Comparison struct {
	Primary   metrics.Metric
	Secondary metrics.Metric
	Features  []string

	logger   log.Logger
	baseline *ModelResult
	ranked   []*ModelResult
	failed   []*ModelResult

	mu   sync.Mutex
	test *TestEvaluation
}

// Ranked returns the baseline and every successful result, best first.
func (c *Comparison) Ranked() []*ModelResult {
	return append([]*ModelResult(nil), c.ranked...)
}

// Failed returns configurations that failed to fit, in registration order.
func (c *Comparison) Failed() []*ModelResult {
	return append([]*ModelResult(nil), c.failed...)
}

// Baseline returns the majority-class baseline result.
func (c *Comparison) Baseline() *ModelResult {
	return c.baseline
}

// Selected returns the top-ranked non-baseline result. It returns
// ErrNoSelection when every configuration failed.
func (c *Comparison) Selected() (*ModelResult, error) {
	for _, r := range c.ranked {
		if !r.Baseline {
			return r, nil
		}
	}
	return nil, errors.WithStack(errors.ErrNoSelection)
}

// TestEvaluation is the final, reported performance of the selected model.
type TestEvaluation struct {
	ModelID string
	Samples int
	Primary float64
	Scores  metrics.Report
	AUC     float64
	LogLoss float64
}

// EvaluateTest scores the selected model on test. The first successful
// evaluation is kept; later calls return it without touching test again.
func (c *Comparison) EvaluateTest(ctx context.Context, test *dataset.EncodedSet) (*TestEvaluation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.test != nil {
		return c.test, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "evaluate test")
	}
	sel, err := c.Selected()
	if err != nil {
		return nil, err
	}
	X, y, err := test.XY(c.Features)
	if err != nil {
		return nil, errors.Wrap(err, "test set")
	}
	rep, ps, err := evaluate(sel.model, X, y)
	if err != nil {
		return nil, errors.Wrapf(err, "evaluate %s on test", sel.ID)
	}
	c.test = &TestEvaluation{
		ModelID: sel.ID,
		Samples: test.Len(),
		Primary: rep.Score(c.Primary),
		Scores:  rep,
		AUC:     ps.auc,
		LogLoss: ps.logLoss,
	}
	c.logger.Info("test evaluation",
		log.PhaseKey, log.PhaseTesting,
		log.EstimatorIDKey, sel.ID,
		log.TestSizeKey, test.Len(),
		log.RecallKey, rep.Recall,
		log.AccuracyKey, rep.Accuracy,
		log.AUCKey, ps.auc,
		log.LogLossKey, ps.logLoss,
	)
	return c.test, nil
}

// Prediction is the selected model's output for one customer.
type Prediction struct {
	CustomerID  string  `csv:"customer_id" json:"customer_id"`
	Probability float64 `csv:"probability" json:"probability"`
	Churn       bool    `csv:"predicted_churn" json:"predicted_churn"`
}

// Predict applies the selected model to set, which need not be labeled.
func (c *Comparison) Predict(set *dataset.EncodedSet) ([]Prediction, error) {
	sel, err := c.Selected()
	if err != nil {
		return nil, err
	}
	if set.Len() == 0 {
		return nil, nil
	}
	X, err := set.X(c.Features)
	if err != nil {
		return nil, err
	}
	yPred, err := sel.model.Predict(X)
	if err != nil {
		return nil, errors.Wrapf(err, "predict with %s", sel.ID)
	}
	proba, err := positiveProba(sel.model, X)
	if err != nil {
		return nil, errors.Wrapf(err, "predict probabilities with %s", sel.ID)
	}
	out := make([]Prediction, set.Len())
	for i, r := range set.Records {
		out[i] = Prediction{CustomerID: r.CustomerID, Churn: yPred.At(i, 0) == 1}
		if proba != nil {
			out[i].Probability = proba[i]
		}
	}
	return out, nil
}
