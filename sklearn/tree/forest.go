package tree

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/YuminosukeSato/churn/core/model"
	"github.com/YuminosukeSato/churn/core/parallel"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RandomForestClassifier averages the class probabilities of bagged
// decision trees grown on random feature subsets.
type RandomForestClassifier struct {
	state *model.StateManager

	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "sqrt", "log2", "all"
	bootstrap       bool
	randomState     int64

	trees    []*DecisionTreeClassifier
	classes_ []int
}

// ForestOption configures a RandomForestClassifier.
type ForestOption func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithForestCriterion sets the impurity measure of every tree.
func WithForestCriterion(c string) ForestOption {
	return func(rf *RandomForestClassifier) { rf.criterion = c }
}

// WithForestMaxDepth limits the depth of every tree. 0 means unlimited.
func WithForestMaxDepth(d int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.maxDepth = d }
}

// WithForestMinSamplesLeaf sets the minimum leaf size of every tree.
func WithForestMinSamplesLeaf(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithForestMaxFeatures sets the per-split feature subset: "sqrt", "log2"
// or "all".
func WithForestMaxFeatures(m string) ForestOption {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = m }
}

// WithBootstrap sets whether each tree sees a bootstrap sample.
func WithBootstrap(b bool) ForestOption {
	return func(rf *RandomForestClassifier) { rf.bootstrap = b }
}

// WithForestRandomState sets the seed all tree seeds derive from.
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// NewRandomForestClassifier creates a forest with sklearn defaults.
func NewRandomForestClassifier(opts ...ForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// IsFitted returns whether the forest has been fitted.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.state.IsFitted()
}

func (rf *RandomForestClassifier) featuresPerSplit(p int) (int, error) {
	switch rf.maxFeatures {
	case "sqrt":
		return max(1, int(math.Sqrt(float64(p)))), nil
	case "log2":
		return max(1, int(math.Log2(float64(p)))), nil
	case "all", "":
		return 0, nil
	default:
		return 0, errors.NewValueError("RandomForestClassifier", fmt.Sprintf("max_features must be sqrt, log2 or all, got %q", rf.maxFeatures))
	}
}

// Fit grows the forest on X and y.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext grows the trees across CPU cores. Tree seeds are drawn up
// front from randomState, so the result does not depend on scheduling.
func (rf *RandomForestClassifier) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestClassifier.Fit")

	if rf.nEstimators < 1 {
		return errors.NewValueError("RandomForestClassifier", fmt.Sprintf("n_estimators must be >= 1, got %d", rf.nEstimators))
	}
	d, err := newTrainingData("RandomForestClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	k, err := rf.featuresPerSplit(d.nFeatures)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(uint64(rf.randomState), uint64(rf.randomState)))
	seeds := make([]int64, rf.nEstimators)
	samples := make([][]int, rf.nEstimators)
	for i := range seeds {
		seeds[i] = rng.Int64()
		samples[i] = make([]int, d.nSamples)
		for j := range samples[i] {
			if rf.bootstrap {
				samples[i][j] = rng.IntN(d.nSamples)
			} else {
				samples[i][j] = j
			}
		}
	}

	newTree := func(seed int64) *DecisionTreeClassifier {
		return NewDecisionTreeClassifier(
			WithCriterion(rf.criterion),
			WithMaxDepth(rf.maxDepth),
			WithMinSamplesSplit(rf.minSamplesSplit),
			WithMinSamplesLeaf(rf.minSamplesLeaf),
			WithMaxFeatures(k),
			WithRandomState(seed),
		)
	}
	if err := newTree(0).validateParams(); err != nil {
		return err
	}

	trees := make([]*DecisionTreeClassifier, rf.nEstimators)
	var once sync.Once
	var firstErr error
	parallel.Parallelize(rf.nEstimators, func(start, end int) {
		for i := start; i < end; i++ {
			t := newTree(seeds[i])
			err := errors.SafeExecute("RandomForestClassifier.grow", func() error {
				return t.grow(ctx, d, samples[i])
			})
			if err != nil {
				once.Do(func() { firstErr = err })
				return
			}
			t.state.SetDimensions(d.nFeatures, d.nSamples)
			t.state.SetFitted()
			trees[i] = t
		}
	})
	if firstErr != nil {
		return firstErr
	}

	rf.trees = trees
	rf.classes_ = append([]int(nil), d.classes...)
	rf.state.SetDimensions(d.nFeatures, d.nSamples)
	rf.state.SetFitted()
	return nil
}

// PredictProba returns the mean class probabilities over all trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := rf.state.CheckFeatures("RandomForestClassifier.PredictProba", c); err != nil {
		return nil, err
	}

	nClasses := len(rf.classes_)
	out := mat.NewDense(r, nClasses, nil)
	parallel.ParallelizeWithThreshold(r, 64, func(start, end int) {
		x := make([]float64, c)
		p := make([]float64, nClasses)
		sum := make([]float64, nClasses)
		for i := start; i < end; i++ {
			mat.Row(x, i, X)
			for j := range sum {
				sum[j] = 0
			}
			for _, t := range rf.trees {
				t.probaInto(p, x)
				for j := range sum {
					sum[j] += p[j]
				}
			}
			for j := range sum {
				out.Set(i, j, sum[j]/float64(len(rf.trees)))
			}
		}
	})
	return out, nil
}

// Predict returns the class with the highest mean probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxClasses(proba, rf.classes_), nil
}

// Score returns the mean accuracy on X and y.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	return model.MeanAccuracy(y, pred)
}

// Classes returns the sorted labels seen in Fit.
func (rf *RandomForestClassifier) Classes() []int {
	return rf.classes_
}

// GetFeatureImportances returns the mean of the trees' importances.
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	if len(rf.trees) == 0 {
		return nil
	}
	out := make([]float64, len(rf.trees[0].featureImportances_))
	for _, t := range rf.trees {
		for j, v := range t.featureImportances_ {
			out[j] += v / float64(len(rf.trees))
		}
	}
	return out
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
	}
}

func (rf *RandomForestClassifier) String() string {
	return fmt.Sprintf("RandomForestClassifier(n_estimators=%d, max_depth=%d, random_state=%d)", rf.nEstimators, rf.maxDepth, rf.randomState)
}
