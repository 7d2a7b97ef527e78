package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/YuminosukeSato/churn/core/model"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/YuminosukeSato/churn/preprocessing"
	"github.com/YuminosukeSato/churn/sklearn/linear_model"
	"github.com/YuminosukeSato/churn/sklearn/neighbors"
	"github.com/YuminosukeSato/churn/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

// Family names registered by DefaultRegistry.
const (
	FamilyDecisionTree       = "decision_tree"
	FamilyRandomForest       = "random_forest"
	FamilyKNN                = "knn"
	FamilyLogisticRegression = "logistic_regression"
)

// Family fits one kind of classifier from a parameter record. Adding a
// classifier to the comparison means implementing Family and registering it.
type Family interface {
	Name() string
	Fit(ctx context.Context, X, y mat.Matrix, params Params) (model.Classifier, error)
}

// contextFitter is implemented by classifiers whose fit can be cancelled.
type contextFitter interface {
	FitContext(ctx context.Context, X, y mat.Matrix) error
}

func fitClassifier(ctx context.Context, c model.Classifier, X, y mat.Matrix) error {
	if cf, ok := c.(contextFitter); ok {
		return cf.FitContext(ctx, X, y)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Fit(X, y)
}

// Registry maps family names to implementations in registration order.
type Registry struct {
	mu       sync.RWMutex
	families map[string]Family
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{families: make(map[string]Family)}
}

// DefaultRegistry returns a registry holding the decision tree, random
// forest, k-nearest neighbours and logistic regression families.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, f := range []Family{
		DecisionTreeFamily{},
		RandomForestFamily{},
		KNNFamily{},
		LogisticRegressionFamily{},
	} {
		_ = r.Register(f)
	}
	return r
}

// Register adds f. Registering a name twice is a ConfigurationError.
func (r *Registry) Register(f Family) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := f.Name()
	if name == "" {
		return errors.NewConfigurationError("family", "name must not be empty", name)
	}
	if _, dup := r.families[name]; dup {
		return errors.NewConfigurationError("family", "already registered", name)
	}
	r.families[name] = f
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the family registered under name.
func (r *Registry) Lookup(name string) (Family, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[name]
	return f, ok
}

// Names lists registered families in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// DecisionTreeFamily fits a tree.DecisionTreeClassifier.
//
// Params: criterion, max_depth, min_samples_split, min_samples_leaf,
// max_features, min_impurity_decrease, random_state.
type DecisionTreeFamily struct{}

func (DecisionTreeFamily) Name() string { return FamilyDecisionTree }

func (DecisionTreeFamily) Fit(ctx context.Context, X, y mat.Matrix, p Params) (model.Classifier, error) {
	if err := p.Only("criterion", "max_depth", "min_samples_split", "min_samples_leaf",
		"max_features", "min_impurity_decrease", "random_state"); err != nil {
		return nil, err
	}
	var r paramReader
	opts := []tree.Option{
		tree.WithCriterion(r.str(p, "criterion", "gini")),
		tree.WithMaxDepth(r.int(p, "max_depth", 0)),
		tree.WithMinSamplesSplit(r.int(p, "min_samples_split", 2)),
		tree.WithMinSamplesLeaf(r.int(p, "min_samples_leaf", 1)),
		tree.WithMaxFeatures(r.int(p, "max_features", 0)),
		tree.WithMinImpurityDecrease(r.float(p, "min_impurity_decrease", 0)),
		tree.WithRandomState(int64(r.int(p, "random_state", 0))),
	}
	if r.err != nil {
		return nil, r.err
	}
	c := tree.NewDecisionTreeClassifier(opts...)
	if err := c.FitContext(ctx, X, y); err != nil {
		return nil, err
	}
	return c, nil
}

// RandomForestFamily fits a tree.RandomForestClassifier.
//
// Params: n_estimators, criterion, max_depth, min_samples_leaf,
// max_features, bootstrap, random_state.
type RandomForestFamily struct{}

func (RandomForestFamily) Name() string { return FamilyRandomForest }

func (RandomForestFamily) Fit(ctx context.Context, X, y mat.Matrix, p Params) (model.Classifier, error) {
	if err := p.Only("n_estimators", "criterion", "max_depth", "min_samples_leaf",
		"max_features", "bootstrap", "random_state"); err != nil {
		return nil, err
	}
	var r paramReader
	opts := []tree.ForestOption{
		tree.WithNEstimators(r.int(p, "n_estimators", 100)),
		tree.WithForestCriterion(r.str(p, "criterion", "gini")),
		tree.WithForestMaxDepth(r.int(p, "max_depth", 0)),
		tree.WithForestMinSamplesLeaf(r.int(p, "min_samples_leaf", 1)),
		tree.WithForestMaxFeatures(r.str(p, "max_features", "sqrt")),
		tree.WithBootstrap(r.bool(p, "bootstrap", true)),
		tree.WithForestRandomState(int64(r.int(p, "random_state", 0))),
	}
	if r.err != nil {
		return nil, r.err
	}
	c := tree.NewRandomForestClassifier(opts...)
	if err := c.FitContext(ctx, X, y); err != nil {
		return nil, err
	}
	return c, nil
}

// KNNFamily fits a neighbors.KNeighborsClassifier behind a feature scaler,
// since distances are meaningless across unscaled columns.
//
// Params: n_neighbors, weights, p, scaler ("standard" by default).
type KNNFamily struct{}

func (KNNFamily) Name() string { return FamilyKNN }

func (KNNFamily) Fit(ctx context.Context, X, y mat.Matrix, p Params) (model.Classifier, error) {
	if err := p.Only("n_neighbors", "weights", "p", "scaler"); err != nil {
		return nil, err
	}
	var r paramReader
	opts := []neighbors.Option{
		neighbors.WithNNeighbors(r.int(p, "n_neighbors", 5)),
		neighbors.WithWeights(r.str(p, "weights", "uniform")),
		neighbors.WithP(r.float(p, "p", 2)),
	}
	scaler := r.str(p, "scaler", "standard")
	if r.err != nil {
		return nil, r.err
	}
	return fitScaled(ctx, scaler, neighbors.NewKNeighborsClassifier(opts...), X, y)
}

// LogisticRegressionFamily fits a linear_model.LogisticRegression behind a
// feature scaler.
//
// Params: penalty, C, fit_intercept, class_weight, max_iter, tol,
// random_state, scaler ("standard" by default).
type LogisticRegressionFamily struct{}

func (LogisticRegressionFamily) Name() string { return FamilyLogisticRegression }

func (LogisticRegressionFamily) Fit(ctx context.Context, X, y mat.Matrix, p Params) (model.Classifier, error) {
	if err := p.Only("penalty", "C", "fit_intercept", "class_weight", "max_iter",
		"tol", "random_state", "scaler"); err != nil {
		return nil, err
	}
	var r paramReader
	opts := []linear_model.LogisticRegressionOption{
		linear_model.WithLRPenalty(r.str(p, "penalty", "l2")),
		linear_model.WithLRC(r.float(p, "C", 1.0)),
		linear_model.WithLogisticFitIntercept(r.bool(p, "fit_intercept", true)),
		linear_model.WithLRClassWeight(r.str(p, "class_weight", "none")),
		linear_model.WithLRMaxIter(r.int(p, "max_iter", 100)),
		linear_model.WithLRTol(r.float(p, "tol", 1e-4)),
		linear_model.WithLRRandomState(int64(r.int(p, "random_state", 0))),
	}
	scaler := r.str(p, "scaler", "standard")
	if r.err != nil {
		return nil, r.err
	}
	return fitScaled(ctx, scaler, linear_model.NewLogisticRegression(opts...), X, y)
}

// paramReader keeps the first conversion error so option lists can be
// built in one expression.
type paramReader struct {
	err error
}

func (r *paramReader) int(p Params, key string, def int) int {
	v, err := p.Int(key, def)
	r.keep(err)
	return v
}

func (r *paramReader) float(p Params, key string, def float64) float64 {
	v, err := p.Float(key, def)
	r.keep(err)
	return v
}

func (r *paramReader) str(p Params, key, def string) string {
	v, err := p.String(key, def)
	r.keep(err)
	return v
}

func (r *paramReader) bool(p Params, key string, def bool) bool {
	v, err := p.Bool(key, def)
	r.keep(err)
	return v
}

func (r *paramReader) keep(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// ScaledClassifier applies a fitted scaler before every call to the
// wrapped classifier.
type ScaledClassifier struct {
	Scaler     model.Transformer
	Classifier model.Classifier
}

func fitScaled(ctx context.Context, kind string, c model.Classifier, X, y mat.Matrix) (model.Classifier, error) {
	scaler, err := preprocessing.NewScaler(kind)
	if err != nil {
		return nil, err
	}
	if scaler == nil {
		if err := fitClassifier(ctx, c, X, y); err != nil {
			return nil, err
		}
		return c, nil
	}
	s := &ScaledClassifier{Scaler: scaler, Classifier: c}
	if err := s.FitContext(ctx, X, y); err != nil {
		return nil, err
	}
	return s, nil
}

// Fit fits the scaler on X, then the classifier on the scaled X.
func (s *ScaledClassifier) Fit(X, y mat.Matrix) error {
	return s.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation passed to the classifier.
func (s *ScaledClassifier) FitContext(ctx context.Context, X, y mat.Matrix) error {
	Xs, err := s.Scaler.FitTransform(X)
	if err != nil {
		return errors.Wrap(err, "scale features")
	}
	return fitClassifier(ctx, s.Classifier, Xs, y)
}

// IsFitted reports whether both stages are fitted.
func (s *ScaledClassifier) IsFitted() bool {
	return s.Scaler.IsFitted() && s.Classifier.IsFitted()
}

func (s *ScaledClassifier) scale(X mat.Matrix) (mat.Matrix, error) {
	if !s.Scaler.IsFitted() {
		return nil, errors.NewNotFittedError("ScaledClassifier", "Transform")
	}
	return s.Scaler.Transform(X)
}

// Predict returns class labels for X.
func (s *ScaledClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	Xs, err := s.scale(X)
	if err != nil {
		return nil, err
	}
	return s.Classifier.Predict(Xs)
}

// PredictProba returns class probabilities for X.
func (s *ScaledClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	Xs, err := s.scale(X)
	if err != nil {
		return nil, err
	}
	return s.Classifier.PredictProba(Xs)
}

// Score returns mean accuracy on X and y.
func (s *ScaledClassifier) Score(X, y mat.Matrix) (float64, error) {
	Xs, err := s.scale(X)
	if err != nil {
		return 0, err
	}
	return s.Classifier.Score(Xs, y)
}

// Classes returns the classes of the wrapped classifier.
func (s *ScaledClassifier) Classes() []int {
	return s.Classifier.Classes()
}

func (s *ScaledClassifier) String() string {
	return fmt.Sprintf("Scaled(%v, %v)", s.Scaler, s.Classifier)
}
