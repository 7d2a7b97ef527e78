// Package tree implements CART decision trees and random forests on gonum
// matrices.
package tree

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/churn/core/model"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DecisionTreeClassifier is a CART classifier with gini or entropy
// impurity. Splits are binary thresholds "x <= t goes left".
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion           string  // "gini" or "entropy"
	maxDepth            int     // root depth is 0; 0 means unlimited
	minSamplesSplit     int     // minimum samples to attempt a split
	minSamplesLeaf      int     // minimum samples in each child
	maxFeatures         int     // features tried per split; 0 means all
	minImpurityDecrease float64 // weighted decrease required to split
	randomState         int64   // seed for feature subsampling

	// Fitted state
	root                *node
	classes_            []int
	nClasses_           int
	featureImportances_ []float64
	depth_              int
	nLeaves_            int
}

// node is an internal split or a leaf. Leaves carry class counts.
type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node

	leaf   bool
	counts []float64
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity measure, "gini" or "entropy".
func WithCriterion(c string) Option {
	return func(t *DecisionTreeClassifier) { t.criterion = c }
}

// WithMaxDepth limits tree depth. 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(t *DecisionTreeClassifier) { t.maxDepth = d }
}

// WithMinSamplesSplit sets the minimum node size that may be split.
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeClassifier) { t.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum size of each child.
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeClassifier) { t.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many randomly chosen features are tried per split.
func WithMaxFeatures(k int) Option {
	return func(t *DecisionTreeClassifier) { t.maxFeatures = k }
}

// WithMinImpurityDecrease sets the smallest weighted impurity decrease
// that justifies a split.
func WithMinImpurityDecrease(v float64) Option {
	return func(t *DecisionTreeClassifier) { t.minImpurityDecrease = v }
}

// WithRandomState sets the seed used when maxFeatures subsamples features.
func WithRandomState(seed int64) Option {
	return func(t *DecisionTreeClassifier) { t.randomState = seed }
}

// NewDecisionTreeClassifier creates a tree with sklearn defaults.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	t := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *DecisionTreeClassifier) validateParams() error {
	switch {
	case t.criterion != "gini" && t.criterion != "entropy":
		return errors.NewValueError("DecisionTreeClassifier", fmt.Sprintf("criterion must be gini or entropy, got %q", t.criterion))
	case t.maxDepth < 0:
		return errors.NewValueError("DecisionTreeClassifier", fmt.Sprintf("max_depth must be >= 0, got %d", t.maxDepth))
	case t.minSamplesSplit < 2:
		return errors.NewValueError("DecisionTreeClassifier", fmt.Sprintf("min_samples_split must be >= 2, got %d", t.minSamplesSplit))
	case t.minSamplesLeaf < 1:
		return errors.NewValueError("DecisionTreeClassifier", fmt.Sprintf("min_samples_leaf must be >= 1, got %d", t.minSamplesLeaf))
	case t.maxFeatures < 0:
		return errors.NewValueError("DecisionTreeClassifier", fmt.Sprintf("max_features must be >= 0, got %d", t.maxFeatures))
	}
	return nil
}

// IsFitted returns whether the tree has been fitted.
func (t *DecisionTreeClassifier) IsFitted() bool {
	return t.state.IsFitted()
}

// Fit grows the tree on X and the label column y.
func (t *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return t.FitContext(context.Background(), X, y)
}

// FitContext grows the tree, returning early when ctx is done.
func (t *DecisionTreeClassifier) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "DecisionTreeClassifier.Fit")

	if err := t.validateParams(); err != nil {
		return err
	}
	d, err := newTrainingData("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	idx := make([]int, d.nSamples)
	for i := range idx {
		idx[i] = i
	}
	if err := t.grow(ctx, d, idx); err != nil {
		return err
	}
	t.state.SetDimensions(d.nFeatures, d.nSamples)
	t.state.SetFitted()
	return nil
}

// grow builds the tree on the rows in idx, which may repeat for bootstrap
// samples. Class indices follow d.classes.
func (t *DecisionTreeClassifier) grow(ctx context.Context, d *trainingData, idx []int) error {
	b := &builder{
		ctx:         ctx,
		tree:        t,
		data:        d,
		rng:         rand.New(rand.NewPCG(uint64(t.randomState), uint64(t.randomState)^0x9e3779b97f4a7c15)),
		importances: make([]float64, d.nFeatures),
		total:       float64(len(idx)),
	}
	root, err := b.build(idx, 0)
	if err != nil {
		return err
	}

	sum := 0.0
	for _, v := range b.importances {
		sum += v
	}
	if sum > 0 {
		for j := range b.importances {
			b.importances[j] /= sum
		}
	}

	t.root = root
	t.classes_ = append([]int(nil), d.classes...)
	t.nClasses_ = len(d.classes)
	t.featureImportances_ = b.importances
	t.depth_ = b.depth
	t.nLeaves_ = b.leaves
	return nil
}

// trainingData holds X column-major with labels as class indices.
type trainingData struct {
	cols      [][]float64
	labels    []int
	classes   []int
	nSamples  int
	nFeatures int
}

func newTrainingData(op string, X, y mat.Matrix) (*trainingData, error) {
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, op)
	}
	if yRows != nSamples {
		return nil, errors.NewDimensionError(op, nSamples, yRows, 0)
	}
	if yCols != 1 {
		return nil, errors.NewDimensionError(op, 1, yCols, 1)
	}

	d := &trainingData{
		cols:      make([][]float64, nFeatures),
		labels:    make([]int, nSamples),
		nSamples:  nSamples,
		nFeatures: nFeatures,
	}
	for j := range d.cols {
		d.cols[j] = make([]float64, nSamples)
		mat.Col(d.cols[j], j, X)
		if err := errors.CheckNumericalStability(op, d.cols[j], 0); err != nil {
			return nil, err
		}
	}

	d.classes = uniqueClasses(y)
	index := make(map[int]int, len(d.classes))
	for i, c := range d.classes {
		index[c] = i
	}
	for i := 0; i < nSamples; i++ {
		d.labels[i] = index[int(y.At(i, 0))]
	}
	return d, nil
}

// uniqueClasses returns the sorted distinct labels in y.
func uniqueClasses(y mat.Matrix) []int {
	n, _ := y.Dims()
	seen := make(map[int]bool)
	var classes []int
	for i := 0; i < n; i++ {
		c := int(y.At(i, 0))
		if !seen[c] {
			seen[c] = true
			classes = append(classes, c)
		}
	}
	sort.Ints(classes)
	return classes
}

type builder struct {
	ctx         context.Context
	tree        *DecisionTreeClassifier
	data        *trainingData
	rng         *rand.Rand
	importances []float64
	total       float64
	depth       int
	leaves      int
}

func (b *builder) impurity(counts []float64, n float64) float64 {
	if b.tree.criterion == "entropy" {
		return entropy(counts, n)
	}
	return gini(counts, n)
}

func (b *builder) leaf(counts []float64, depth int) *node {
	b.leaves++
	if depth > b.depth {
		b.depth = depth
	}
	return &node{leaf: true, counts: counts}
}

func (b *builder) build(idx []int, depth int) (*node, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "DecisionTreeClassifier.Fit")
	}

	t := b.tree
	counts := make([]float64, len(b.data.classes))
	for _, i := range idx {
		counts[b.data.labels[i]]++
	}
	n := float64(len(idx))

	if isPure(counts) || len(idx) < t.minSamplesSplit || (t.maxDepth > 0 && depth >= t.maxDepth) {
		return b.leaf(counts, depth), nil
	}

	parent := b.impurity(counts, n)
	best := split{feature: -1, impurity: math.Inf(1)}
	for _, f := range b.candidateFeatures() {
		if s := b.bestSplit(idx, f); s.feature >= 0 && s.impurity < best.impurity {
			best = s
		}
	}
	if best.feature < 0 {
		return b.leaf(counts, depth), nil
	}
	decrease := n / b.total * (parent - best.impurity)
	if decrease < t.minImpurityDecrease-1e-12 {
		return b.leaf(counts, depth), nil
	}
	b.importances[best.feature] += math.Max(decrease, 0)

	var left, right []int
	col := b.data.cols[best.feature]
	for _, i := range idx {
		if col[i] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l, err := b.build(left, depth+1)
	if err != nil {
		return nil, err
	}
	r, err := b.build(right, depth+1)
	if err != nil {
		return nil, err
	}
	return &node{feature: best.feature, threshold: best.threshold, left: l, right: r, counts: counts}, nil
}

// candidateFeatures returns every feature, or maxFeatures of them drawn
// without replacement.
func (b *builder) candidateFeatures() []int {
	p := b.data.nFeatures
	features := make([]int, p)
	for j := range features {
		features[j] = j
	}
	if k := b.tree.maxFeatures; k > 0 && k < p {
		for i := 0; i < k; i++ {
			j := i + b.rng.IntN(p-i)
			features[i], features[j] = features[j], features[i]
		}
		features = features[:k]
		sort.Ints(features)
	}
	return features
}

type split struct {
	feature   int
	threshold float64
	impurity  float64 // weighted child impurity
}

// bestSplit sweeps the sorted values of feature f, keeping the threshold
// with the lowest weighted child impurity.
func (b *builder) bestSplit(idx []int, f int) split {
	col := b.data.cols[f]
	order := append([]int(nil), idx...)
	sort.SliceStable(order, func(a, c int) bool { return col[order[a]] < col[order[c]] })

	nClasses := len(b.data.classes)
	left := make([]float64, nClasses)
	right := make([]float64, nClasses)
	for _, i := range order {
		right[b.data.labels[i]]++
	}

	n := len(order)
	minLeaf := b.tree.minSamplesLeaf
	best := split{feature: -1, impurity: math.Inf(1)}
	for k := 0; k < n-1; k++ {
		label := b.data.labels[order[k]]
		left[label]++
		right[label]--

		v, next := col[order[k]], col[order[k+1]]
		if v == next {
			continue
		}
		nl, nr := k+1, n-k-1
		if nl < minLeaf || nr < minLeaf {
			continue
		}
		w := (float64(nl)*b.impurity(left, float64(nl)) + float64(nr)*b.impurity(right, float64(nr))) / float64(n)
		if w < best.impurity {
			best = split{feature: f, threshold: v + (next-v)/2, impurity: w}
		}
	}
	return best
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func entropy(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c > 0 {
			p := c / n
			h -= p * math.Log2(p)
		}
	}
	return h
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// leafFor walks row x down to its leaf.
func (t *DecisionTreeClassifier) leafFor(x []float64) *node {
	n := t.root
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n
}

// probaInto writes the class distribution of row x into dst.
func (t *DecisionTreeClassifier) probaInto(dst, x []float64) {
	leaf := t.leafFor(x)
	total := 0.0
	for _, c := range leaf.counts {
		total += c
	}
	for j, c := range leaf.counts {
		dst[j] = c / total
	}
}

func (t *DecisionTreeClassifier) checkPredict(op string, X mat.Matrix) error {
	if err := t.state.RequireFitted("DecisionTreeClassifier", op); err != nil {
		return err
	}
	_, c := X.Dims()
	return t.state.CheckFeatures("DecisionTreeClassifier."+op, c)
}

// PredictProba returns an n×k matrix of class probabilities, k the number
// of classes seen in Fit.
func (t *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := t.checkPredict("PredictProba", X); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	out := mat.NewDense(r, t.nClasses_, nil)
	x := make([]float64, c)
	p := make([]float64, t.nClasses_)
	for i := 0; i < r; i++ {
		mat.Row(x, i, X)
		t.probaInto(p, x)
		out.SetRow(i, p)
	}
	return out, nil
}

// Predict returns the majority class of each row's leaf. Ties go to the
// smaller label.
func (t *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := t.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxClasses(proba, t.classes_), nil
}

// argmaxClasses maps each row of proba to the class with the highest
// probability.
func argmaxClasses(proba mat.Matrix, classes []int) *mat.Dense {
	r, c := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < c; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(classes[best]))
	}
	return out
}

// Score returns the mean accuracy on X and y.
func (t *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := t.Predict(X)
	if err != nil {
		return 0, err
	}
	return model.MeanAccuracy(y, pred)
}

// Classes returns the sorted labels seen in Fit.
func (t *DecisionTreeClassifier) Classes() []int {
	return t.classes_
}

// GetFeatureImportances returns the normalized impurity decrease per feature.
func (t *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), t.featureImportances_...)
}

// GetDepth returns the depth of the deepest leaf.
func (t *DecisionTreeClassifier) GetDepth() int {
	return t.depth_
}

// GetNLeaves returns the number of leaves.
func (t *DecisionTreeClassifier) GetNLeaves() int {
	return t.nLeaves_
}

// GetParams returns the hyperparameters.
func (t *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":             t.criterion,
		"max_depth":             t.maxDepth,
		"min_samples_split":     t.minSamplesSplit,
		"min_samples_leaf":      t.minSamplesLeaf,
		"max_features":          t.maxFeatures,
		"min_impurity_decrease": t.minImpurityDecrease,
		"random_state":          t.randomState,
	}
}

// SetParams updates hyperparameters by name.
func (t *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			t.criterion, ok = value.(string)
		case "max_depth":
			t.maxDepth, ok = value.(int)
		case "min_samples_split":
			t.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			t.minSamplesLeaf, ok = value.(int)
		case "max_features":
			t.maxFeatures, ok = value.(int)
		case "min_impurity_decrease":
			t.minImpurityDecrease, ok = value.(float64)
		case "random_state":
			t.randomState, ok = value.(int64)
		default:
			return errors.NewValueError("DecisionTreeClassifier.SetParams", fmt.Sprintf("unknown parameter: %s", key))
		}
		if !ok {
			return errors.NewValueError("DecisionTreeClassifier.SetParams", fmt.Sprintf("parameter %s has wrong type %T", key, value))
		}
	}
	return nil
}

func (t *DecisionTreeClassifier) String() string {
	return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, max_depth=%d, random_state=%d)", t.criterion, t.maxDepth, t.randomState)
}
