// Package neighbors implements k-nearest-neighbour classification.
package neighbors

import (
	"context"
	"fmt"
	"sort"

	"github.com/YuminosukeSato/churn/core/model"
	"github.com/YuminosukeSato/churn/core/parallel"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KNeighborsClassifier votes among the k training rows closest to each
// query row. Fit only stores the training data.
type KNeighborsClassifier struct {
	state *model.StateManager

	nNeighbors int
	weights    string  // "uniform" or "distance"
	p          float64 // Minkowski power: 1 manhattan, 2 euclidean

	rows     [][]float64
	labels   []int // class index per row
	classes_ []int
}

// Option configures a KNeighborsClassifier.
type Option func(*KNeighborsClassifier)

// WithNNeighbors sets k.
func WithNNeighbors(k int) Option {
	return func(c *KNeighborsClassifier) { c.nNeighbors = k }
}

// WithWeights sets vote weighting: "uniform" or "distance" (1/d).
func WithWeights(w string) Option {
	return func(c *KNeighborsClassifier) { c.weights = w }
}

// WithP sets the Minkowski power of the distance.
func WithP(p float64) Option {
	return func(c *KNeighborsClassifier) { c.p = p }
}

// NewKNeighborsClassifier creates a classifier with k=5, uniform weights
// and euclidean distance.
func NewKNeighborsClassifier(opts ...Option) *KNeighborsClassifier {
	c := &KNeighborsClassifier{
		state:      model.NewStateManager(),
		nNeighbors: 5,
		weights:    "uniform",
		p:          2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsFitted returns whether the classifier has been fitted.
func (c *KNeighborsClassifier) IsFitted() bool {
	return c.state.IsFitted()
}

// Fit stores X and y.
func (c *KNeighborsClassifier) Fit(X, y mat.Matrix) error {
	return c.FitContext(context.Background(), X, y)
}

// FitContext stores X and y. There is no iterative work to cancel, but ctx
// is checked once so callers can treat every family alike.
func (c *KNeighborsClassifier) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "KNeighborsClassifier.Fit")
	}
	if c.weights != "uniform" && c.weights != "distance" {
		return errors.NewValueError("KNeighborsClassifier", fmt.Sprintf("weights must be uniform or distance, got %q", c.weights))
	}
	if c.p < 1 {
		return errors.NewValueError("KNeighborsClassifier", fmt.Sprintf("p must be >= 1, got %v", c.p))
	}

	n, f := X.Dims()
	yRows, _ := y.Dims()
	switch {
	case n == 0 || f == 0:
		return errors.Wrap(errors.ErrEmptyData, "KNeighborsClassifier.Fit")
	case yRows != n:
		return errors.NewDimensionError("KNeighborsClassifier.Fit", n, yRows, 0)
	case c.nNeighbors < 1 || c.nNeighbors > n:
		return errors.NewValueError("KNeighborsClassifier", fmt.Sprintf("n_neighbors must be in [1, %d], got %d", n, c.nNeighbors))
	}

	c.rows = make([][]float64, n)
	seen := make(map[int]bool)
	c.classes_ = c.classes_[:0]
	for i := 0; i < n; i++ {
		c.rows[i] = mat.Row(nil, i, X)
		if label := int(y.At(i, 0)); !seen[label] {
			seen[label] = true
			c.classes_ = append(c.classes_, label)
		}
	}
	sort.Ints(c.classes_)
	index := make(map[int]int, len(c.classes_))
	for i, cl := range c.classes_ {
		index[cl] = i
	}
	c.labels = make([]int, n)
	for i := 0; i < n; i++ {
		c.labels[i] = index[int(y.At(i, 0))]
	}

	c.state.SetDimensions(f, n)
	c.state.SetFitted()
	return nil
}

type neighbor struct {
	dist  float64
	index int
}

// kNearest returns the k closest training rows to x, nearest first. Equal
// distances keep training order.
func (c *KNeighborsClassifier) kNearest(x []float64) []neighbor {
	k := c.nNeighbors
	nbrs := make([]neighbor, 0, k+1)
	for j, row := range c.rows {
		d := floats.Distance(x, row, c.p)
		if len(nbrs) == k && d >= nbrs[k-1].dist {
			continue
		}
		pos := sort.Search(len(nbrs), func(i int) bool { return nbrs[i].dist > d })
		nbrs = append(nbrs, neighbor{})
		copy(nbrs[pos+1:], nbrs[pos:])
		nbrs[pos] = neighbor{dist: d, index: j}
		if len(nbrs) > k {
			nbrs = nbrs[:k]
		}
	}
	return nbrs
}

// vote writes the normalized class weights of x's neighbours into dst.
func (c *KNeighborsClassifier) vote(dst, x []float64) {
	for j := range dst {
		dst[j] = 0
	}
	nbrs := c.kNearest(x)

	if c.weights == "distance" {
		// An exact match takes all the weight, as in sklearn.
		exact := false
		for _, nb := range nbrs {
			if nb.dist == 0 {
				dst[c.labels[nb.index]]++
				exact = true
			}
		}
		if !exact {
			for _, nb := range nbrs {
				dst[c.labels[nb.index]] += 1 / nb.dist
			}
		}
	} else {
		for _, nb := range nbrs {
			dst[c.labels[nb.index]]++
		}
	}
	floats.Scale(1/floats.Sum(dst), dst)
}

// PredictProba returns an n×k matrix of neighbour vote shares.
func (c *KNeighborsClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := c.state.RequireFitted("KNeighborsClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, f := X.Dims()
	if err := c.state.CheckFeatures("KNeighborsClassifier.PredictProba", f); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, len(c.classes_), nil)
	parallel.ParallelizeWithThreshold(r, 32, func(start, end int) {
		x := make([]float64, f)
		p := make([]float64, len(c.classes_))
		for i := start; i < end; i++ {
			mat.Row(x, i, X)
			c.vote(p, x)
			out.SetRow(i, p)
		}
	})
	return out, nil
}

// Predict returns the class with the largest vote share. Ties go to the
// smaller label.
func (c *KNeighborsClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, k := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(c.classes_[best]))
	}
	return out, nil
}

// Score returns the mean accuracy on X and y.
func (c *KNeighborsClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return model.MeanAccuracy(y, pred)
}

// Classes returns the sorted labels seen in Fit.
func (c *KNeighborsClassifier) Classes() []int {
	return c.classes_
}

// GetParams returns the hyperparameters.
func (c *KNeighborsClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_neighbors": c.nNeighbors,
		"weights":     c.weights,
		"p":           c.p,
	}
}

func (c *KNeighborsClassifier) String() string {
	return fmt.Sprintf("KNeighborsClassifier(n_neighbors=%d, weights=%s)", c.nNeighbors, c.weights)
}
