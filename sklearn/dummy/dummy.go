// Package dummy provides baseline classifiers that ignore the features.
package dummy

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/churn/core/model"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DummyClassifier predicts the most frequent training class for every row.
// Ties go to the smaller label. It is the reference every real model must
// beat.
type DummyClassifier struct {
	state *model.StateManager

	strategy string

	classes_     []int
	classPrior_  []float64
	mostFrequent int
}

// NewDummyClassifier creates a most-frequent baseline.
func NewDummyClassifier() *DummyClassifier {
	return &DummyClassifier{
		state:    model.NewStateManager(),
		strategy: "most_frequent",
	}
}

// IsFitted returns whether the baseline has been fitted.
func (d *DummyClassifier) IsFitted() bool {
	return d.state.IsFitted()
}

// Fit records the class frequencies of y. X only fixes the feature count.
func (d *DummyClassifier) Fit(X, y mat.Matrix) error {
	n, f := X.Dims()
	yRows, _ := y.Dims()
	if n == 0 {
		return errors.Wrap(errors.ErrEmptyData, "DummyClassifier.Fit")
	}
	if yRows != n {
		return errors.NewDimensionError("DummyClassifier.Fit", n, yRows, 0)
	}

	counts := make(map[int]int)
	for i := 0; i < n; i++ {
		counts[int(y.At(i, 0))]++
	}
	d.classes_ = d.classes_[:0]
	for c := range counts {
		d.classes_ = append(d.classes_, c)
	}
	sort.Ints(d.classes_)

	d.classPrior_ = make([]float64, len(d.classes_))
	best := -1
	for j, c := range d.classes_ {
		d.classPrior_[j] = float64(counts[c]) / float64(n)
		if best < 0 || counts[c] > counts[d.classes_[best]] {
			best = j
		}
	}
	d.mostFrequent = d.classes_[best]

	d.state.SetDimensions(f, n)
	d.state.SetFitted()
	return nil
}

// Predict returns the most frequent class for every row.
func (d *DummyClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := d.state.RequireFitted("DummyClassifier", "Predict"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, float64(d.mostFrequent))
	}
	return out, nil
}

// PredictProba returns the training class priors for every row.
func (d *DummyClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := d.state.RequireFitted("DummyClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, len(d.classes_), nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, d.classPrior_)
	}
	return out, nil
}

// Score returns the mean accuracy on X and y.
func (d *DummyClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := d.Predict(X)
	if err != nil {
		return 0, err
	}
	return model.MeanAccuracy(y, pred)
}

// Classes returns the sorted labels seen in Fit.
func (d *DummyClassifier) Classes() []int {
	return d.classes_
}

// MostFrequent returns the predicted class.
func (d *DummyClassifier) MostFrequent() int {
	return d.mostFrequent
}

// GetParams returns the hyperparameters.
func (d *DummyClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{"strategy": d.strategy}
}

func (d *DummyClassifier) String() string {
	return fmt.Sprintf("DummyClassifier(strategy=%s)", d.strategy)
}
