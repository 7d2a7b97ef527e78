package dummy

import (
	"math"
	"testing"

	"github.com/YuminosukeSato/churn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestDummyClassifier(t *testing.T) {
	X := mat.NewDense(5, 2, nil)
	y := mat.NewDense(5, 1, []float64{0, 1, 0, 0, 1})

	d := NewDummyClassifier()
	if err := d.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if d.MostFrequent() != 0 {
		t.Errorf("MostFrequent = %d, want 0", d.MostFrequent())
	}

	pred, err := d.Predict(mat.NewDense(3, 2, nil))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if pred.At(i, 0) != 0 {
			t.Errorf("pred[%d] = %v, want 0", i, pred.At(i, 0))
		}
	}

	proba, err := d.PredictProba(mat.NewDense(1, 2, nil))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(proba.At(0, 0)-0.6) > 1e-12 || math.Abs(proba.At(0, 1)-0.4) > 1e-12 {
		t.Errorf("proba = %v", mat.Formatted(proba))
	}

	score, err := d.Score(X, y)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(score-0.6) > 1e-12 {
		t.Errorf("Score = %v, want 0.6", score)
	}
}

func TestDummyClassifierTieGoesToSmallerLabel(t *testing.T) {
	d := NewDummyClassifier()
	if err := d.Fit(mat.NewDense(4, 1, nil), mat.NewDense(4, 1, []float64{1, 0, 1, 0})); err != nil {
		t.Fatal(err)
	}
	if d.MostFrequent() != 0 {
		t.Errorf("MostFrequent = %d, want 0", d.MostFrequent())
	}
}

func TestDummyClassifierErrors(t *testing.T) {
	d := NewDummyClassifier()
	_, err := d.Predict(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}
	if err := d.Fit(mat.NewDense(2, 1, nil), mat.NewDense(3, 1, nil)); err == nil {
		t.Error("expected dimension error")
	}
}
