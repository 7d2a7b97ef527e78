package model

import (
	"testing"

	"github.com/YuminosukeSato/churn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager()

	if s.IsFitted() {
		t.Fatal("new StateManager should not be fitted")
	}
	err := s.RequireFitted("DummyClassifier", "Predict")
	var notFitted *errors.NotFittedError
	if !errors.As(err, &notFitted) {
		t.Fatalf("RequireFitted() = %v, want *NotFittedError", err)
	}
	if notFitted.ModelName != "DummyClassifier" || notFitted.Method != "Predict" {
		t.Errorf("unexpected NotFittedError: %+v", notFitted)
	}

	s.SetDimensions(7, 3937)
	s.SetFitted()
	if err := s.RequireFitted("DummyClassifier", "Predict"); err != nil {
		t.Errorf("RequireFitted() after SetFitted = %v", err)
	}

	if err := s.CheckFeatures("Predict", 7); err != nil {
		t.Errorf("CheckFeatures(7) = %v", err)
	}
	var dimErr *errors.DimensionError
	if err := s.CheckFeatures("Predict", 5); !errors.As(err, &dimErr) {
		t.Errorf("CheckFeatures(5) = %v, want *DimensionError", err)
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("Reset should clear the fitted flag")
	}
	if f, n := s.GetDimensions(); f != 0 || n != 0 {
		t.Errorf("GetDimensions() after Reset = (%d, %d)", f, n)
	}
}

func TestMeanAccuracy(t *testing.T) {
	yTrue := mat.NewDense(4, 1, []float64{0, 1, 1, 0})
	yPred := mat.NewDense(4, 1, []float64{0, 1, 0, 0})
	got, err := MeanAccuracy(yTrue, yPred)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.75 {
		t.Errorf("MeanAccuracy = %v, want 0.75", got)
	}
	if _, err := MeanAccuracy(yTrue, mat.NewDense(3, 1, nil)); err == nil {
		t.Error("expected dimension error")
	}
}

func TestBinaryLabels(t *testing.T) {
	labels, pos, err := BinaryLabels("Fit", mat.NewDense(3, 1, []float64{1, 0, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if pos != 2 || labels[0] != 1 || labels[1] != 0 {
		t.Errorf("BinaryLabels = %v, %d", labels, pos)
	}
	if _, _, err := BinaryLabels("Fit", mat.NewDense(1, 1, []float64{2})); err == nil {
		t.Error("expected ValueError for label 2")
	}
}
