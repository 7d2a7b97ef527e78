package model

import (
	"github.com/YuminosukeSato/churn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MeanAccuracy returns the fraction of rows where the first columns of
// yTrue and yPred agree. Classifiers use it to implement Scorer.
func MeanAccuracy(yTrue, yPred mat.Matrix) (float64, error) {
	n, _ := yTrue.Dims()
	m, _ := yPred.Dims()
	if n != m {
		return 0, errors.NewDimensionError("MeanAccuracy", n, m, 0)
	}
	if n == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "MeanAccuracy")
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.At(i, 0) == yPred.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// BinaryLabels reads the first column of y as 0/1 labels and counts the
// positives. Any other value is a ValueError.
func BinaryLabels(op string, y mat.Matrix) ([]float64, int, error) {
	n, _ := y.Dims()
	labels := make([]float64, n)
	pos := 0
	for i := 0; i < n; i++ {
		switch v := y.At(i, 0); v {
		case 0:
		case 1:
			labels[i] = 1
			pos++
		default:
			return nil, 0, errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return labels, pos, nil
}
