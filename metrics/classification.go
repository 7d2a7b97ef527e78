// Package metrics implements binary classification scores for churn models.
//
// Labels are 0 (retained) and 1 (churned); the positive label is always 1.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/YuminosukeSato/churn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Metric names a score the harness can rank models by.
type Metric string

const (
	MetricRecall    Metric = "recall"
	MetricPrecision Metric = "precision"
	MetricAccuracy  Metric = "accuracy"
	MetricF1        Metric = "f1"
)

// Metrics lists every supported Metric.
var Metrics = []Metric{MetricRecall, MetricPrecision, MetricAccuracy, MetricF1}

// ParseMetric maps a configuration value to a Metric.
// Unsupported names are a ConfigurationError.
func ParseMetric(option, name string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Metrics {
		if m == known {
			return m, nil
		}
	}
	return "", errors.NewConfigurationError(option, "unsupported metric, want one of recall, precision, accuracy, f1", name)
}

// Report holds the confusion counts and every Metric for one prediction set.
type Report struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`

	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Score returns the value of m.
func (r Report) Score(m Metric) float64 {
	switch m {
	case MetricRecall:
		return r.Recall
	case MetricPrecision:
		return r.Precision
	case MetricAccuracy:
		return r.Accuracy
	case MetricF1:
		return r.F1
	default:
		return math.NaN()
	}
}

// Support returns the number of samples scored.
func (r Report) Support() int {
	return r.TP + r.FP + r.TN + r.FN
}

func (r Report) String() string {
	return fmt.Sprintf("accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f (tp=%d fp=%d tn=%d fn=%d)",
		r.Accuracy, r.Precision, r.Recall, r.F1, r.TP, r.FP, r.TN, r.FN)
}

// ConfusionMatrix counts outcomes for binary labels in the first column of
// yTrue and yPred.
func ConfusionMatrix(yTrue, yPred mat.Matrix) (tp, fp, tn, fn int, err error) {
	trueVals, predVals, err := binaryColumns("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	for i := range trueVals {
		switch {
		case trueVals[i] == 1 && predVals[i] == 1:
			tp++
		case trueVals[i] == 0 && predVals[i] == 1:
			fp++
		case trueVals[i] == 0 && predVals[i] == 0:
			tn++
		default:
			fn++
		}
	}
	return tp, fp, tn, fn, nil
}

// Evaluate scores binary predictions against the true labels.
//
// Precision with no predicted positives, recall with no actual positives and
// F1 with both zero are set to 0 and raise an UndefinedMetricWarning.
func Evaluate(yTrue, yPred mat.Matrix) (Report, error) {
	tp, fp, tn, fn, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return Report{}, err
	}

	r := Report{TP: tp, FP: fp, TN: tn, FN: fn}
	r.Accuracy = float64(tp+tn) / float64(tp+fp+tn+fn)

	if tp+fp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples", 0))
	} else {
		r.Precision = float64(tp) / float64(tp+fp)
	}

	if tp+fn == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true samples", 0))
	} else {
		r.Recall = float64(tp) / float64(tp+fn)
	}

	if r.Precision+r.Recall == 0 {
		if tp+fp > 0 && tp+fn > 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("f1", "precision and recall are both zero", 0))
		}
	} else {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r, nil
}

// AUC はROC曲線下面積を計算する（Mann-Whitney U統計量、同順位は平均順位）。
// 片方のクラスしか存在しない場合は未定義のため0.5を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	if yTrue == nil || yScore == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError("AUC", "empty vector")
	}
	n := yTrue.Len()
	if yScore.Len() != n {
		return 0, errors.NewDimensionError("AUC", n, yScore.Len(), 0)
	}

	type pair struct {
		score float64
		label float64
	}
	pairs := make([]pair, n)
	nPos := 0
	for i := 0; i < n; i++ {
		label := yTrue.AtVec(i)
		if label != 0 && label != 1 {
			return 0, errors.NewValueError("AUC", fmt.Sprintf("labels must be 0 or 1, got %v", label))
		}
		if label == 1 {
			nPos++
		}
		pairs[i] = pair{score: yScore.AtVec(i), label: label}
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		return 0.5, nil
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	var posRankSum float64
	for i := 0; i < n; {
		j := i
		for j < n && pairs[j].score == pairs[i].score {
			j++
		}
		// ranks are 1-based; tied scores share the average rank
		avgRank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if pairs[k].label == 1 {
				posRankSum += avgRank
			}
		}
		i = j
	}

	u := posRankSum - float64(nPos*(nPos+1))/2
	return u / float64(nPos*nNeg), nil
}

// BinaryLogLoss は二値分類の対数損失を計算する。確率は[1e-15, 1-1e-15]に丸める。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	if yTrue == nil || yProb == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError("BinaryLogLoss", "empty vector")
	}
	n := yTrue.Len()
	if yProb.Len() != n {
		return 0, errors.NewDimensionError("BinaryLogLoss", n, yProb.Len(), 0)
	}

	const eps = 1e-15
	var sum float64
	for i := 0; i < n; i++ {
		y := yTrue.AtVec(i)
		if y != 0 && y != 1 {
			return 0, errors.NewValueError("BinaryLogLoss", fmt.Sprintf("labels must be 0 or 1, got %v", y))
		}
		p := errors.ClipValue(yProb.AtVec(i), eps, 1-eps)
		sum += -(y*math.Log(p) + (1-y)*math.Log(1-p))
	}
	return sum / float64(n), nil
}

func firstColumns(op string, a, b mat.Matrix) (*mat.VecDense, *mat.VecDense, error) {
	if a == nil || b == nil {
		return nil, nil, errors.NewValueError(op, "nil matrix")
	}
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra == 0 || ca == 0 || cb == 0 {
		return nil, nil, errors.NewValueError(op, "empty matrix")
	}
	if ra != rb {
		return nil, nil, errors.NewDimensionError(op, ra, rb, 0)
	}
	va := mat.NewVecDense(ra, nil)
	vb := mat.NewVecDense(rb, nil)
	for i := 0; i < ra; i++ {
		va.SetVec(i, a.At(i, 0))
		vb.SetVec(i, b.At(i, 0))
	}
	return va, vb, nil
}

func binaryColumns(op string, yTrue, yPred mat.Matrix) ([]float64, []float64, error) {
	t, p, err := firstColumns(op, yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}
	trueVals, predVals := t.RawVector().Data, p.RawVector().Data
	for i := range trueVals {
		if (trueVals[i] != 0 && trueVals[i] != 1) || (predVals[i] != 0 && predVals[i] != 1) {
			return nil, nil, errors.NewValueError(op, fmt.Sprintf("labels must be 0 or 1, got %v and %v at row %d", trueVals[i], predVals[i], i))
		}
	}
	return trueVals, predVals, nil
}
