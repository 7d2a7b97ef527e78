package explore

import (
	"fmt"
	"math"
	"sort"

	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Alpha is the significance level every test is judged at.
const Alpha = 0.05

// Alternative is the alternative hypothesis of a t-test.
type Alternative string

const (
	TwoSided Alternative = "two-sided"
	Greater  Alternative = "greater" // mean(a) > mean(b)
	Less     Alternative = "less"    // mean(a) < mean(b)
)

// TTestResult is the outcome of a pooled-variance two-sample t-test.
type TTestResult struct {
	Alternative Alternative
	MeanA       float64
	MeanB       float64
	NA          int
	NB          int
	Statistic   float64
	DF          float64
	PValue      float64

	// Reject is true when PValue < Alpha.
	Reject bool
}

func (r TTestResult) String() string {
	return fmt.Sprintf("t=%.4f df=%.0f p=%.4g (%s) reject=%t", r.Statistic, r.DF, r.PValue, r.Alternative, r.Reject)
}

// TwoSampleTTest は等分散を仮定した2標本t検定を行う。
// Each sample needs at least two observations.
func TwoSampleTTest(a, b []float64, alt Alternative) (TTestResult, error) {
	if len(a) < 2 || len(b) < 2 {
		return TTestResult{}, errors.NewValueError("TwoSampleTTest",
			fmt.Sprintf("each sample needs at least 2 values, got %d and %d", len(a), len(b)))
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))
	df := na + nb - 2
	pooled := ((na-1)*va + (nb-1)*vb) / df
	se := math.Sqrt(pooled * (1/na + 1/nb))
	if se == 0 {
		return TTestResult{}, errors.NewValueError("TwoSampleTTest", "both samples are constant")
	}
	t := (ma - mb) / se

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	var p float64
	switch alt {
	case Greater:
		p = dist.Survival(t)
	case Less:
		p = dist.CDF(t)
	case TwoSided, "":
		alt = TwoSided
		p = 2 * dist.Survival(math.Abs(t))
	default:
		return TTestResult{}, errors.NewValueError("TwoSampleTTest", fmt.Sprintf("unknown alternative %q", alt))
	}
	return TTestResult{
		Alternative: alt,
		MeanA:       ma,
		MeanB:       mb,
		NA:          len(a),
		NB:          len(b),
		Statistic:   t,
		DF:          df,
		PValue:      p,
		Reject:      p < Alpha,
	}, nil
}

// Contingency is a cross-tabulation of two categorical variables.
type Contingency struct {
	Rows     []string
	Cols     []string
	Observed [][]float64
}

// CrossTab counts co-occurrences of rows[i] and cols[i]. Labels are sorted.
func CrossTab(rows, cols []string) (Contingency, error) {
	if len(rows) != len(cols) {
		return Contingency{}, errors.NewDimensionError("CrossTab", len(rows), len(cols), 0)
	}
	rl, ri := levels(rows)
	cl, ci := levels(cols)
	obs := make([][]float64, len(rl))
	for i := range obs {
		obs[i] = make([]float64, len(cl))
	}
	for i := range rows {
		obs[ri[rows[i]]][ci[cols[i]]]++
	}
	return Contingency{Rows: rl, Cols: cl, Observed: obs}, nil
}

func levels(values []string) ([]string, map[string]int) {
	idx := make(map[string]int)
	var out []string
	for _, v := range values {
		if _, ok := idx[v]; !ok {
			idx[v] = 0
			out = append(out, v)
		}
	}
	sort.Strings(out)
	for i, v := range out {
		idx[v] = i
	}
	return out, idx
}

// ChiSquareResult is the outcome of a chi-square test of independence.
type ChiSquareResult struct {
	Table     Contingency
	Expected  [][]float64
	Statistic float64
	DF        int
	PValue    float64
	Reject    bool
}

func (r ChiSquareResult) String() string {
	return fmt.Sprintf("chi2=%.4f df=%d p=%.4g reject=%t", r.Statistic, r.DF, r.PValue, r.Reject)
}

// ChiSquareTest はカイ二乗独立性検定を行う。
// With one degree of freedom the Yates continuity correction is applied.
func ChiSquareTest(t Contingency) (ChiSquareResult, error) {
	r, c := len(t.Rows), len(t.Cols)
	if r < 2 || c < 2 {
		return ChiSquareResult{}, errors.NewValueError("ChiSquareTest",
			fmt.Sprintf("need at least a 2x2 table, got %dx%d", r, c))
	}
	rowSum := make([]float64, r)
	colSum := make([]float64, c)
	var total float64
	for i, row := range t.Observed {
		for j, v := range row {
			rowSum[i] += v
			colSum[j] += v
			total += v
		}
	}
	df := (r - 1) * (c - 1)
	expected := make([][]float64, r)
	var chi2 float64
	for i := range expected {
		expected[i] = make([]float64, c)
		for j := range expected[i] {
			e := rowSum[i] * colSum[j] / total
			if e == 0 {
				return ChiSquareResult{}, errors.NewValueError("ChiSquareTest", "a row or column sums to zero")
			}
			expected[i][j] = e
			diff := math.Abs(t.Observed[i][j] - e)
			if df == 1 {
				diff = math.Max(0, diff-0.5)
			}
			chi2 += diff * diff / e
		}
	}
	p := distuv.ChiSquared{K: float64(df)}.Survival(chi2)
	return ChiSquareResult{
		Table:     t,
		Expected:  expected,
		Statistic: chi2,
		DF:        df,
		PValue:    p,
		Reject:    p < Alpha,
	}, nil
}

// Summary describes one numeric column.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64 // sample standard deviation
	Min    float64
	Q1     float64
	Median float64
	Q3     float64
	Max    float64
}

// Describe summarizes values.
func Describe(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, errors.Wrap(errors.ErrEmptyData, "describe")
	}
	data := stats.Float64Data(values)
	s := Summary{Count: len(values)}
	var err error
	if s.Mean, err = data.Mean(); err != nil {
		return Summary{}, errors.Wrap(err, "mean")
	}
	if s.Min, err = data.Min(); err != nil {
		return Summary{}, errors.Wrap(err, "min")
	}
	if s.Max, err = data.Max(); err != nil {
		return Summary{}, errors.Wrap(err, "max")
	}
	if s.Median, err = data.Median(); err != nil {
		return Summary{}, errors.Wrap(err, "median")
	}
	if len(values) > 1 {
		if s.StdDev, err = stats.StandardDeviationSample(data); err != nil {
			return Summary{}, errors.Wrap(err, "stddev")
		}
		q, err := stats.Quartile(data)
		if err != nil {
			return Summary{}, errors.Wrap(err, "quartiles")
		}
		s.Q1, s.Q3 = q.Q1, q.Q3
	} else {
		s.Q1, s.Q3 = s.Median, s.Median
	}
	return s, nil
}
