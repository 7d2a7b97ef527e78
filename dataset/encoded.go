package dataset

import (
	"github.com/YuminosukeSato/churn/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Label column name used for stratification and as the training target.
const LabelColumn = "churned"

// EncodedRecord is a Record with every field mapped to numeric columns.
type EncodedRecord struct {
	CustomerID string
	Features   []float64
	Label      float64
	Labeled    bool
}

// EncodedSet is a sequence of EncodedRecords sharing one column schema.
type EncodedSet struct {
	Columns        []string
	Records        []EncodedRecord
	MappingVersion string
}

// Len returns the number of records.
func (s *EncodedSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// ColumnIndex returns the position of name in Columns.
func (s *EncodedSet) ColumnIndex(name string) (int, bool) {
	for i, c := range s.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Subset returns a set holding the records at idx, in idx order.
func (s *EncodedSet) Subset(idx []int) *EncodedSet {
	out := &EncodedSet{
		Columns:        s.Columns,
		Records:        make([]EncodedRecord, len(idx)),
		MappingVersion: s.MappingVersion,
	}
	for i, j := range idx {
		out.Records[i] = s.Records[j]
	}
	return out
}

// Split separates labeled from unlabeled records, keeping input order.
func (s *EncodedSet) Split() (labeled, unlabeled *EncodedSet) {
	var li, ui []int
	for i, r := range s.Records {
		if r.Labeled {
			li = append(li, i)
		} else {
			ui = append(ui, i)
		}
	}
	return s.Subset(li), s.Subset(ui)
}

// IDs returns customer ids in record order.
func (s *EncodedSet) IDs() []string {
	ids := make([]string, len(s.Records))
	for i, r := range s.Records {
		ids[i] = r.CustomerID
	}
	return ids
}

// ChurnRate returns the fraction of labeled records with Label 1.
func (s *EncodedSet) ChurnRate() float64 {
	var labeled, churned int
	for _, r := range s.Records {
		if !r.Labeled {
			continue
		}
		labeled++
		if r.Label == 1 {
			churned++
		}
	}
	return errors.SafeDivide(float64(churned), float64(labeled))
}

// resolve maps feature names to column positions. An empty list selects
// every column.
func (s *EncodedSet) resolve(features []string) ([]int, error) {
	if len(features) == 0 {
		idx := make([]int, len(s.Columns))
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	idx := make([]int, len(features))
	for i, f := range features {
		j, ok := s.ColumnIndex(f)
		if !ok {
			return nil, errors.NewConfigurationError("features", "unknown encoded column", f)
		}
		idx[i] = j
	}
	return idx, nil
}

// X builds the feature matrix for the named columns.
func (s *EncodedSet) X(features []string) (*mat.Dense, error) {
	if s.Len() == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "build feature matrix")
	}
	idx, err := s.resolve(features)
	if err != nil {
		return nil, err
	}
	X := mat.NewDense(len(s.Records), len(idx), nil)
	for i, r := range s.Records {
		for k, j := range idx {
			X.Set(i, k, r.Features[j])
		}
	}
	return X, nil
}

// XY builds the feature matrix and the n×1 label column. Every record must
// be labeled.
func (s *EncodedSet) XY(features []string) (*mat.Dense, *mat.Dense, error) {
	X, err := s.X(features)
	if err != nil {
		return nil, nil, err
	}
	y := mat.NewDense(len(s.Records), 1, nil)
	for i, r := range s.Records {
		if !r.Labeled {
			return nil, nil, errors.NewValueError("XY", "record "+r.CustomerID+" has no churn label")
		}
		y.Set(i, 0, r.Label)
	}
	return X, y, nil
}

// StratumKey returns the value used to stratify record i on field, which is
// the label column or any encoded column.
func (s *EncodedSet) StratumKey(i int, field string) (float64, error) {
	r := s.Records[i]
	if field == LabelColumn {
		if !r.Labeled {
			return 0, errors.NewValueError("StratumKey", "record "+r.CustomerID+" has no churn label to stratify on")
		}
		return r.Label, nil
	}
	j, ok := s.ColumnIndex(field)
	if !ok {
		return 0, errors.NewConfigurationError("split.stratify_on", "unknown column", field)
	}
	return r.Features[j], nil
}
