// Package model_selection partitions encoded record sets into the train,
// validate and test sets used by the model harness.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/pkg/errors"
)

// fractionTolerance bounds how far Train+Validate+Test may drift from 1.
const fractionTolerance = 1e-9

// SplitOptions configures TrainValidateTestSplit.
type SplitOptions struct {
	// Seed makes the split reproducible: same input, same seed, same output.
	Seed uint64

	Train    float64
	Validate float64
	Test     float64

	// StratifyOn is dataset.LabelColumn or any encoded column name. Empty
	// disables stratification.
	StratifyOn string
}

// DefaultSplitOptions returns the 56/24/20 split stratified on the label,
// which is an 80/20 train/test split followed by a 70/30 split of the
// training portion.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{
		Seed:       42,
		Train:      0.56,
		Validate:   0.24,
		Test:       0.20,
		StratifyOn: dataset.LabelColumn,
	}
}

// Check validates the fractions before any work is done.
func (o SplitOptions) Check() error {
	fractions := []struct {
		option string
		value  float64
	}{
		{"split.train", o.Train},
		{"split.validate", o.Validate},
		{"split.test", o.Test},
	}
	for _, f := range fractions {
		if !(f.value > 0 && f.value < 1) {
			return errors.NewConfigurationError(f.option, "fraction must be in (0, 1)", f.value)
		}
	}
	if sum := o.Train + o.Validate + o.Test; math.Abs(sum-1) > fractionTolerance {
		return errors.NewConfigurationError("split", fmt.Sprintf("fractions must sum to 1.0, got %v", sum), []float64{o.Train, o.Validate, o.Test})
	}
	return nil
}

// Partition is the result of a three-way split. The sets are disjoint and
// their union is the input.
type Partition struct {
	Train    *dataset.EncodedSet
	Validate *dataset.EncodedSet
	Test     *dataset.EncodedSet
}

// Sizes returns the record counts of train, validate and test.
func (p Partition) Sizes() (train, validate, test int) {
	return p.Train.Len(), p.Validate.Len(), p.Test.Len()
}

// TrainValidateTestSplit partitions set into train, validate and test sets.
//
// Indices are grouped by stratum key and the strata are visited in sorted
// key order. Each stratum is shuffled with a single PCG stream seeded from
// opts.Seed; round(n·Test) indices go to test, round(n·Validate) to
// validate and the remainder to train. Every output keeps the input order.
func TrainValidateTestSplit(set *dataset.EncodedSet, opts SplitOptions) (Partition, error) {
	if err := opts.Check(); err != nil {
		return Partition{}, err
	}
	if set.Len() == 0 {
		return Partition{}, errors.Wrap(errors.ErrEmptyData, "TrainValidateTestSplit")
	}

	strata, err := groupByStratum(set, opts.StratifyOn)
	if err != nil {
		return Partition{}, err
	}

	r := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	assign := make([]int8, set.Len())
	const (
		toTrain int8 = iota
		toValidate
		toTest
	)
	for _, indices := range strata {
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		n := float64(len(indices))
		nTest := int(math.Round(n * opts.Test))
		nValidate := int(math.Round(n * opts.Validate))
		if nTest+nValidate > len(indices) {
			nValidate = len(indices) - nTest
		}
		for k, idx := range indices {
			switch {
			case k < nTest:
				assign[idx] = toTest
			case k < nTest+nValidate:
				assign[idx] = toValidate
			default:
				assign[idx] = toTrain
			}
		}
	}

	var train, validate, test []int
	for i, a := range assign {
		switch a {
		case toTest:
			test = append(test, i)
		case toValidate:
			validate = append(validate, i)
		default:
			train = append(train, i)
		}
	}

	return Partition{
		Train:    set.Subset(train),
		Validate: set.Subset(validate),
		Test:     set.Subset(test),
	}, nil
}

// groupByStratum returns index groups ordered by stratum key.
func groupByStratum(set *dataset.EncodedSet, field string) ([][]int, error) {
	if field == "" {
		all := make([]int, set.Len())
		for i := range all {
			all[i] = i
		}
		return [][]int{all}, nil
	}

	groups := make(map[float64][]int)
	for i := range set.Records {
		key, err := set.StratumKey(i, field)
		if err != nil {
			return nil, err
		}
		groups[key] = append(groups[key], i)
	}

	keys := make([]float64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	out := make([][]int, len(keys))
	for i, k := range keys {
		out[i] = groups[k]
	}
	return out, nil
}
