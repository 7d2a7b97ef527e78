package model_selection

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/pkg/errors"
)

// telcoSet builds n labeled records of which the first churned have label 1.
func telcoSet(n, churned int) *dataset.EncodedSet {
	set := &dataset.EncodedSet{Columns: []string{"tenure_months", "contract_type_two_year"}, MappingVersion: "test"}
	for i := 0; i < n; i++ {
		label := 0.0
		if i < churned {
			label = 1
		}
		set.Records = append(set.Records, dataset.EncodedRecord{
			CustomerID: fmt.Sprintf("%04d", i),
			Features:   []float64{float64(i % 72), float64(i % 3 / 2)},
			Label:      label,
			Labeled:    true,
		})
	}
	return set
}

func TestTrainValidateTestSplitSizes(t *testing.T) {
	// 7032 retained records, 1869 churned.
	set := telcoSet(7032, 1869)
	p, err := TrainValidateTestSplit(set, DefaultSplitOptions())
	if err != nil {
		t.Fatalf("TrainValidateTestSplit: %v", err)
	}

	train, validate, test := p.Sizes()
	if train != 3937 || validate != 1688 || test != 1407 {
		t.Errorf("sizes = %d/%d/%d, want 3937/1688/1407", train, validate, test)
	}
	if train+validate+test != set.Len() {
		t.Errorf("sizes do not sum to input")
	}
}

func TestTrainValidateTestSplitStratified(t *testing.T) {
	set := telcoSet(7032, 1869)
	p, err := TrainValidateTestSplit(set, DefaultSplitOptions())
	if err != nil {
		t.Fatal(err)
	}

	overall := set.ChurnRate()
	for name, s := range map[string]*dataset.EncodedSet{"train": p.Train, "validate": p.Validate, "test": p.Test} {
		if diff := math.Abs(s.ChurnRate() - overall); diff > 0.015 {
			t.Errorf("%s churn rate %.4f differs from %.4f by %.4f", name, s.ChurnRate(), overall, diff)
		}
	}
}

func TestTrainValidateTestSplitDisjointAndOrdered(t *testing.T) {
	set := telcoSet(500, 130)
	p, err := TrainValidateTestSplit(set, DefaultSplitOptions())
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]string)
	for name, s := range map[string]*dataset.EncodedSet{"train": p.Train, "validate": p.Validate, "test": p.Test} {
		prev := ""
		for _, id := range s.IDs() {
			if other, dup := seen[id]; dup {
				t.Fatalf("record %s in both %s and %s", id, other, name)
			}
			seen[id] = name
			if id <= prev {
				t.Errorf("%s is not in input order: %s after %s", name, id, prev)
			}
			prev = id
		}
	}
	if len(seen) != set.Len() {
		t.Errorf("union has %d records, want %d", len(seen), set.Len())
	}
}

func TestTrainValidateTestSplitDeterministic(t *testing.T) {
	set := telcoSet(1000, 265)
	a, err := TrainValidateTestSplit(set, DefaultSplitOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, err := TrainValidateTestSplit(set, DefaultSplitOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Test.IDs(), b.Test.IDs()) || !reflect.DeepEqual(a.Validate.IDs(), b.Validate.IDs()) {
		t.Error("same seed produced different partitions")
	}

	opts := DefaultSplitOptions()
	opts.Seed = 7
	c, err := TrainValidateTestSplit(set, opts)
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(a.Test.IDs(), c.Test.IDs()) {
		t.Error("different seeds produced identical test sets")
	}
}

func TestTrainValidateTestSplitStratifyOnColumn(t *testing.T) {
	set := telcoSet(300, 80)
	opts := DefaultSplitOptions()
	opts.StratifyOn = "contract_type_two_year"
	p, err := TrainValidateTestSplit(set, opts)
	if err != nil {
		t.Fatal(err)
	}
	train, validate, test := p.Sizes()
	if train+validate+test != 300 {
		t.Errorf("sizes = %d/%d/%d", train, validate, test)
	}

	opts.StratifyOn = "no_such_column"
	if _, err := TrainValidateTestSplit(set, opts); err == nil {
		t.Error("expected error for unknown stratify column")
	}
}

func TestTrainValidateTestSplitErrors(t *testing.T) {
	set := telcoSet(10, 3)

	tests := []struct {
		name string
		opts SplitOptions
	}{
		{"sum above one", SplitOptions{Train: 0.6, Validate: 0.3, Test: 0.2}},
		{"zero validate", SplitOptions{Train: 0.8, Validate: 0, Test: 0.2}},
		{"negative test", SplitOptions{Train: 0.9, Validate: 0.2, Test: -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TrainValidateTestSplit(set, tt.opts)
			var cfg *errors.ConfigurationError
			if !errors.As(err, &cfg) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
		})
	}

	unlabeled := telcoSet(10, 3)
	unlabeled.Records[4].Labeled = false
	_, err := TrainValidateTestSplit(unlabeled, DefaultSplitOptions())
	var ve *errors.ValueError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValueError for unlabeled record, got %v", err)
	}

	if _, err := TrainValidateTestSplit(&dataset.EncodedSet{}, DefaultSplitOptions()); !errors.Is(err, errors.ErrEmptyData) {
		t.Errorf("expected ErrEmptyData, got %v", err)
	}
}

func TestSplitOptionsCheck(t *testing.T) {
	if err := DefaultSplitOptions().Check(); err != nil {
		t.Fatalf("default options rejected: %v", err)
	}

	tests := []struct {
		name   string
		opts   SplitOptions
		option string
	}{
		{"train at one", SplitOptions{Train: 1, Validate: 0.24, Test: 0.2}, "split.train"},
		{"validate zero", SplitOptions{Train: 0.56, Validate: 0, Test: 0.2}, "split.validate"},
		{"test negative", SplitOptions{Train: 0.56, Validate: 0.24, Test: -0.2}, "split.test"},
		{"sum below one", SplitOptions{Train: 0.5, Validate: 0.2, Test: 0.2}, "split"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg *errors.ConfigurationError
			if err := tt.opts.Check(); !errors.As(err, &cfg) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfg.Option != tt.option {
				t.Errorf("Option = %q, want %q", cfg.Option, tt.option)
			}
		})
	}
}
