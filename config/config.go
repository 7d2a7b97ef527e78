// Package config loads and validates the JSON run configuration.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/YuminosukeSato/churn/harness"
	"github.com/YuminosukeSato/churn/metrics"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/YuminosukeSato/churn/prepare"
	"github.com/YuminosukeSato/churn/preprocessing"
	"github.com/YuminosukeSato/churn/sklearn/model_selection"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Prediction scopes.
const (
	ScopeUnlabeled = "unlabeled"
	ScopeTest      = "test"
)

// Config is the full run configuration.
type Config struct {
	Source      SourceConfig      `json:"source"`
	Prepare     PrepareConfig     `json:"prepare"`
	Split       SplitConfig       `json:"split"`
	Metrics     MetricsConfig     `json:"metrics"`
	Harness     HarnessConfig     `json:"harness"`
	Predictions PredictionsConfig `json:"predictions"`

	// Encoding overrides the built-in categorical mapping table.
	Encoding *preprocessing.MappingTable `json:"encoding,omitempty"`

	// Features are the encoded columns models are trained on. An empty
	// list means every column.
	Features []string `json:"features"`

	Models []harness.ModelConfig `json:"models" validate:"required,min=1,dive"`
}

// SourceConfig selects where raw rows come from.
type SourceConfig struct {
	// Kind is csv, mysql or postgres. Database credentials come from the
	// environment, never from this file.
	Kind string `json:"kind" validate:"oneof=csv mysql postgres"`

	// Path is the CSV file read when Kind is csv.
	Path string `json:"path,omitempty" validate:"required_if=Kind csv"`

	// CachePath, when set, is written after every database fetch.
	CachePath string `json:"cache_path,omitempty"`
	UseCache  bool   `json:"use_cache"`
}

// PrepareConfig configures normalization and filtering.
type PrepareConfig struct {
	RedundantFields []string `json:"redundant_fields"`
	ChargeTolerance float64  `json:"charge_tolerance" validate:"gte=0"`
}

// SplitConfig configures the train/validate/test partition.
type SplitConfig struct {
	Seed       uint64  `json:"seed"`
	Train      float64 `json:"train_fraction" validate:"gt=0,lt=1"`
	Validate   float64 `json:"validate_fraction" validate:"gt=0,lt=1"`
	Test       float64 `json:"test_fraction" validate:"gt=0,lt=1"`
	StratifyOn string  `json:"stratify_on"`
}

// MetricsConfig is the ranking order.
type MetricsConfig struct {
	Primary   string `json:"metric_primary" validate:"oneof=recall precision accuracy f1"`
	Secondary string `json:"metric_secondary" validate:"oneof=recall precision accuracy f1"`
}

// HarnessConfig bounds model fitting.
type HarnessConfig struct {
	Parallelism int      `json:"parallelism" validate:"gte=0"`
	FitTimeout  Duration `json:"fit_timeout"`
}

// PredictionsConfig controls the predictions listing.
type PredictionsConfig struct {
	Path  string `json:"path"`
	Scope string `json:"scope" validate:"oneof=unlabeled test"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return errors.NewConfigurationError("harness.fit_timeout", "invalid duration", string(b))
	}
	*d = Duration(v)
	return nil
}

// DefaultFeatures are the encoded columns the reference analysis trains on.
var DefaultFeatures = []string{
	"monthly_charges",
	"tenure_months",
	"contract_type_one_year",
	"contract_type_two_year",
	"payment_type_credit_card_auto",
	"payment_type_electronic_check",
	"payment_type_mailed_check",
}

// DefaultModels are the reference configurations.
func DefaultModels() []harness.ModelConfig {
	return []harness.ModelConfig{
		{ID: "decision_tree", Family: harness.FamilyDecisionTree, Params: harness.Params{"max_depth": 5.0, "random_state": 24.0}},
		{ID: "random_forest", Family: harness.FamilyRandomForest, Params: harness.Params{"max_depth": 5.0, "random_state": 24.0}},
		{ID: "knn", Family: harness.FamilyKNN, Params: harness.Params{"n_neighbors": 10.0, "weights": "uniform"}},
		{ID: "logistic_regression", Family: harness.FamilyLogisticRegression, Params: harness.Params{"max_iter": 500.0}},
	}
}

// Default returns the reference configuration.
func Default() *Config {
	split := model_selection.DefaultSplitOptions()
	return &Config{
		Source: SourceConfig{Kind: "mysql", CachePath: "telco.csv", UseCache: true},
		Prepare: PrepareConfig{
			RedundantFields: append([]string(nil), prepare.DefaultRedundantFields...),
			ChargeTolerance: prepare.DefaultChargeTolerance.InexactFloat64(),
		},
		Split: SplitConfig{
			Seed:       split.Seed,
			Train:      split.Train,
			Validate:   split.Validate,
			Test:       split.Test,
			StratifyOn: split.StratifyOn,
		},
		Metrics: MetricsConfig{
			Primary:   string(metrics.MetricRecall),
			Secondary: string(metrics.MetricAccuracy),
		},
		Predictions: PredictionsConfig{Path: "predictions.csv", Scope: ScopeUnlabeled},
		Features:    append([]string(nil), DefaultFeatures...),
		Models:      DefaultModels(),
	}
}

// Load reads path over Default and validates the result. Lists present in
// the file replace the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(b)
}

// Parse decodes JSON over Default and validates the result. Unknown keys
// are rejected.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	// Lists and the source section are decoded fresh so file entries never
	// merge into defaults.
	defaults := *cfg
	cfg.Models, cfg.Features, cfg.Prepare.RedundantFields = nil, nil, nil
	cfg.Source = SourceConfig{}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var ce *errors.ConfigurationError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, errors.NewConfigurationError("config", "invalid JSON: "+err.Error(), nil)
	}
	if cfg.Source == (SourceConfig{}) {
		cfg.Source = defaults.Source
	}
	if cfg.Models == nil {
		cfg.Models = defaults.Models
	}
	if cfg.Features == nil {
		cfg.Features = defaults.Features
	}
	if cfg.Prepare.RedundantFields == nil {
		cfg.Prepare.RedundantFields = defaults.Prepare.RedundantFields
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct constraints, then the rules spanning fields.
// Every failure is a ConfigurationError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fromValidator(err)
	}
	if sum := c.Split.Train + c.Split.Validate + c.Split.Test; math.Abs(sum-1) > 1e-9 {
		return errors.NewConfigurationError("split", fmt.Sprintf("fractions must sum to 1.0, got %v", sum),
			[]float64{c.Split.Train, c.Split.Validate, c.Split.Test})
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.ID == harness.BaselineID {
			return errors.NewConfigurationError("models.id", "reserved for the baseline", m.ID)
		}
		if seen[m.ID] {
			return errors.NewConfigurationError("models.id", "duplicate model id", m.ID)
		}
		seen[m.ID] = true
	}
	if c.Encoding != nil {
		if err := c.Encoding.Validate(); err != nil {
			return err
		}
	}
	if c.Source.UseCache && c.Source.Kind != "csv" && c.Source.CachePath == "" {
		return errors.NewConfigurationError("source.cache_path", "required when use_cache is set", "")
	}
	return nil
}

// normalize folds metric names the same way metrics.ParseMetric reads them.
func (c *Config) normalize() {
	c.Metrics.Primary = strings.ToLower(strings.TrimSpace(c.Metrics.Primary))
	c.Metrics.Secondary = strings.ToLower(strings.TrimSpace(c.Metrics.Secondary))
}

// fromValidator turns the first validator failure into a ConfigurationError
// named by its JSON path.
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.NewConfigurationError("config", err.Error(), nil)
	}
	fe := verrs[0]
	option := strings.TrimPrefix(fe.Namespace(), "Config.")
	reason := "failed " + fe.Tag()
	if fe.Param() != "" {
		reason += "=" + fe.Param()
	}
	return errors.NewConfigurationError(option, reason, fe.Value())
}

// MappingTable returns the configured table or the built-in one.
func (c *Config) MappingTable() preprocessing.MappingTable {
	if c.Encoding != nil {
		return *c.Encoding
	}
	return preprocessing.DefaultMappingTable()
}

// PrepareOptions converts the prepare section.
func (c *Config) PrepareOptions() prepare.Options {
	return prepare.Options{
		RedundantFields: append([]string(nil), c.Prepare.RedundantFields...),
		ChargeTolerance: decimal.NewFromFloat(c.Prepare.ChargeTolerance),
	}
}

// SplitOptions converts the split section.
func (c *Config) SplitOptions() model_selection.SplitOptions {
	return model_selection.SplitOptions{
		Seed:       c.Split.Seed,
		Train:      c.Split.Train,
		Validate:   c.Split.Validate,
		Test:       c.Split.Test,
		StratifyOn: c.Split.StratifyOn,
	}
}

// HarnessOptions converts the metrics and harness sections.
func (c *Config) HarnessOptions() harness.Options {
	return harness.Options{
		Features:    append([]string(nil), c.Features...),
		Primary:     metrics.Metric(c.Metrics.Primary),
		Secondary:   metrics.Metric(c.Metrics.Secondary),
		Parallelism: c.Harness.Parallelism,
		FitTimeout:  time.Duration(c.Harness.FitTimeout),
	}
}
