// Package log defines standard attribute keys for the churn pipeline.
//
// The keys follow a hierarchical naming convention ("model.name",
// "data.samples", "prepare.retained") so that log lines from different stages
// can be filtered and joined by run.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "DecisionTreeClassifier", "StandardScaler"
	ModelNameKey = "model.name"

	// EstimatorIDKey is the configuration id of a candidate model ("dt-depth5").
	EstimatorIDKey = "estimator.id"

	// FamilyKey is the classifier family name ("decision_tree", "knn").
	FamilyKey = "model.family"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the pipeline phase.
	PhaseKey = "ml.phase"

	// RunIDKey ties every line of one pipeline run together.
	RunIDKey = "run.id"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"

	// SourceKey names where raw records came from ("csv", "mysql", "cache").
	SourceKey = "data.source"

	// MappingVersionKey records the categorical mapping table version used to encode.
	MappingVersionKey = "data.mapping_version"
)

// Preparation counters.
const (
	RawCountKey            = "prepare.raw"
	SchemaDroppedKey       = "prepare.schema_dropped"
	ValidationDroppedKey   = "prepare.validation_dropped"
	RetainedKey            = "prepare.retained"
	InconsistentChargesKey = "prepare.inconsistent_charges"
)

// Split sizes.
const (
	TrainSizeKey    = "split.train"
	ValidateSizeKey = "split.validate"
	TestSizeKey     = "split.test"
)

// Scores and timing.
const (
	DurationMsKey = "perf.duration_ms"

	AccuracyKey  = "metrics.accuracy"
	PrecisionKey = "metrics.precision"
	RecallKey    = "metrics.recall"
	F1Key        = "metrics.f1"
	AUCKey       = "metrics.auc"
	LogLossKey   = "metrics.log_loss"

	// UsefulKey reports whether a model beat the baseline on the primary metric.
	UsefulKey = "model.useful"

	// PrimaryKey and SecondaryKey hold the configured ranking metric values.
	PrimaryKey   = "metrics.primary"
	SecondaryKey = "metrics.secondary"

	// LossKey records log-loss during iterative training.
	LossKey = "metrics.loss"

	// IterationKey records the current iteration number during iterative fits.
	IterationKey = "training.iteration"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	SuggestionKey = "error.suggestion"
)

// Configuration.
const (
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"

	PhaseAcquire    = "acquire"
	PhasePrepare    = "prepare"
	PhaseEncode     = "encode"
	PhasePartition  = "partition"
	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseTesting    = "testing"
	PhaseInference  = "inference"
)
