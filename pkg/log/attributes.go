// Package log defines standard attribute keys for pipeline operations.
//
// Using these keys keeps log records from the data source, the preprocessor
// and every estimator filterable by the same names. Keys follow a dotted
// "category.name" convention.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "KNeighborsClassifier", "KMeans", "MLPClassifier"
	ModelNameKey = "model.name"

	// EstimatorIDKey identifies one trained model handle (a UUID string).
	EstimatorIDKey = "estimator.id"

	// AlgorithmKey is the dispatcher-level algorithm identifier.
	// Examples: "KNN", "KMeans", "DecisionTree", "RandomForest", "MLP"
	AlgorithmKey = "ml.algorithm"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	// Examples: "dataset", "preprocessing", "pipeline"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the pipeline.
	PhaseKey = "ml.phase"
)

// Data Shape and Source
const (
	// SourceKey is the URI or path a dataset was loaded from.
	SourceKey = "data.source"

	// SamplesKey indicates the number of samples (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// TargetsKey indicates the label dimensionality (1 for class indices, C for one-hot).
	TargetsKey = "data.targets"

	// ClassesKey indicates the number of distinct classes seen during training.
	ClassesKey = "data.classes"

	// BytesKey records the size of fetched source text.
	BytesKey = "data.size_bytes"
)

// Performance and Training Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records accuracy in [0, 1].
	AccuracyKey = "metrics.accuracy"

	// LossKey records the training loss.
	LossKey = "metrics.loss"

	// ValAccuracyKey records accuracy on the held-out validation rows.
	ValAccuracyKey = "metrics.val_accuracy"

	// ValLossKey records the loss on the held-out validation rows.
	ValLossKey = "metrics.val_loss"

	// InertiaKey records the within-cluster sum of squares for k-means.
	InertiaKey = "metrics.inertia"

	// IterationKey records the current iteration of an iterative algorithm.
	IterationKey = "training.iteration"

	// EpochKey records the current epoch during network training.
	EpochKey = "training.epoch"
)

// Prediction Context
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"
)

// Error Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides a hint for resolving the problem.
	SuggestionKey = "error.suggestion"
)

// Hyperparameters
const (
	// HyperParamsKey contains estimator hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// LearningRateKey records the optimizer step size.
	LearningRateKey = "hyperparams.learning_rate"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationLoad        = "load"
	OperationNormalize   = "normalize"
	OperationStandardize = "standardize"
	OperationFit         = "fit"
	OperationPredict     = "predict"
	OperationScore       = "score"

	PhaseIngestion     = "ingestion"
	PhasePreprocessing = "preprocessing"
	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseInference     = "inference"

	ErrorNotFitted     = "NOT_FITTED"
	ErrorShapeMismatch = "SHAPE_MISMATCH"
	ErrorEmptyData     = "EMPTY_DATA"
	ErrorInvalidInput  = "INVALID_INPUT"
	ErrorConvergence   = "CONVERGENCE_FAILURE"
)
