// Package mlpipe is a small machine learning pipeline for Go: load a CSV
// dataset, scale its features, train one of five algorithms and evaluate the
// result.
//
// The pipeline has four stages, each in its own package:
//
//   - dataset: CSV loading from files or http(s) URLs, feature/label
//     selection and train/test splitting
//   - preprocessing: row normalization and column standardization
//   - sklearn/...: the estimators (KNN, K-Means, decision tree, random
//     forest, MLP) with a scikit-learn like Fit/Predict API
//   - pipeline: adapters that give every estimator the same Train/Predict
//     shape, and the Dispatcher that routes to them by Algorithm
//
// # Quick Start
//
//	records, err := dataset.Load(ctx, "iris.csv", dataset.DefaultLoadOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ds, err := dataset.FromRecords(records, dataset.FeatureSpec{Label: "species"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	X, _, err := preprocessing.Standardize(ds.X)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	d := pipeline.NewDispatcher()
//	h, err := d.Run(ctx, pipeline.RandomForest, X, ds.Labels(), pipeline.DefaultTrainingConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pred, err := d.Predict(ctx, h, X)
//
// Handles are opaque: they are only valid with the Dispatcher (or adapter)
// that produced them and carry a training Report and, for K-Means, the
// Clustering result.
//
// # Errors
//
// Every failure is a typed error from pkg/errors and matches a sentinel with
// errors.Is (ErrInvalidK, ErrLabelCountMismatch, ErrSourceUnavailable, ...).
// Panics inside an adapter or one of its parallel workers are recovered and
// returned as *errors.PanicError, which matches errors.ErrPanic.
//
// # Command line
//
// cmd/mlpipe wraps the pipeline:
//
//	mlpipe -a MLP -l species --standardize iris.csv
//
// # License
//
// mlpipe is released under the MIT License.
package mlpipe
