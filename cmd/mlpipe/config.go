package main

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/YuminosukeSato/mlpipe/pipeline"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// envPrefix は環境変数による上書きの接頭辞 (MLPIPE_TREES=200 など)
const envPrefix = "MLPIPE_"

// Scale modes
const (
	ScaleNone        = "none"
	ScaleNormalize   = "normalize"
	ScaleStandardize = "standardize"
)

// runConfig は1回の実行設定。既定値 → YAML ファイル → 環境変数 → フラグの順に上書きされる。
type runConfig struct {
	Source       string          `koanf:"source"`
	Algorithm    string          `koanf:"algorithm"`
	Label        string          `koanf:"label"`
	Features     []string        `koanf:"features"`
	Scale        string          `koanf:"scale"`
	TestFraction float64         `koanf:"test_fraction"`
	Training     trainingSection `koanf:"training"`
	Log          logSection      `koanf:"log"`
}

type trainingSection struct {
	K               int     `koanf:"k"`
	NTrees          int     `koanf:"n_trees"`
	Epochs          int     `koanf:"epochs"`
	Seed            int64   `koanf:"seed"`
	MaxDepth        int     `koanf:"max_depth"`
	MinSamplesLeaf  int     `koanf:"min_samples_leaf"`
	Criterion       string  `koanf:"criterion"`
	Weights         string  `koanf:"weights"`
	LearningRate    float64 `koanf:"learning_rate"`
	BatchSize       int     `koanf:"batch_size"`
	ValidationSplit float64 `koanf:"validation_split"`
	MaxIter         int     `koanf:"max_iter"`
}

type logSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultRunConfig() *runConfig {
	d := pipeline.DefaultTrainingConfig()
	return &runConfig{
		Scale:        ScaleNone,
		TestFraction: 0.2,
		Training: trainingSection{
			K:               d.K,
			NTrees:          d.NTrees,
			Epochs:          d.Epochs,
			Seed:            d.Seed,
			MaxDepth:        d.MaxDepth,
			MinSamplesLeaf:  d.MinSamplesLeaf,
			Criterion:       d.Criterion,
			Weights:         d.Weights,
			LearningRate:    d.LearningRate,
			BatchSize:       d.BatchSize,
			ValidationSplit: d.ValidationSplit,
			MaxIter:         d.MaxIter,
		},
		Log: logSection{Level: "info", Format: log.FormatJSON},
	}
}

// TrainingConfig converts the section into the library config.
func (t trainingSection) TrainingConfig() pipeline.TrainingConfig {
	return pipeline.TrainingConfig{
		K:               t.K,
		NTrees:          t.NTrees,
		Epochs:          t.Epochs,
		Seed:            t.Seed,
		MaxDepth:        t.MaxDepth,
		MinSamplesLeaf:  t.MinSamplesLeaf,
		Criterion:       t.Criterion,
		Weights:         t.Weights,
		LearningRate:    t.LearningRate,
		BatchSize:       t.BatchSize,
		ValidationSplit: t.ValidationSplit,
		MaxIter:         t.MaxIter,
	}
}

// envKeys maps MLPIPE_* names (prefix removed, lower-cased) to koanf paths.
var envKeys = map[string]string{
	"source":           "source",
	"algorithm":        "algorithm",
	"label":            "label",
	"features":         "features",
	"scale":            "scale",
	"test_fraction":    "test_fraction",
	"k":                "training.k",
	"trees":            "training.n_trees",
	"n_trees":          "training.n_trees",
	"epochs":           "training.epochs",
	"seed":             "training.seed",
	"max_depth":        "training.max_depth",
	"min_samples_leaf": "training.min_samples_leaf",
	"criterion":        "training.criterion",
	"weights":          "training.weights",
	"learning_rate":    "training.learning_rate",
	"batch_size":       "training.batch_size",
	"validation_split": "training.validation_split",
	"max_iter":         "training.max_iter",
	"log_level":        "log.level",
	"log_format":       "log.format",
}

// envTransformFunc は MLPIPE_LOG_LEVEL を log.level に変換する。未知の変数は無視する。
func envTransformFunc(key string) string {
	return envKeys[strings.ToLower(strings.TrimPrefix(key, envPrefix))]
}

// loadConfig layers defaults, the optional YAML run file, MLPIPE_* variables
// and finally the command line flags that were actually given.
func loadConfig(a *args) (*runConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultRunConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if a.Config != "" {
		if err := k.Load(file.Provider(a.Config), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", a.Config, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := splitFeatures(k); err != nil {
		return nil, err
	}

	if err := applyFlags(k, a); err != nil {
		return nil, err
	}

	cfg := &runConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitFeatures turns a comma separated MLPIPE_FEATURES into a list.
func splitFeatures(k *koanf.Koanf) error {
	s, ok := k.Get("features").(string)
	if !ok || s == "" {
		return nil
	}
	var features []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, f)
		}
	}
	return k.Set("features", features)
}

func applyFlags(k *koanf.Koanf, a *args) error {
	set := map[string]any{}
	if a.Source != "" {
		set["source"] = a.Source
	}
	if a.Algorithm != pipeline.AlgorithmUnknown {
		set["algorithm"] = a.Algorithm.String()
	}
	if a.Label != "" {
		set["label"] = a.Label
	}
	if len(a.Features) > 0 {
		set["features"] = a.Features
	}
	switch {
	case a.Normalize && a.Standardize:
		return errors.NewValidationError("scale", "--normalize and --standardize are exclusive", nil)
	case a.Normalize:
		set["scale"] = ScaleNormalize
	case a.Standardize:
		set["scale"] = ScaleStandardize
	}
	if a.TestFraction != 0 {
		set["test_fraction"] = a.TestFraction
	}
	if a.K != 0 {
		set["training.k"] = a.K
	}
	if a.Trees != 0 {
		set["training.n_trees"] = a.Trees
	}
	if a.Epochs != 0 {
		set["training.epochs"] = a.Epochs
	}
	if a.Seed != 0 {
		set["training.seed"] = a.Seed
	}
	if a.LogLevel != "" {
		set["log.level"] = a.LogLevel
	}
	if a.LogFormat != "" {
		set["log.format"] = a.LogFormat
	}

	for key, v := range set {
		if err := k.Set(key, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks the run level settings. Training values are validated by
// the pipeline when the model is trained.
func (c *runConfig) Validate() error {
	if c.Source == "" {
		return errors.NewValidationError("source", "a CSV path or URL is required", c.Source)
	}
	alg, err := pipeline.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return err
	}
	if alg != pipeline.KMeans && c.Label == "" {
		return errors.NewValidationError("label", "required for supervised algorithms", alg.String())
	}
	switch c.Scale {
	case ScaleNone, ScaleNormalize, ScaleStandardize:
	default:
		return errors.NewValidationError("scale", "must be one of none, normalize, standardize", c.Scale)
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return errors.NewValidationError("test_fraction", "must be in (0, 1)", c.TestFraction)
	}
	return nil
}
