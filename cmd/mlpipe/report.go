package main

import (
	"io"

	"github.com/goccy/go-json"

	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pipeline"
)

// report is the JSON document printed after a run.
type report struct {
	ID        string             `json:"id"`
	Algorithm pipeline.Algorithm `json:"algorithm"`
	Source    string             `json:"source"`
	Scale     string             `json:"scale"`

	Samples      int      `json:"samples"`
	Features     []string `json:"features"`
	Label        string   `json:"label,omitempty"`
	Classes      []string `json:"classes,omitempty"`
	TrainSamples int      `json:"train_samples"`
	TestSamples  int      `json:"test_samples,omitempty"`

	TrainAccuracy   float64                 `json:"train_accuracy,omitempty"`
	TestAccuracy    *float64                `json:"test_accuracy,omitempty"`
	ConfusionMatrix [][]float64             `json:"confusion_matrix,omitempty"`
	Epochs          []pipeline.EpochMetrics `json:"epochs,omitempty"`
	Clustering      *clusterReport          `json:"clustering,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}

type clusterReport struct {
	Sizes      []int       `json:"sizes"`
	Centroids  [][]float64 `json:"centroids"`
	Inertia    float64     `json:"inertia"`
	Iterations int         `json:"iterations"`
}

func newReport(cfg *runConfig, ds *dataset.Dataset, h *pipeline.Handle) *report {
	rep := &report{
		ID:        h.ID.String(),
		Algorithm: h.Algorithm,
		Source:    cfg.Source,
		Scale:     cfg.Scale,
		Samples:   ds.Rows(),
		Features:  ds.FeatureNames,
		Label:     ds.LabelName,
		Classes:   ds.Classes,
		Epochs:    h.Report.Epochs,
	}
	if c := h.Clustering; c != nil {
		r, _ := c.Centroids.Dims()
		sizes := make([]int, r)
		for _, a := range c.Assignments {
			sizes[a]++
		}
		rep.Clustering = &clusterReport{
			Sizes:      sizes,
			Centroids:  denseRows(c.Centroids),
			Inertia:    c.Inertia,
			Iterations: c.NIter,
		}
	} else {
		rep.TrainAccuracy = h.Report.TrainAccuracy
	}
	return rep
}

func writeReport(w io.Writer, rep *report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
