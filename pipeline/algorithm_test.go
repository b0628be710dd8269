package pipeline

import (
	"testing"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
	}{
		{"KNN", KNN},
		{"knn", KNN},
		{"KMeans", KMeans},
		{"k-means", KMeans},
		{"DecisionTree", DecisionTree},
		{"decision_tree", DecisionTree},
		{"Random Forest", RandomForest},
		{"randomforest", RandomForest},
		{"MLP", MLP},
		{"mlp", MLP},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if err != nil {
				t.Fatalf("ParseAlgorithm(%q) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAlgorithm(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAlgorithm_Unknown(t *testing.T) {
	for _, in := range []string{"", "svm", "Unknown"} {
		_, err := ParseAlgorithm(in)
		if !errors.Is(err, errors.ErrUnknownAlgorithm) {
			t.Errorf("ParseAlgorithm(%q) err = %v, want ErrUnknownAlgorithm", in, err)
		}
	}
}

func TestAlgorithm_TextRoundTrip(t *testing.T) {
	for _, a := range Algorithms() {
		text, err := a.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back Algorithm
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != a {
			t.Errorf("round trip %v -> %q -> %v", a, text, back)
		}
	}
}
