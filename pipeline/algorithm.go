package pipeline

import (
	"strings"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Algorithm はアダプタを選ぶ識別子
type Algorithm int

const (
	AlgorithmUnknown Algorithm = iota
	KNN
	KMeans
	DecisionTree
	RandomForest
	MLP
)

var algorithmNames = map[Algorithm]string{
	KNN:          "KNN",
	KMeans:       "KMeans",
	DecisionTree: "DecisionTree",
	RandomForest: "RandomForest",
	MLP:          "MLP",
}

// Algorithms は組み込みアダプタのあるアルゴリズムを返す
func Algorithms() []Algorithm {
	return []Algorithm{KNN, KMeans, DecisionTree, RandomForest, MLP}
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return "Unknown"
}

// ParseAlgorithm は識別子を大文字小文字を区別せずに解釈する。
// "-", "_", 空白は無視するので "k-means" や "random_forest" も受け付ける。
func ParseAlgorithm(s string) (Algorithm, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	for a, name := range algorithmNames {
		if strings.ToLower(name) == key {
			return a, nil
		}
	}
	return AlgorithmUnknown, errors.NewUnknownAlgorithmError(s)
}

// MarshalText は String と同じ表記を返す
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText は ParseAlgorithm で解釈する (CLI フラグや設定ファイル用)
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
