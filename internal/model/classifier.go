// Package model loads classifier artifacts and runs predictions.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Classifier is a trained binary classifier produced by the training
// pipeline.
type Classifier interface {
	// Predict returns the class label for a single feature vector.
	Predict(vec []float64) (int, error)

	// PredictProba returns one probability per entry of Classes.
	PredictProba(vec []float64) ([]float64, error)

	// Classes lists the labels in probability order.
	Classes() []int

	// NumFeatures is the input width the classifier was trained on.
	NumFeatures() int

	// Name identifies the artifact in logs.
	Name() string
}

// PositiveClass is the label meaning "fraud".
const PositiveClass = 1

// Artifact kinds.
const (
	KindTreeEnsemble = "tree_ensemble"
	KindLogistic     = "logistic"
)

var (
	ErrArtifactMissing = errors.New("model artifact not found")
	ErrBadArtifact     = errors.New("malformed model artifact")
	ErrFeatureWidth    = errors.New("feature vector width mismatch")
)

// artifactHeader is the common prefix of every artifact file.
type artifactHeader struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	NumFeatures int    `json:"n_features"`
	Classes     []int  `json:"classes"`
}

// LoadFile reads a classifier artifact from path.
func LoadFile(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a JSON artifact.
func Parse(data []byte) (Classifier, error) {
	var hdr artifactHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	if hdr.NumFeatures <= 0 {
		return nil, fmt.Errorf("%w: n_features must be positive", ErrBadArtifact)
	}
	if len(hdr.Classes) < 2 {
		return nil, fmt.Errorf("%w: at least two classes required", ErrBadArtifact)
	}
	if classIndex(hdr.Classes, PositiveClass) < 0 {
		return nil, fmt.Errorf("%w: positive class %d missing", ErrBadArtifact, PositiveClass)
	}

	switch hdr.Kind {
	case KindTreeEnsemble:
		e, err := parseTreeEnsemble(hdr, data)
		if err != nil {
			return nil, err
		}
		return e, nil
	case KindLogistic:
		l, err := parseLogistic(hdr, data)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", ErrBadArtifact, hdr.Kind)
	}
}

func classIndex(classes []int, label int) int {
	for i, c := range classes {
		if c == label {
			return i
		}
	}
	return -1
}

func checkWidth(vec []float64, want int) error {
	if len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrFeatureWidth, len(vec), want)
	}
	return nil
}
