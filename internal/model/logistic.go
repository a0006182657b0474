package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Logistic is a binary logistic regression with optional input scaling.
type Logistic struct {
	name        string
	numFeatures int
	classes     []int
	coef        []float64
	intercept   float64
	mean        []float64
	scale       []float64
}

func parseLogistic(hdr artifactHeader, data []byte) (*Logistic, error) {
	var body struct {
		Coef      []float64 `json:"coef"`
		Intercept float64   `json:"intercept"`
		Mean      []float64 `json:"mean,omitempty"`
		Scale     []float64 `json:"scale,omitempty"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	if len(hdr.Classes) != 2 {
		return nil, fmt.Errorf("%w: logistic artifacts are binary", ErrBadArtifact)
	}
	if len(body.Coef) != hdr.NumFeatures {
		return nil, fmt.Errorf("%w: %d coefficients for %d features", ErrBadArtifact, len(body.Coef), hdr.NumFeatures)
	}
	if body.Mean != nil && len(body.Mean) != hdr.NumFeatures {
		return nil, fmt.Errorf("%w: scaler mean width", ErrBadArtifact)
	}
	if body.Scale != nil && len(body.Scale) != hdr.NumFeatures {
		return nil, fmt.Errorf("%w: scaler scale width", ErrBadArtifact)
	}
	for i, s := range body.Scale {
		if s == 0 {
			return nil, fmt.Errorf("%w: zero scale for feature %d", ErrBadArtifact, i)
		}
	}

	return &Logistic{
		name:        hdr.Name,
		numFeatures: hdr.NumFeatures,
		classes:     hdr.Classes,
		coef:        body.Coef,
		intercept:   body.Intercept,
		mean:        body.Mean,
		scale:       body.Scale,
	}, nil
}

func (l *Logistic) decision(vec []float64) float64 {
	z := l.intercept
	for i, x := range vec {
		if l.mean != nil {
			x -= l.mean[i]
		}
		if l.scale != nil {
			x /= l.scale[i]
		}
		z += l.coef[i] * x
	}
	return z
}

// PredictProba returns [P(classes[0]), P(classes[1])].
func (l *Logistic) PredictProba(vec []float64) ([]float64, error) {
	if err := checkWidth(vec, l.numFeatures); err != nil {
		return nil, err
	}
	p := 1 / (1 + math.Exp(-l.decision(vec)))
	return []float64{1 - p, p}, nil
}

// Predict returns classes[1] when the decision function is positive.
func (l *Logistic) Predict(vec []float64) (int, error) {
	if err := checkWidth(vec, l.numFeatures); err != nil {
		return 0, err
	}
	if l.decision(vec) > 0 {
		return l.classes[1], nil
	}
	return l.classes[0], nil
}

func (l *Logistic) Classes() []int   { return l.classes }
func (l *Logistic) NumFeatures() int { return l.numFeatures }
func (l *Logistic) Name() string     { return l.name }
