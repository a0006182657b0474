package model

import (
	"encoding/json"
	"fmt"
)

// tree is a single CART tree in the flat array layout scikit-learn exports.
// A node is a leaf when ChildrenLeft[node] == -1.
type tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// TreeEnsemble averages the leaf class distributions of its trees. A single
// tree behaves as a decision tree, several as a random forest.
type TreeEnsemble struct {
	name        string
	numFeatures int
	classes     []int
	trees       []tree
}

func parseTreeEnsemble(hdr artifactHeader, data []byte) (*TreeEnsemble, error) {
	var body struct {
		Trees []tree `json:"trees"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	if len(body.Trees) == 0 {
		return nil, fmt.Errorf("%w: ensemble has no trees", ErrBadArtifact)
	}

	for i := range body.Trees {
		if err := body.Trees[i].validate(hdr.NumFeatures, len(hdr.Classes)); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrBadArtifact, i, err)
		}
	}

	return &TreeEnsemble{
		name:        hdr.Name,
		numFeatures: hdr.NumFeatures,
		classes:     hdr.Classes,
		trees:       body.Trees,
	}, nil
}

func (t *tree) validate(numFeatures, numClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}
	for node := 0; node < n; node++ {
		left, right := t.ChildrenLeft[node], t.ChildrenRight[node]
		if left == -1 {
			if len(t.Value[node]) != numClasses {
				return fmt.Errorf("leaf %d has %d class counts, want %d", node, len(t.Value[node]), numClasses)
			}
			continue
		}
		// children always follow their parent in the exported layout
		if left <= node || right <= node || left >= n || right >= n {
			return fmt.Errorf("node %d has invalid children", node)
		}
		if f := t.Feature[node]; f < 0 || f >= numFeatures {
			return fmt.Errorf("node %d splits on feature %d", node, f)
		}
	}
	return nil
}

// leaf walks the tree: x[feature] <= threshold goes left.
func (t *tree) leaf(vec []float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] != -1 {
		if vec[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// PredictProba averages the normalized leaf distributions.
func (e *TreeEnsemble) PredictProba(vec []float64) ([]float64, error) {
	if err := checkWidth(vec, e.numFeatures); err != nil {
		return nil, err
	}

	proba := make([]float64, len(e.classes))
	for i := range e.trees {
		counts := e.trees[i].leaf(vec)
		total := 0.0
		for _, c := range counts {
			total += c
		}
		if total <= 0 {
			return nil, fmt.Errorf("tree %d reached an empty leaf", i)
		}
		for j, c := range counts {
			proba[j] += c / total
		}
	}

	n := float64(len(e.trees))
	for j := range proba {
		proba[j] /= n
	}
	return proba, nil
}

// Predict returns the class with the highest mean probability. Ties go to
// the first class.
func (e *TreeEnsemble) Predict(vec []float64) (int, error) {
	proba, err := e.PredictProba(vec)
	if err != nil {
		return 0, err
	}
	best := 0
	for j := 1; j < len(proba); j++ {
		if proba[j] > proba[best] {
			best = j
		}
	}
	return e.classes[best], nil
}

func (e *TreeEnsemble) Classes() []int   { return e.classes }
func (e *TreeEnsemble) NumFeatures() int { return e.numFeatures }
func (e *TreeEnsemble) Name() string     { return e.name }
