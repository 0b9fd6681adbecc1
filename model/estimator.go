package model

import (
	"fmt"
	"math"
)

// Classifier predicts a class label from a feature vector
type Classifier interface {
	Predict(x []float64) int
}

// ProbabilityEstimator is implemented by classifiers that can estimate class
// probabilities. PredictProba returns one probability per class, in class order.
type ProbabilityEstimator interface {
	PredictProba(x []float64) []float64
}

// newEstimator builds the classifier described by spec. index maps feature
// names to their position in the feature vector.
func newEstimator(spec EstimatorSpec, index map[string]int) (Classifier, error) {
	switch spec.Kind {
	case KindLogisticRegression:
		return &logisticRegression{linear: newLinear(spec, index)}, nil
	case KindLinearSVM:
		return &linearSVM{linear: newLinear(spec, index)}, nil
	case KindDecisionTree:
		return newDecisionTree(spec.Nodes, index)
	default:
		return nil, fmt.Errorf("unknown estimator kind %q", spec.Kind)
	}
}

// decisionFunction is implemented by estimators that score a raw margin
type decisionFunction interface {
	decision(x []float64) float64
}

// linear is a weighted sum over the feature vector.
// Features without a coefficient get weight zero.
type linear struct {
	intercept float64
	weights   []float64
}

func newLinear(spec EstimatorSpec, index map[string]int) linear {
	weights := make([]float64, len(index))
	for name, w := range spec.Coefficients {
		weights[index[name]] = w
	}
	return linear{intercept: spec.Intercept, weights: weights}
}

func (l linear) decision(x []float64) float64 {
	z := l.intercept
	for i, w := range l.weights {
		z += w * x[i]
	}
	return z
}

type logisticRegression struct {
	linear
}

func (m *logisticRegression) Predict(x []float64) int {
	if m.decision(x) > 0 {
		return 1
	}
	return 0
}

func (m *logisticRegression) PredictProba(x []float64) []float64 {
	p := sigmoid(m.decision(x))
	return []float64{1 - p, p}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// linearSVM has no probability calibration and only predicts labels
type linearSVM struct {
	linear
}

func (m *linearSVM) Predict(x []float64) int {
	if m.decision(x) > 0 {
		return 1
	}
	return 0
}

type treeNode struct {
	leaf      bool
	feature   int
	threshold float64
	left      int
	right     int
	proba     []float64
}

// decisionTree routes a vector left when feature <= threshold
type decisionTree struct {
	nodes []treeNode
}

func newDecisionTree(nodes []TreeNode, index map[string]int) (*decisionTree, error) {
	t := &decisionTree{nodes: make([]treeNode, len(nodes))}
	for i, n := range nodes {
		if n.IsLeaf() {
			total := n.Value[0] + n.Value[1]
			t.nodes[i] = treeNode{
				leaf:  true,
				proba: []float64{n.Value[0] / total, n.Value[1] / total},
			}
			continue
		}

		pos, ok := index[n.Feature]
		if !ok {
			return nil, fmt.Errorf("node %d splits on unknown feature %q", i, n.Feature)
		}
		t.nodes[i] = treeNode{
			feature:   pos,
			threshold: n.Threshold,
			left:      n.Left,
			right:     n.Right,
		}
	}
	return t, nil
}

func (t *decisionTree) leaf(x []float64) treeNode {
	n := t.nodes[0]
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = t.nodes[n.left]
		} else {
			n = t.nodes[n.right]
		}
	}
	return n
}

func (t *decisionTree) Predict(x []float64) int {
	p := t.leaf(x).proba
	if p[1] > p[0] {
		return 1
	}
	return 0
}

func (t *decisionTree) PredictProba(x []float64) []float64 {
	p := t.leaf(x).proba
	return []float64{p[0], p[1]}
}
