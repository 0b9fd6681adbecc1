package model

// Artifact is the serialized form of a trained classification pipeline.
// Columns are the inputs the pipeline requires, Features turn a row of those
// columns into a numeric vector, and Estimator classifies that vector.
type Artifact struct {
	Name      string        `json:"name" yaml:"name"`
	Version   string        `json:"version,omitempty" yaml:"version,omitempty"`
	Columns   []Column      `json:"columns" yaml:"columns"`
	Features  []Feature     `json:"features" yaml:"features"`
	Estimator EstimatorSpec `json:"estimator" yaml:"estimator"`
}

// Column is an input column the pipeline was trained on
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"` // int, int64, float64, string or bool
}

// Feature is a derived numeric input computed from a row
type Feature struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"` // CEL expression over `row`
}

// Estimator kinds
const (
	KindLogisticRegression = "logistic_regression"
	KindLinearSVM          = "linear_svm"
	KindDecisionTree       = "decision_tree"
)

// EstimatorSpec holds the fitted parameters of the final pipeline step
type EstimatorSpec struct {
	Kind string `json:"kind" yaml:"kind"`

	// Linear models
	Intercept    float64            `json:"intercept,omitempty" yaml:"intercept,omitempty"`
	Coefficients map[string]float64 `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`

	// Decision tree; node 0 is the root
	Nodes []TreeNode `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// TreeNode is a decision tree node. A node without a feature is a leaf and
// Value holds its per-class sample counts.
type TreeNode struct {
	Feature   string    `json:"feature,omitempty" yaml:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Left      int       `json:"left,omitempty" yaml:"left,omitempty"`
	Right     int       `json:"right,omitempty" yaml:"right,omitempty"`
	Value     []float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

// IsLeaf reports whether the node is a leaf
func (n TreeNode) IsLeaf() bool {
	return n.Feature == ""
}

// Prediction is the outcome of classifying one row. Probability is the
// estimated probability of class 1 and is nil when the model cannot
// estimate probabilities.
type Prediction struct {
	Class       int
	Probability *float64
}
