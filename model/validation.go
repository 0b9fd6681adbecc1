package model

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxColumns  = 200
	maxFeatures = 1000
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks an artifact definition before it is compiled.
// Returns an error describing the first problem found, nil if the artifact is valid.
func Validate(a *Artifact) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}

	if len(a.Columns) == 0 {
		return fmt.Errorf("artifact must declare at least one column")
	}
	if len(a.Columns) > maxColumns {
		return fmt.Errorf("artifact declares %d columns, maximum allowed is %d", len(a.Columns), maxColumns)
	}

	seen := make(map[string]bool, len(a.Columns))
	for _, col := range a.Columns {
		if err := validateIdentifier(col.Name); err != nil {
			return fmt.Errorf("invalid column name %q: %w", col.Name, err)
		}
		if seen[col.Name] {
			return fmt.Errorf("column %q declared more than once", col.Name)
		}
		seen[col.Name] = true

		if col.Type == "" {
			return fmt.Errorf("column %q has empty type name", col.Name)
		}
		if strings.TrimSpace(col.Type) != col.Type {
			return fmt.Errorf("column %q has type with leading/trailing whitespace: %q", col.Name, col.Type)
		}
		if !isValidColumnType(col.Type) {
			return fmt.Errorf("column %q has invalid type %q (must be one of: int, int64, float64, string, bool)", col.Name, col.Type)
		}
	}

	if len(a.Features) == 0 {
		return fmt.Errorf("artifact must declare at least one feature")
	}
	if len(a.Features) > maxFeatures {
		return fmt.Errorf("artifact declares %d features, maximum allowed is %d", len(a.Features), maxFeatures)
	}

	features := make(map[string]bool, len(a.Features))
	for _, f := range a.Features {
		if err := validateIdentifier(f.Name); err != nil {
			return fmt.Errorf("invalid feature name %q: %w", f.Name, err)
		}
		if features[f.Name] {
			return fmt.Errorf("feature %q declared more than once", f.Name)
		}
		features[f.Name] = true

		if strings.TrimSpace(f.Expression) == "" {
			return fmt.Errorf("feature %q has empty expression", f.Name)
		}
	}

	return validateEstimator(a.Estimator, features)
}

func validateEstimator(spec EstimatorSpec, features map[string]bool) error {
	switch spec.Kind {
	case KindLogisticRegression, KindLinearSVM:
		if len(spec.Coefficients) == 0 {
			return fmt.Errorf("%s estimator needs at least one coefficient", spec.Kind)
		}
		for name := range spec.Coefficients {
			if !features[name] {
				return fmt.Errorf("coefficient refers to unknown feature %q", name)
			}
		}
		return nil

	case KindDecisionTree:
		return validateTree(spec.Nodes, features)

	case "":
		return fmt.Errorf("estimator kind cannot be empty")

	default:
		return fmt.Errorf("unknown estimator kind %q (must be one of: %s, %s, %s)",
			spec.Kind, KindLogisticRegression, KindLinearSVM, KindDecisionTree)
	}
}

// validateTree checks node references. Children must come after their parent,
// which rules out cycles.
func validateTree(nodes []TreeNode, features map[string]bool) error {
	if len(nodes) == 0 {
		return fmt.Errorf("decision_tree estimator needs at least one node")
	}

	for i, n := range nodes {
		if n.IsLeaf() {
			if len(n.Value) != 2 {
				return fmt.Errorf("leaf node %d must hold 2 class counts, has %d", i, len(n.Value))
			}
			if n.Value[0] < 0 || n.Value[1] < 0 || n.Value[0]+n.Value[1] == 0 {
				return fmt.Errorf("leaf node %d has invalid class counts %v", i, n.Value)
			}
			continue
		}

		if !features[n.Feature] {
			return fmt.Errorf("node %d splits on unknown feature %q", i, n.Feature)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= i || child >= len(nodes) {
				return fmt.Errorf("node %d has invalid child index %d", i, child)
			}
		}
	}

	return nil
}

// validateIdentifier validates a column or feature name.
// Names must match ^[a-zA-Z_][a-zA-Z0-9_]*$, be 1-100 characters and not be a
// reserved CEL keyword.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(name))
	}

	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}

	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}

	return nil
}

// isValidColumnType checks if a type name is supported for input columns.
// Type names are case-sensitive.
func isValidColumnType(typeName string) bool {
	switch typeName {
	case "int", "int64", "float64", "string", "bool":
		return true
	}
	return false
}

// isReservedKeyword checks if a name is a CEL reserved keyword
func isReservedKeyword(name string) bool {
	reservedKeywords := map[string]bool{
		"true":      true,
		"false":     true,
		"null":      true,
		"if":        true,
		"else":      true,
		"for":       true,
		"while":     true,
		"break":     true,
		"continue":  true,
		"return":    true,
		"var":       true,
		"let":       true,
		"const":     true,
		"function":  true,
		"in":        true,
		"as":        true,
		"import":    true,
		"package":   true,
		"namespace": true,
		"loop":      true,
		"void":      true,
	}

	return reservedKeywords[name]
}
