package model

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// rowVariable is the name feature expressions use to reach the input row
const rowVariable = "row"

// costLimit bounds the work a single feature expression may do
const costLimit = 100000

// featureSet is an ordered list of compiled feature expressions.
// cel.Program is safe for concurrent evaluation, so a featureSet needs no locking.
type featureSet struct {
	names    []string
	programs []cel.Program
}

// newFeatureEnv creates the CEL environment feature expressions are compiled in.
// The row is declared dynamic so any column can be referenced.
func newFeatureEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable(rowVariable, cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// compileFeatures compiles every feature expression of the artifact
func compileFeatures(features []Feature) (*featureSet, error) {
	env, err := newFeatureEnv()
	if err != nil {
		return nil, err
	}

	fs := &featureSet{
		names:    make([]string, 0, len(features)),
		programs: make([]cel.Program, 0, len(features)),
	}
	for _, f := range features {
		prog, err := compileFeature(env, f.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile feature %s: %w", f.Name, err)
		}
		fs.names = append(fs.names, f.Name)
		fs.programs = append(fs.programs, prog)
	}

	return fs, nil
}

func compileFeature(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	switch ast.OutputType().Kind() {
	case types.DoubleKind, types.IntKind, types.UintKind, types.BoolKind, types.DynKind, types.AnyKind:
	default:
		return nil, fmt.Errorf("expression must evaluate to a number or bool, got %s", ast.OutputType())
	}

	prog, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return prog, nil
}

// index returns feature name → position in the vector
func (fs *featureSet) index() map[string]int {
	idx := make(map[string]int, len(fs.names))
	for i, name := range fs.names {
		idx[name] = i
	}
	return idx
}

// transform evaluates every feature against row and returns the feature vector
func (fs *featureSet) transform(row map[string]any) ([]float64, error) {
	activation := map[string]any{rowVariable: row}

	vec := make([]float64, len(fs.programs))
	for i, prog := range fs.programs {
		out, _, err := prog.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", fs.names[i], err)
		}

		v, err := toFloat(out.Value())
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", fs.names[i], err)
		}
		switch {
		case math.IsNaN(v):
			return nil, fmt.Errorf("feature %s: input contains NaN", fs.names[i])
		case math.IsInf(v, 0):
			return nil, fmt.Errorf("feature %s: input contains infinity", fs.names[i])
		}
		vec[i] = v
	}

	return vec, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expression evaluated to non-numeric value of type %T", v)
	}
}
