package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/liamcoop/churn/artifact"
	"github.com/liamcoop/churn/record"
)

// ErrMissingColumns is returned by Predict when the frame lacks columns the
// model was trained on
var ErrMissingColumns = errors.New("columns are missing")

// Handle is a loaded, read-only model. It is built once at start-up and shared
// by all requests; nothing in it changes after New returns, so it is safe for
// concurrent use without locking.
type Handle struct {
	name      string
	version   string
	columns   []Column
	features  *featureSet
	estimator Classifier

	// proba is non-nil when the estimator can estimate probabilities.
	// Resolved once in New.
	proba ProbabilityEstimator
}

// Load reads the artifact from src, then decodes and compiles it
func Load(ctx context.Context, src artifact.Source) (*Handle, error) {
	blob, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load model artifact from %s: %w", src.Describe(), err)
	}

	a, err := Decode(blob)
	if err != nil {
		return nil, err
	}

	return New(a)
}

// New validates the artifact and compiles it into a Handle
func New(a *Artifact) (*Handle, error) {
	if err := Validate(a); err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}

	features, err := compileFeatures(a.Features)
	if err != nil {
		return nil, err
	}

	estimator, err := newEstimator(a.Estimator, features.index())
	if err != nil {
		return nil, err
	}

	columns := make([]Column, len(a.Columns))
	copy(columns, a.Columns)

	h := &Handle{
		name:      a.Name,
		version:   a.Version,
		columns:   columns,
		features:  features,
		estimator: estimator,
	}
	if p, ok := estimator.(ProbabilityEstimator); ok {
		h.proba = p
	}

	return h, nil
}

// Name returns the artifact name
func (h *Handle) Name() string {
	return h.name
}

// Version returns the informational artifact version
func (h *Handle) Version() string {
	return h.version
}

// SupportsProbability reports whether Predict fills Prediction.Probability
func (h *Handle) SupportsProbability() bool {
	return h.proba != nil
}

// Columns returns the names of the input columns the model requires
func (h *Handle) Columns() []string {
	names := make([]string, len(h.columns))
	for i, c := range h.columns {
		names[i] = c.Name
	}
	return names
}

// Predict classifies the single row of f.
// The frame must carry every column the model requires; values are coerced to
// the declared column types before the feature expressions run.
func (h *Handle) Predict(f *record.Frame) (Prediction, error) {
	if f.Len() != 1 {
		return Prediction{}, fmt.Errorf("expected a single row, got %d", f.Len())
	}

	if missing := h.missingColumns(f); len(missing) > 0 {
		return Prediction{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	row, err := f.Row(0)
	if err != nil {
		return Prediction{}, err
	}

	row, err = coerceRow(row, h.columns)
	if err != nil {
		return Prediction{}, err
	}

	x, err := h.features.transform(row)
	if err != nil {
		return Prediction{}, err
	}

	if d, ok := h.estimator.(decisionFunction); ok && math.IsNaN(d.decision(x)) {
		return Prediction{}, errors.New("estimator produced an undefined decision value")
	}

	pred := Prediction{Class: h.estimator.Predict(x)}
	if h.proba != nil {
		p := h.proba.PredictProba(x)[1]
		if math.IsNaN(p) {
			return Prediction{}, errors.New("estimator produced an undefined probability")
		}
		pred.Probability = &p
	}

	return pred, nil
}

func (h *Handle) missingColumns(f *record.Frame) []string {
	present := make(map[string]bool, len(f.Columns))
	for _, c := range f.Columns {
		present[c] = true
	}

	var missing []string
	for _, c := range h.columns {
		if !present[c.Name] {
			missing = append(missing, c.Name)
		}
	}
	sort.Strings(missing)
	return missing
}
