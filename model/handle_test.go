package model

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/churn/artifact"
	"github.com/liamcoop/churn/record"
)

func twoColumnArtifact(kind string) *Artifact {
	return &Artifact{
		Name: "test-" + kind,
		Columns: []Column{
			{Name: "tenure", Type: "float64"},
			{Name: "Contract", Type: "string"},
		},
		Features: []Feature{
			{Name: "tenure", Expression: "row.tenure"},
			{Name: "month_to_month", Expression: `row.Contract == "Month-to-month"`},
		},
		Estimator: EstimatorSpec{
			Kind: kind,
			Coefficients: map[string]float64{
				"tenure":         -0.1,
				"month_to_month": 2.0,
			},
		},
	}
}

func treeArtifact() *Artifact {
	return &Artifact{
		Name:     "test-tree",
		Columns:  []Column{{Name: "tenure", Type: "int"}},
		Features: []Feature{{Name: "tenure", Expression: "double(row.tenure)"}},
		Estimator: EstimatorSpec{
			Kind: KindDecisionTree,
			Nodes: []TreeNode{
				{Feature: "tenure", Threshold: 10, Left: 1, Right: 2},
				{Value: []float64{2, 8}},
				{Value: []float64{9, 1}},
			},
		},
	}
}

func frame(rec record.InternalRecord) *record.Frame {
	return record.Shape(rec)
}

func TestLogisticRegressionPredict(t *testing.T) {
	h, err := New(twoColumnArtifact(KindLogisticRegression))
	require.NoError(t, err)
	require.True(t, h.SupportsProbability())

	pred, err := h.Predict(frame(record.InternalRecord{"tenure": 12.0, "Contract": "Month-to-month"}))
	require.NoError(t, err)
	assert.Equal(t, 1, pred.Class)
	require.NotNil(t, pred.Probability)
	assert.InDelta(t, 1/(1+math.Exp(-0.8)), *pred.Probability, 1e-9)

	pred, err = h.Predict(frame(record.InternalRecord{"tenure": 40.0, "Contract": "Two year"}))
	require.NoError(t, err)
	assert.Equal(t, 0, pred.Class)
	require.NotNil(t, pred.Probability)
	assert.InDelta(t, 1/(1+math.Exp(4)), *pred.Probability, 1e-9)
}

func TestLinearSVMHasNoProbability(t *testing.T) {
	h, err := New(twoColumnArtifact(KindLinearSVM))
	require.NoError(t, err)
	assert.False(t, h.SupportsProbability())

	pred, err := h.Predict(frame(record.InternalRecord{"tenure": 12.0, "Contract": "Month-to-month"}))
	require.NoError(t, err)
	assert.Equal(t, 1, pred.Class)
	assert.Nil(t, pred.Probability)
}

func TestDecisionTreePredict(t *testing.T) {
	h, err := New(treeArtifact())
	require.NoError(t, err)
	require.True(t, h.SupportsProbability())

	tests := []struct {
		tenure    any
		wantClass int
		wantProba float64
	}{
		{5.0, 1, 0.8},
		{10.0, 1, 0.8},
		{20.0, 0, 0.1},
		{"3", 1, 0.8},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.tenure), func(t *testing.T) {
			pred, err := h.Predict(frame(record.InternalRecord{"tenure": tt.tenure}))
			require.NoError(t, err)
			assert.Equal(t, tt.wantClass, pred.Class)
			require.NotNil(t, pred.Probability)
			assert.InDelta(t, tt.wantProba, *pred.Probability, 1e-9)
		})
	}
}

func TestPredictMissingColumns(t *testing.T) {
	h, err := New(twoColumnArtifact(KindLogisticRegression))
	require.NoError(t, err)

	_, err = h.Predict(frame(record.InternalRecord{"gender": "Male"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.Equal(t, "columns are missing: Contract, tenure", err.Error())
}

func TestPredictTypeErrors(t *testing.T) {
	h, err := New(twoColumnArtifact(KindLogisticRegression))
	require.NoError(t, err)

	tests := []struct {
		name    string
		rec     record.InternalRecord
		wantErr string
	}{
		{
			name:    "non numeric string",
			rec:     record.InternalRecord{"tenure": "abc", "Contract": "One year"},
			wantErr: "column tenure: could not convert string to float: 'abc'",
		},
		{
			name:    "blank string",
			rec:     record.InternalRecord{"tenure": " ", "Contract": "One year"},
			wantErr: "column tenure: could not convert string to float: ' '",
		},
		{
			name:    "number for string column",
			rec:     record.InternalRecord{"tenure": 1.0, "Contract": 2.0},
			wantErr: "column Contract: expected string, got number",
		},
		{
			name:    "null value",
			rec:     record.InternalRecord{"tenure": nil, "Contract": "One year"},
			wantErr: "column tenure: input contains null",
		},
		{
			name:    "object value",
			rec:     record.InternalRecord{"tenure": map[string]any{}, "Contract": "One year"},
			wantErr: "column tenure: expected number, got object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Predict(frame(tt.rec))
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestPredictCoercesNumericStrings(t *testing.T) {
	h, err := New(twoColumnArtifact(KindLogisticRegression))
	require.NoError(t, err)

	fromString, err := h.Predict(frame(record.InternalRecord{"tenure": "12", "Contract": "Month-to-month"}))
	require.NoError(t, err)
	fromNumber, err := h.Predict(frame(record.InternalRecord{"tenure": 12.0, "Contract": "Month-to-month"}))
	require.NoError(t, err)

	assert.Equal(t, fromNumber, fromString)
}

func TestPredictIgnoresExtraColumns(t *testing.T) {
	h, err := New(twoColumnArtifact(KindLogisticRegression))
	require.NoError(t, err)

	pred, err := h.Predict(frame(record.InternalRecord{
		"tenure":   12.0,
		"Contract": "Month-to-month",
		"gender":   "Female",
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, pred.Class)
}

func TestPredictRejectsMultiRowFrames(t *testing.T) {
	h, err := New(twoColumnArtifact(KindLogisticRegression))
	require.NoError(t, err)

	f := &record.Frame{
		Columns: []string{"Contract", "tenure"},
		Rows:    [][]any{{"One year", 1.0}, {"Two year", 2.0}},
	}
	_, err = h.Predict(f)
	assert.EqualError(t, err, "expected a single row, got 2")
}

func TestPredictNonNumericFeature(t *testing.T) {
	a := twoColumnArtifact(KindLogisticRegression)
	a.Features[1].Expression = "row.Contract"

	h, err := New(a)
	require.NoError(t, err)

	_, err = h.Predict(frame(record.InternalRecord{"tenure": 1.0, "Contract": "One year"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature month_to_month")
	assert.Contains(t, err.Error(), "non-numeric")
}

func TestPredictRejectsOutOfRangeIntegers(t *testing.T) {
	h, err := New(treeArtifact())
	require.NoError(t, err)

	for _, v := range []float64{1e300, -1e300, math.Exp2(63)} {
		_, err := h.Predict(frame(record.InternalRecord{"tenure": v}))
		require.Error(t, err, "tenure %v", v)
		assert.Contains(t, err.Error(), "column tenure: value")
		assert.Contains(t, err.Error(), "out of range for int64")
	}

	pred, err := h.Predict(frame(record.InternalRecord{"tenure": -math.Exp2(63)}))
	require.NoError(t, err)
	assert.Equal(t, 1, pred.Class)
}

func TestPredictRejectsNonFiniteFeatures(t *testing.T) {
	a := twoColumnArtifact(KindLogisticRegression)
	a.Features[0].Expression = "row.tenure / 0.0"

	h, err := New(a)
	require.NoError(t, err)

	_, err = h.Predict(frame(record.InternalRecord{"tenure": 3.0, "Contract": "One year"}))
	assert.EqualError(t, err, "feature tenure: input contains infinity")

	_, err = h.Predict(frame(record.InternalRecord{"tenure": 0.0, "Contract": "One year"}))
	assert.EqualError(t, err, "feature tenure: input contains NaN")
}

func overflowingArtifact(kind string) *Artifact {
	return &Artifact{
		Name:    "test-overflow",
		Columns: []Column{{Name: "tenure", Type: "float64"}},
		Features: []Feature{
			{Name: "up", Expression: "row.tenure"},
			{Name: "down", Expression: "0.0 - row.tenure"},
		},
		Estimator: EstimatorSpec{
			Kind: kind,
			Coefficients: map[string]float64{
				"up":   1e308,
				"down": 1e308,
			},
		},
	}
}

func TestPredictRejectsUndefinedDecision(t *testing.T) {
	for _, kind := range []string{KindLogisticRegression, KindLinearSVM} {
		t.Run(kind, func(t *testing.T) {
			h, err := New(overflowingArtifact(kind))
			require.NoError(t, err)

			_, err = h.Predict(frame(record.InternalRecord{"tenure": 10.0}))
			assert.EqualError(t, err, "estimator produced an undefined decision value")

			// small inputs stay finite
			pred, err := h.Predict(frame(record.InternalRecord{"tenure": 0.0}))
			require.NoError(t, err)
			assert.Equal(t, 0, pred.Class)
		})
	}
}

func TestNewRejectsBadExpressions(t *testing.T) {
	tests := []struct {
		name       string
		expression string
	}{
		{"syntax error", "row.tenure +"},
		{"string result", `"churn"`},
		{"unknown variable", "customer.tenure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := twoColumnArtifact(KindLogisticRegression)
			a.Features[0].Expression = tt.expression

			_, err := New(a)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to compile feature tenure")
		})
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	h, err := Load(context.Background(), artifact.NewFileSource("testdata/svm.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "churn-svm", h.Name())
	assert.Equal(t, "test", h.Version())
	assert.Equal(t, []string{"tenure", "Contract"}, h.Columns())
	assert.False(t, h.SupportsProbability())
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := Load(context.Background(), artifact.NewFileSource("testdata/nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(&artifact.Blob{
		Format: artifact.FormatJSON,
		Data:   []byte(`{"name":"x","colums":[]}`),
	})
	assert.Error(t, err)

	_, err = Decode(&artifact.Blob{
		Format: artifact.FormatYAML,
		Data:   []byte("name: x\ncolums: []\n"),
	})
	assert.Error(t, err)

	_, err = Decode(&artifact.Blob{Format: "pickle", Data: []byte("x")})
	assert.Error(t, err)
}

func bundledHandle(t *testing.T) *Handle {
	t.Helper()
	h, err := Load(context.Background(), artifact.NewFileSource("../models/churn_model.json"))
	require.NoError(t, err)
	return h
}

func highRiskCustomer() record.InternalRecord {
	return record.InternalRecord{
		"gender":           "Female",
		"SeniorCitizen":    0.0,
		"Partner":          "No",
		"Dependents":       "No",
		"tenure":           1.0,
		"PhoneService":     "Yes",
		"MultipleLines":    "No",
		"InternetService":  "Fiber optic",
		"OnlineSecurity":   "No",
		"OnlineBackup":     "No",
		"DeviceProtection": "No",
		"TechSupport":      "No",
		"StreamingTV":      "Yes",
		"StreamingMovies":  "Yes",
		"Contract":         "Month-to-month",
		"PaperlessBilling": "Yes",
		"PaymentMethod":    "Electronic check",
		"MonthlyCharges":   95.0,
		"TotalCharges":     95.0,
	}
}

func loyalCustomer() record.InternalRecord {
	return record.InternalRecord{
		"gender":           "Male",
		"SeniorCitizen":    0.0,
		"Partner":          "Yes",
		"Dependents":       "Yes",
		"tenure":           60.0,
		"PhoneService":     "Yes",
		"MultipleLines":    "No",
		"InternetService":  "No",
		"OnlineSecurity":   "No internet service",
		"OnlineBackup":     "No internet service",
		"DeviceProtection": "No internet service",
		"TechSupport":      "No internet service",
		"StreamingTV":      "No internet service",
		"StreamingMovies":  "No internet service",
		"Contract":         "Two year",
		"PaperlessBilling": "No",
		"PaymentMethod":    "Credit card (automatic)",
		"MonthlyCharges":   25.0,
		"TotalCharges":     1500.0,
	}
}

func TestBundledChurnModel(t *testing.T) {
	h := bundledHandle(t)
	assert.Equal(t, "churn", h.Name())
	assert.Len(t, h.Columns(), 19)
	require.True(t, h.SupportsProbability())

	pred, err := h.Predict(frame(highRiskCustomer()))
	require.NoError(t, err)
	assert.Equal(t, 1, pred.Class)
	require.NotNil(t, pred.Probability)
	assert.Greater(t, *pred.Probability, 0.5)
	assert.LessOrEqual(t, *pred.Probability, 1.0)

	pred, err = h.Predict(frame(loyalCustomer()))
	require.NoError(t, err)
	assert.Equal(t, 0, pred.Class)
	require.NotNil(t, pred.Probability)
	assert.Less(t, *pred.Probability, 0.5)
	assert.GreaterOrEqual(t, *pred.Probability, 0.0)
}

func TestBundledModelColumnsMatchMappingTable(t *testing.T) {
	h := bundledHandle(t)

	internal := record.NewMapper(record.DefaultMapping).Columns()
	for _, c := range h.Columns() {
		assert.Contains(t, internal, c)
	}
}

func TestPredictConcurrentRequestsDoNotInterfere(t *testing.T) {
	h := bundledHandle(t)

	inputs := []record.InternalRecord{highRiskCustomer(), loyalCustomer()}
	want := make([]Prediction, len(inputs))
	for i, in := range inputs {
		p, err := h.Predict(frame(in))
		require.NoError(t, err)
		want[i] = p
	}

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx := i % len(inputs)
			got, err := h.Predict(frame(inputs[idx]))
			if err != nil {
				errs <- err
				return
			}
			if got.Class != want[idx].Class || *got.Probability != *want[idx].Probability {
				errs <- fmt.Errorf("request %d: got %+v, want %+v", i, got, want[idx])
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
