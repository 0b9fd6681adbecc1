package main

// API request and response models

// PredictResponse is the body of a successful POST /predict.
// ProbabilityClass1 is null when the loaded model cannot estimate probabilities.
type PredictResponse struct {
	Prediction        int      `json:"prediction" example:"1"`
	ProbabilityClass1 *float64 `json:"probability_class_1" example:"0.73"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error" example:"no data provided"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status               string `json:"status" example:"healthy"`
	Model                string `json:"model" example:"churn"`
	ModelVersion         string `json:"modelVersion,omitempty" example:"2024-06-logreg"`
	ProbabilitySupported bool   `json:"probabilitySupported" example:"true"`
}
