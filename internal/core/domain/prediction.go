package domain

import (
	"fmt"
	"math"
)

// PredictionResult is the classifier's answer for one keypoint tensor.
type PredictionResult struct {
	Gesture    string  `json:"gesture"`
	Confidence float64 `json:"confidence"`
}

// Validate checks that the result is displayable.
func (r PredictionResult) Validate() error {
	if r.Gesture == "" {
		return fmt.Errorf("prediction has no gesture")
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("prediction confidence %v outside [0,1]", r.Confidence)
	}
	return nil
}

// FormatConfidence renders a confidence as a percentage with one decimal,
// e.g. 0.87 becomes "87.0%".
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.1f%%", c*100)
}

// PredictRequest is the wire body of a prediction call.
type PredictRequest struct {
	Keypoints KeypointTensor `json:"keypoints"`
}

// ErrorBody is the JSON shape of an error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
