// Package imageprocessor holds the leaf-disease model's vocabulary and the
// image preparation that precedes a prediction.
package imageprocessor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Prediction is the most likely class for a scanned leaf.
type Prediction struct {
	Index      int
	Class      string
	Confidence float64
}

// DisplayName renders the class as shown to users, e.g. "Tomato: Late blight".
func (p Prediction) DisplayName() string {
	return DisplayName(p.Class)
}

// ConfidencePercent renders the confidence with two decimals, e.g. "97.31%".
func (p Prediction) ConfidencePercent() string {
	return fmt.Sprintf("%.2f%%", p.Confidence*100)
}

// Client classifies a model-ready image.
type Client interface {
	Predict(ctx context.Context, scanID string, imageBytes []byte) (*Prediction, error)
}

var (
	ErrEmptyPrediction = errors.New("model returned no probabilities")
	ErrLabelMismatch   = errors.New("model output does not match label set")
)

// Top picks the highest probability and maps it to its label.
func Top(probabilities []float32) (*Prediction, error) {
	if len(probabilities) == 0 {
		return nil, ErrEmptyPrediction
	}
	if len(probabilities) != len(Labels) {
		return nil, fmt.Errorf("%w: got %d classes, want %d", ErrLabelMismatch, len(probabilities), len(Labels))
	}
	best := 0
	for i, p := range probabilities {
		if p > probabilities[best] {
			best = i
		}
	}
	return &Prediction{
		Index:      best,
		Class:      Labels[best],
		Confidence: float64(probabilities[best]),
	}, nil
}

// DisplayName turns a raw label such as "Tomato___Late_blight" into
// "Tomato: Late blight".
func DisplayName(class string) string {
	return strings.ReplaceAll(strings.ReplaceAll(class, "___", ": "), "_", " ")
}
