package models

import (
	"fmt"
	"time"
)

// NumClasses is the number of digit classes every model scores.
const NumClasses = 10

// Prediction pairs a digit with the model's confidence in it.
type Prediction struct {
	Digit      int     `json:"digit"`
	Confidence float64 `json:"confidence"`
}

// PredictionResult is one model's probability distribution over the ten digits.
//
// Output is ordered by digit 0..9 and Guess is its maximum-confidence entry,
// with ties resolved to the lowest digit.
type PredictionResult struct {
	Name   string       `json:"name"`
	Output []Prediction `json:"output"`
	Guess  Prediction   `json:"guess"`
}

// PredictionRecord is the persisted top pick of one model for one request.
type PredictionRecord struct {
	id         string
	RequestID  string
	Model      string
	Digit      int
	Confidence float64
	createdAt  time.Time
}

// NewPredictionRecord builds a record for the guess in result.
func NewPredictionRecord(requestID string, result PredictionResult) *PredictionRecord {
	return &PredictionRecord{
		RequestID:  requestID,
		Model:      result.Name,
		Digit:      result.Guess.Digit,
		Confidence: result.Guess.Confidence,
		createdAt:  time.Now().UTC(),
	}
}

func (r *PredictionRecord) ID() string               { return r.id }
func (r *PredictionRecord) SetID(id string)          { r.id = id }
func (r *PredictionRecord) CreatedAt() time.Time     { return r.createdAt }
func (r *PredictionRecord) SetCreatedAt(t time.Time) { r.createdAt = t }
func (r *PredictionRecord) UpdatedAt() time.Time     { return r.createdAt }

// Validate checks the digit range and confidence bounds.
func (r *PredictionRecord) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("request ID is required")
	}
	if r.Model == "" {
		return fmt.Errorf("model name is required")
	}
	if r.Digit < 0 || r.Digit >= NumClasses {
		return fmt.Errorf("digit %d out of range", r.Digit)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", r.Confidence)
	}
	return nil
}
