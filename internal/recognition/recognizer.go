package recognition

import (
	"context"
	"fmt"
)

// RecognizedItem is one line item as reported by the recognition
// backend. The core passes these through untouched: the backend's
// per-item figures are authoritative and are never recomputed.
type RecognizedItem struct {
	Item       string  `json:"item"`
	Category   string  `json:"category"`
	CO2PerUnit float64 `json:"co2_per_unit"`
	Unit       string  `json:"unit"`
	Quantity   float64 `json:"quantity"`
	TotalCO2   float64 `json:"total_co2"`
}

// Result is the structured outcome of recognizing a receipt: the
// recognized line items and the backend-reported total CO2e.
type Result struct {
	Items    []RecognizedItem `json:"items"`
	TotalCO2 float64          `json:"total_co2"`
}

// Recognizer turns a receipt artifact into a Result. A failed call
// returns an *IngestionError; a Recognizer never fabricates a
// zero-valued Result and never retries on its own.
type Recognizer interface {
	Recognize(ctx context.Context, artifact []byte, filename, contentType string) (*Result, error)

	// Close releases any resources held by the backend.
	Close() error
}

// IngestionError is the failure of a single recognition request:
// transport trouble, a non-2xx status, or a malformed response.
type IngestionError struct {
	Reason string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}
