package recognition

import (
	"encoding/json"
	"strings"
)

// rawResult mirrors the recognition response with pointer fields so a
// missing key can be told apart from a present-but-zero value.
type rawResult struct {
	Items    *[]RecognizedItem `json:"items"`
	TotalCO2 *float64          `json:"total_co2"`
}

// decodeResult validates and decodes a recognition response body. The
// contract requires both an items list and a numeric total_co2; a body
// missing either, or that is not JSON at all, is an *IngestionError.
func decodeResult(data []byte) (*Result, error) {
	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &IngestionError{Reason: "malformed recognition response", Err: err}
	}

	if raw.Items == nil {
		return nil, &IngestionError{Reason: "recognition response missing items list"}
	}
	if raw.TotalCO2 == nil {
		return nil, &IngestionError{Reason: "recognition response missing total_co2"}
	}

	return &Result{Items: *raw.Items, TotalCO2: *raw.TotalCO2}, nil
}

// extractJSON pulls the JSON object out of an LLM text reply, stripping
// markdown fences and any prose around the braces.
func extractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}
