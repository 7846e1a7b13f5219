package recognition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// receiptPrompt asks the model for the same response shape the
// recognition service produces, so both backends feed one contract.
const receiptPrompt = `You are analyzing a shopping receipt. Read every line item on the receipt and estimate the carbon footprint of each purchased product.

Return ONLY valid JSON in this exact format:
{
  "items": [
    {
      "item": "product name as printed",
      "category": "product category (e.g. Dairy, Meat, Produce, Household)",
      "co2_per_unit": 0.0,
      "unit": "kg",
      "quantity": 1,
      "total_co2": 0.0
    }
  ],
  "total_co2": 0.0
}

Important:
- co2_per_unit and total_co2 are kg CO2e and must be numbers, not strings
- total_co2 at the top level must equal the sum of the per-item total_co2 values
- Skip subtotal, tax, and total lines; they are not products
- Use category "Unknown" and 0 for items you cannot estimate
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// GeminiRecognizer implements Recognizer using Google Gemini vision
// models, for deployments that run without the recognition service.
type GeminiRecognizer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiRecognizer creates a Gemini-backed recognizer.
func NewGeminiRecognizer(apiKey, modelName string) (*GeminiRecognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiRecognizer{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Recognize normalizes the artifact to PNG, sends it to Gemini, and
// validates the model's JSON reply against the recognition contract.
func (g *GeminiRecognizer) Recognize(ctx context.Context, artifact []byte, filename, contentType string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	pngData, err := normalizeToPNG(artifact, contentType)
	if err != nil {
		return nil, &IngestionError{Reason: "preparing receipt image", Err: err}
	}

	parts := []genai.Part{
		// genai.ImageData wants the bare format suffix, and after
		// normalizeToPNG the data is always PNG.
		genai.ImageData("png", pngData),
		genai.Text(receiptPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, &IngestionError{Reason: "calling gemini", Err: err}
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &IngestionError{Reason: "empty response from gemini"}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	jsonText, ok := extractJSON(responseText.String())
	if !ok {
		return nil, &IngestionError{Reason: "no JSON object in gemini response"}
	}

	return decodeResult([]byte(jsonText))
}

// Close closes the underlying Gemini client.
func (g *GeminiRecognizer) Close() error {
	return g.client.Close()
}
