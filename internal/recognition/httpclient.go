package recognition

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// HTTPRecognizer implements Recognizer against the external receipt
// recognition service. The artifact is posted as a multipart form with
// a single "receipt" file field to {base}/process-receipt.
type HTTPRecognizer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRecognizer creates a recognizer for the service at baseURL.
// An empty baseURL falls back to the default local service port.
func NewHTTPRecognizer(baseURL string) *HTTPRecognizer {
	if baseURL == "" {
		baseURL = "http://localhost:5002"
	}

	return &HTTPRecognizer{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 120 * time.Second, // OCR plus fuzzy matching can be slow on large photos
		},
	}
}

// Recognize sends the artifact to the recognition service and validates
// its response. Any transport failure, non-2xx status, or response
// missing the items list or total_co2 surfaces as an *IngestionError;
// no retry is attempted.
func (h *HTTPRecognizer) Recognize(ctx context.Context, artifact []byte, filename, contentType string) (*Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("receipt", filename)
	if err != nil {
		return nil, &IngestionError{Reason: "building multipart payload", Err: err}
	}
	if _, err := part.Write(artifact); err != nil {
		return nil, &IngestionError{Reason: "building multipart payload", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &IngestionError{Reason: "building multipart payload", Err: err}
	}

	url := fmt.Sprintf("%s/process-receipt", h.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, &IngestionError{Reason: "creating recognition request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &IngestionError{Reason: "calling recognition service", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &IngestionError{Reason: "reading recognition response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &IngestionError{
			Reason: fmt.Sprintf("recognition service error (status %d): %s", resp.StatusCode, string(respBody)),
		}
	}

	return decodeResult(respBody)
}

// Close is a no-op for the HTTP client.
func (h *HTTPRecognizer) Close() error {
	return nil
}
