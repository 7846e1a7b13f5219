package tracker

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/carbonlens/carbonlens/internal/emission"
	"github.com/carbonlens/carbonlens/internal/recognition"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// userIDFromPath parses the {user} path segment
func userIDFromPath(r *http.Request) (int, error) {
	return strconv.Atoi(r.PathValue("user"))
}

// parseOrderedForm decodes a urlencoded form body into raw inputs,
// preserving the order the fields appear in. net/url parses forms into
// a map, which would lose the field order the breakdown contract needs.
func parseOrderedForm(body string) []emission.RawInput {
	inputs := make([]emission.RawInput, 0)
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil || key == "" {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			value = ""
		}
		inputs = append(inputs, emission.RawInput{Category: key, Value: value})
	}
	return inputs
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleSubmitEntries handles a manual activity form submission
func (s *Server) handleSubmitEntries(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		corsError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		slog.Error("Error reading form body", "error", err)
		corsError(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	breakdown, entry, err := s.service.SubmitActivities(userID, parseOrderedForm(string(body)))
	if err != nil {
		slog.Error("Error saving activity entry", "user", userID, "error", err)
		jsonError(w, "Error saving entry", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"breakdown": breakdown,
		"entry":     entry,
	}); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleListEntries returns a user's entries, newest first
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		corsError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	entries, err := s.service.Entries(userID)
	if err != nil {
		slog.Error("Error listing entries", "user", userID, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleUploadReceipt handles a receipt upload
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		corsError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	// Parse multipart form (max 50MB to handle high-resolution phone photos)
	maxFormSize := int64(50 << 20) // 50MB
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if err.Error() == "http: no such file" {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		jsonError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	// Multipart writers that don't know the file type send octet-stream;
	// fall back to the extension in that case too.
	if contentType == "" || contentType == "application/octet-stream" {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		switch ext {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	breakdown, entry, err := s.service.IngestReceipt(r.Context(), userID, header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error ingesting receipt", "user", userID, "filename", header.Filename, "error", err)
		var ingestionErr *recognition.IngestionError
		if errors.As(err, &ingestionErr) {
			jsonError(w, err.Error(), http.StatusBadGateway)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"breakdown": breakdown,
		"entry":     entry,
	}); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleEntryArtifact returns the stored receipt file for an entry
func (s *Server) handleEntryArtifact(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		corsError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Entry ID required", http.StatusBadRequest)
		return
	}

	data, contentType, err := s.service.EntryArtifact(userID, id)
	if err != nil {
		corsError(w, "Artifact not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleTrends returns trend buckets at the requested resolution
func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		corsError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	resolution, err := ParseResolution(r.PathValue("resolution"))
	if err != nil {
		corsError(w, err.Error(), http.StatusBadRequest)
		return
	}

	buckets, err := s.service.Trends(userID, resolution)
	if err != nil {
		slog.Error("Error aggregating trends", "user", userID, "resolution", resolution, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Ensure we always return an array, not nil
	if buckets == nil {
		buckets = []TrendBucket{}
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(buckets); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}
