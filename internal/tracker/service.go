package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carbonlens/carbonlens/internal/emission"
	"github.com/carbonlens/carbonlens/internal/recognition"
)

// IDGenerator generates unique IDs for entries and stored artifacts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidIDGenerator struct{}

func (g *uuidIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles CO2e calculation, receipt ingestion, and trends
type Service struct {
	db          DB
	recognizer  recognition.Recognizer
	storage     Storage
	factors     emission.FactorTable
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, recognizer recognition.Recognizer, storage Storage, factors emission.FactorTable) *Service {
	return &Service{
		db:          db,
		recognizer:  recognizer,
		storage:     storage,
		factors:     factors,
		idGenerator: &uuidIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, recognizer recognition.Recognizer, storage Storage, factors emission.FactorTable, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		recognizer:  recognizer,
		storage:     storage,
		factors:     factors,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up an uploaded filename by removing special
// characters and truncating phone-generated long names
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// dateOf truncates a timestamp to its calendar date.
func dateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// SubmitActivities converts manually entered activity quantities into a
// CO2e breakdown and persists the total as a new daily entry.
func (s *Service) SubmitActivities(userID int, inputs []emission.RawInput) (emission.Breakdown, *Entry, error) {
	breakdown := emission.ComputeBreakdown(inputs, s.factors)

	now := s.timeSource.Now()
	entry := &Entry{
		ID:        s.idGenerator.Generate(),
		UserID:    userID,
		Date:      dateOf(now),
		Source:    SourceActivity,
		TotalCO2:  breakdown.TotalCO2,
		CreatedAt: now,
	}

	if err := s.db.InsertEntry(entry); err != nil {
		return emission.Breakdown{}, nil, fmt.Errorf("saving daily entry: %w", err)
	}

	return breakdown, entry, nil
}

// IngestReceipt stores the receipt artifact, has the recognizer extract
// line items and a total from it, and persists the total as a new daily
// entry. A recognition or persistence failure removes the stored
// artifact again; no partial breakdown is ever returned.
func (s *Service) IngestReceipt(ctx context.Context, userID int, filename string, data []byte, contentType string) (emission.Breakdown, *Entry, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	cleanFilename := sanitizeFilename(filename)

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, cleanFilename), data)
	if err != nil {
		return emission.Breakdown{}, nil, fmt.Errorf("saving artifact: %w", err)
	}

	result, err := s.recognizer.Recognize(ctx, data, cleanFilename, contentType)
	if err != nil {
		slog.Error("Failed to recognize receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedPath)
		return emission.Breakdown{}, nil, fmt.Errorf("recognizing receipt: %w", err)
	}

	breakdown := breakdownFromResult(result)

	entry := &Entry{
		ID:          id,
		UserID:      userID,
		Date:        dateOf(now),
		Source:      SourceReceipt,
		TotalCO2:    result.TotalCO2,
		Artifact:    savedPath,
		ContentType: contentType,
		CreatedAt:   now,
	}

	if err := s.db.InsertEntry(entry); err != nil {
		s.storage.Delete(savedPath)
		return emission.Breakdown{}, nil, fmt.Errorf("saving daily entry: %w", err)
	}

	return breakdown, entry, nil
}

// breakdownFromResult maps a recognition result into the breakdown
// shape the calculator produces. The remote figures are authoritative:
// per-item factors and totals are carried over, never recomputed, and
// the breakdown total is the remote-reported total.
func breakdownFromResult(result *recognition.Result) emission.Breakdown {
	items := make([]emission.LineItem, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, emission.LineItem{
			Category: item.Item,
			Quantity: item.Quantity,
			Factor:   item.CO2PerUnit,
			CO2:      item.TotalCO2,
		})
	}
	return emission.Breakdown{Items: items, TotalCO2: result.TotalCO2}
}

// Entries returns a user's daily entries, newest first.
func (s *Service) Entries(userID int) ([]*Entry, error) {
	entries, err := s.db.ListEntries(userID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return entries, nil
}

// Trends rolls a user's entries up at the given resolution.
func (s *Service) Trends(userID int, resolution Resolution) ([]TrendBucket, error) {
	entries, err := s.db.ListEntries(userID)
	if err != nil {
		return nil, fmt.Errorf("listing entries for trends: %w", err)
	}
	return aggregate(entries, resolution), nil
}

// EntryArtifact retrieves the stored receipt file for an entry.
func (s *Service) EntryArtifact(userID int, id string) ([]byte, string, error) {
	entry, err := s.db.GetEntry(userID, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting entry: %w", err)
	}
	if entry.Artifact == "" {
		return nil, "", fmt.Errorf("entry %s has no artifact", id)
	}

	data, err := s.storage.Get(entry.Artifact)
	if err != nil {
		return nil, "", fmt.Errorf("getting artifact: %w", err)
	}

	return data, entry.ContentType, nil
}
