package tracker

import "time"

// Entry sources.
const (
	SourceActivity = "activity"
	SourceReceipt  = "receipt"
)

// Entry is one persisted daily CO2e total for a user. Every submission
// inserts a new entry; entries on the same date are never merged, the
// trend aggregator sums them later. Entries are never mutated or
// deleted by this service.
type Entry struct {
	ID          string    `json:"id"`
	UserID      int       `json:"user_id"`
	Date        time.Time `json:"date"`
	Source      string    `json:"source"`
	TotalCO2    float64   `json:"total_co2"`
	Artifact    string    `json:"artifact,omitempty"` // stored receipt file, receipt entries only
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
