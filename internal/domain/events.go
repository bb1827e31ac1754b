package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for published run events.
const (
	EventTypeAcquisitionCompleted  = "acquisition.completed"
	EventTypePaperAcquired         = "acquisition.paper_acquired"
	EventTypeVerificationCompleted = "verification.completed"
)

// Event is the envelope published to the message broker.
type Event struct {
	EventID       string          `json:"event_id"`
	EventVersion  int             `json:"event_version"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewEvent creates a new event with the given parameters.
// The payload is JSON-serialized automatically.
func NewEvent(eventType, aggregateID, aggregateType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:       uuid.New().String(),
		EventVersion:  1,
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// PaperAcquiredPayload is the payload for acquisition.paper_acquired events.
type PaperAcquiredPayload struct {
	PaperID     uuid.UUID         `json:"paper_id"`
	CanonicalID string            `json:"canonical_id"`
	Title       string            `json:"title"`
	DOI         string            `json:"doi,omitempty"`
	Stage       string            `json:"stage"`
	PDFURL      string            `json:"pdf_url"`
	LocalPath   string            `json:"local_path"`
	ContentHash string            `json:"content_hash,omitempty"`
	Status      AcquisitionStatus `json:"status"`
}

// VerificationCompletedPayload is the payload for verification.completed events.
type VerificationCompletedPayload struct {
	RunID            uuid.UUID `json:"run_id"`
	Total            int       `json:"total"`
	Verified         int       `json:"verified"`
	TitleMismatch    int       `json:"title_mismatch"`
	PageOutOfRange   int       `json:"page_out_of_range"`
	UnverifiableType int       `json:"unverifiable_type"`
	NotFound         int       `json:"not_found"`
}
