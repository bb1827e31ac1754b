package events

import (
	"fmt"

	"github.com/helixir/reference-service/internal/domain"
)

// Aggregate types carried on event envelopes.
const (
	AggregateTypeAcquisitionRun  = "acquisition_run"
	AggregateTypePaper           = "paper"
	AggregateTypeVerificationRun = "verification_run"
)

// EmitterConfig configures the Emitter with service context.
type EmitterConfig struct {
	// ServiceName identifies the source service.
	ServiceName string
}

// EmitParams contains the parameters for emitting an event.
type EmitParams struct {
	// AggregateID is the run or paper the event belongs to.
	AggregateID string
	// AggregateType is one of the AggregateType constants.
	AggregateType string
	// EventType is one of the domain.EventType constants.
	EventType string
	// Payload is the event payload that will be JSON-serialized.
	Payload any
}

// Emitter creates event envelopes enriched with service context.
type Emitter struct {
	config EmitterConfig
}

// NewEmitter creates a new Emitter with the given service configuration.
func NewEmitter(config EmitterConfig) *Emitter {
	if config.ServiceName == "" {
		config.ServiceName = "reference-service"
	}
	return &Emitter{config: config}
}

// ServiceName returns the service name stamped on published messages.
func (e *Emitter) ServiceName() string {
	return e.config.ServiceName
}

// Emit validates params and builds the event envelope.
func (e *Emitter) Emit(params EmitParams) (*domain.Event, error) {
	if params.AggregateID == "" {
		return nil, fmt.Errorf("aggregate_id is required")
	}
	if params.EventType == "" {
		return nil, fmt.Errorf("event_type is required")
	}

	ev, err := domain.NewEvent(params.EventType, params.AggregateID, params.AggregateType, params.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return ev, nil
}

// AcquisitionCompleted builds an acquisition.completed event carrying the full report.
func (e *Emitter) AcquisitionCompleted(report *domain.AcquisitionReport) (*domain.Event, error) {
	return e.Emit(EmitParams{
		AggregateID:   report.RunID.String(),
		AggregateType: AggregateTypeAcquisitionRun,
		EventType:     domain.EventTypeAcquisitionCompleted,
		Payload:       report,
	})
}

// PaperAcquired builds an acquisition.paper_acquired event.
func (e *Emitter) PaperAcquired(payload domain.PaperAcquiredPayload) (*domain.Event, error) {
	return e.Emit(EmitParams{
		AggregateID:   payload.PaperID.String(),
		AggregateType: AggregateTypePaper,
		EventType:     domain.EventTypePaperAcquired,
		Payload:       payload,
	})
}

// VerificationCompleted builds a verification.completed event.
func (e *Emitter) VerificationCompleted(payload domain.VerificationCompletedPayload) (*domain.Event, error) {
	return e.Emit(EmitParams{
		AggregateID:   payload.RunID.String(),
		AggregateType: AggregateTypeVerificationRun,
		EventType:     domain.EventTypeVerificationCompleted,
		Payload:       payload,
	})
}
