package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of domain event.
type EventType string

const (
	// Instance lifecycle
	EventInstanceRegistered    EventType = "INSTANCE_REGISTERED"
	EventInstanceHealthChanged EventType = "INSTANCE_HEALTH_CHANGED"
	EventInstanceDraining      EventType = "INSTANCE_DRAINING"
	EventInstanceRemoved       EventType = "INSTANCE_REMOVED"

	// Autoscaling
	EventScalingCompleted EventType = "SCALING_ACTION_COMPLETED"
	EventScalingFailed    EventType = "SCALING_ACTION_FAILED"

	// Service chains
	EventSFCActivated EventType = "SFC_ACTIVATED"
	EventSFCFailed    EventType = "SFC_FAILED"
	EventSFCCompleted EventType = "SFC_COMPLETED"
)

// Aggregate types carried by events.
const (
	AggregateInstance = "vnf_instance"
	AggregateVNFType  = "vnf_type"
	AggregateSFC      = "sfc"
)

// DomainEvent represents an immutable domain event.
type DomainEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Payload       []byte    `json:"payload"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewEvent builds an event with a time-ordered id and a JSON payload.
func NewEvent(eventType EventType, aggregateType, aggregateID string, payload interface{}) (*DomainEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &DomainEvent{
		EventID:       id.String(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}, nil
}

// InstancePayload is the payload of instance lifecycle events.
type InstancePayload struct {
	InstanceID string         `json:"instance_id"`
	VNFType    VNFType        `json:"vnf_type"`
	Status     InstanceStatus `json:"status"`
	Address    string         `json:"address,omitempty"`
}

// ScalingPayload is the payload of autoscaling events.
type ScalingPayload struct {
	VNFType    VNFType `json:"vnf_type"`
	Action     string  `json:"action"`
	Trigger    string  `json:"trigger"`
	InstanceID string  `json:"instance_id,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// SFCPayload is the payload of service chain events.
type SFCPayload struct {
	SFCID        string      `json:"sfc_id"`
	RequestType  RequestType `json:"request_type"`
	Chain        []VNFType   `json:"chain"`
	Reason       string      `json:"reason,omitempty"`
	AllocationMs float64     `json:"allocation_ms,omitempty"`
}
