package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"noteshub/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishPurchaseCompleted publishes a PurchaseCompleted event
func (ep *EventPublisher) PublishPurchaseCompleted(ctx context.Context, event *models.PurchaseCompletedEvent) error {
	key := fmt.Sprintf("purchase-%s", event.PurchaseID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishAccessGrantRequested publishes an AccessGrantRequested event.
// Keyed by folder so retries for the same folder stay ordered.
func (ep *EventPublisher) PublishAccessGrantRequested(ctx context.Context, event *models.AccessGrantRequestedEvent) error {
	key := fmt.Sprintf("grant-%s", event.FolderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishAccessGranted publishes an AccessGranted event
func (ep *EventPublisher) PublishAccessGranted(ctx context.Context, event *models.AccessGrantedEvent) error {
	key := fmt.Sprintf("grant-%s", event.FolderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishAccessGrantFailed publishes an AccessGrantFailed event
func (ep *EventPublisher) PublishAccessGrantFailed(ctx context.Context, event *models.AccessGrantFailedEvent) error {
	key := fmt.Sprintf("grant-%s", event.FolderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onAccessGrantRequested func(context.Context, *models.AccessGrantRequestedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnAccessGrantRequested registers a handler for AccessGrantRequested events
func (eh *EventHandler) OnAccessGrantRequested(handler func(context.Context, *models.AccessGrantRequestedEvent) error) {
	eh.onAccessGrantRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeAccessGrantRequested:
		if eh.onAccessGrantRequested != nil {
			var event models.AccessGrantRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal AccessGrantRequested event: %w", err)
			}
			return eh.onAccessGrantRequested(ctx, &event)
		}

	case models.EventTypePurchaseCompleted,
		models.EventTypeAccessGranted,
		models.EventTypeAccessGrantFailed:
		// informational for downstream consumers, nothing to do here

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
