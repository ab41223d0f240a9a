// Package events publishes the router's domain events to EventBridge.
// Publishing is best-effort: the assignment write is the system of record
// and an event is only a notification trigger, so callers log publish
// failures and never roll back.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/google/uuid"

	"github.com/ignite/lead-router/internal/domain"
)

// EventBridgeAPI is the slice of the EventBridge client the publisher needs.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher puts lead events on the configured bus. Each event carries a
// generated eventId so downstream consumers can dedup under redelivery.
type Publisher struct {
	client  EventBridgeAPI
	busName string
	source  string
}

// NewPublisher creates a publisher for the given bus. An empty source falls
// back to the router's canonical source name.
func NewPublisher(client EventBridgeAPI, busName, source string) *Publisher {
	if source == "" {
		source = "ignite.lead-router"
	}
	return &Publisher{client: client, busName: busName, source: source}
}

// PublishLeadAssigned emits a lead.assigned event. The payload's EventID is
// filled in if the caller left it empty.
func (p *Publisher) PublishLeadAssigned(ctx context.Context, payload domain.LeadAssigned) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	return p.put(ctx, domain.EventLeadAssigned, payload)
}

// PublishLeadUnassigned emits a lead.unassigned event.
func (p *Publisher) PublishLeadUnassigned(ctx context.Context, payload domain.LeadUnassigned) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	return p.put(ctx, domain.EventLeadUnassigned, payload)
}

func (p *Publisher) put(ctx context.Context, eventType domain.EventType, payload any) error {
	detail, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", eventType, err)
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.busName),
				Source:       aws.String(p.source),
				DetailType:   aws.String(string(eventType)),
				Detail:       aws.String(string(detail)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("putting %s event: %w", eventType, err)
	}
	if out.FailedEntryCount > 0 {
		entry := out.Entries[0]
		return fmt.Errorf("putting %s event: %s (%s)",
			eventType, aws.ToString(entry.ErrorMessage), aws.ToString(entry.ErrorCode))
	}
	return nil
}
