package nats

import (
	"context"
	"encoding/json"

	"gate-service/internal/services"
)

// Subjects for gate events
const (
	SubjectRequestCreated    = "gate.visitor.request_created"
	SubjectDecisionProcessed = "gate.visitor.decision_processed"
)

// Publisher broadcasts gate events over NATS. It implements
// services.EventPublisher.
type Publisher struct {
	client *Client
}

// NewPublisher creates a new publisher
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// PublishDecisionProcessed notifies listening clients that a decision was
// applied (or attempted), so open UIs refresh without polling.
func (p *Publisher) PublishDecisionProcessed(ctx context.Context, event services.DecisionProcessedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Connection().Publish(SubjectDecisionProcessed, payload)
}
