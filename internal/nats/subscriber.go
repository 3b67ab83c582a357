package nats

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"gate-service/internal/services"
)

// RequestCreatedEvent is published by request creators (kiosk backends,
// guard apps) that write the request record themselves and delegate only
// the notification dispatch.
type RequestCreatedEvent struct {
	ResidencyID string `json:"residencyId"`
	RequestID   string `json:"requestId"`
}

// Subscriber triggers notification dispatch for externally created visitor
// requests. Duplicate deliveries are harmless: the dispatcher's claim gate
// keeps the outbound send at most once per request.
type Subscriber struct {
	client     *Client
	dispatcher *services.Dispatcher
	subs       []*nats.Subscription
	logger     *logrus.Entry
}

// NewSubscriber creates a new subscriber
func NewSubscriber(client *Client, dispatcher *services.Dispatcher) *Subscriber {
	return &Subscriber{
		client:     client,
		dispatcher: dispatcher,
		logger:     logrus.WithField("component", "nats_subscriber"),
	}
}

// Start subscribes to gate events
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.client.Connection().Subscribe(SubjectRequestCreated, func(msg *nats.Msg) {
		s.handleRequestCreated(ctx, msg)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	s.logger.WithField("subject", SubjectRequestCreated).Info("Subscribed")
	return nil
}

// Stop unsubscribes from all subjects
func (s *Subscriber) Stop() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.WithError(err).Warn("Unsubscribe failed")
		}
	}
	s.subs = nil
}

func (s *Subscriber) handleRequestCreated(ctx context.Context, msg *nats.Msg) {
	var event RequestCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.WithError(err).Warn("Malformed request_created event")
		return
	}

	requestID, err := uuid.Parse(event.RequestID)
	if err != nil {
		s.logger.WithField("request_id", event.RequestID).Warn("Invalid request id in event")
		return
	}
	if event.ResidencyID == "" {
		s.logger.Warn("Missing residency id in event")
		return
	}

	s.dispatcher.Dispatch(ctx, event.ResidencyID, requestID)
}
