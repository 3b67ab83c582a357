package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gate-service/internal/models"
	"gate-service/internal/repository"
)

// DecisionProcessedEvent is broadcast after a decision attempt so open UIs
// can refresh without polling.
type DecisionProcessedEvent struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Success   bool   `json:"success"`
}

// EventPublisher fans internal client-notification events out to listeners
type EventPublisher interface {
	PublishDecisionProcessed(ctx context.Context, event DecisionProcessedEvent) error
}

// VisitorNotifier tells the visitor the outcome of their request
type VisitorNotifier interface {
	SendDecisionNotice(ctx context.Context, phoneNumber string, status models.RequestStatus) (*SendResult, error)
}

// DecisionSource is the union of the shapes a decision can arrive in: an
// explicit API body, a notification action payload, or a raw action string
// paired with notification data.
type DecisionSource struct {
	// Request identity; VisitorID is the historical alias for RequestID
	RequestID   string
	VisitorID   string
	ResidencyID string

	// Decision in API-body form ("approved"/"rejected")
	Decision string

	// Decision in notification-action form ("approve"/"reject"/"")
	Action string

	ApprovalToken string
	Actor         string
}

// Decision is the canonical normalized form
type Decision struct {
	ResidencyID string
	RequestID   uuid.UUID
	Status      models.RequestStatus
	Actor       string
}

// Drop reasons for events that normalize to no decision
const (
	ReasonOpenApp        = "open_app"
	ReasonUnrecognized   = "unrecognized_action"
	ReasonBadRequestID   = "invalid_request_id"
	ReasonNotFound       = "not_found"
	ReasonAlreadyDecided = "already_decided"
	ReasonTokenMismatch  = "token_mismatch"
)

// NormalizeDecision reduces any known input shape to the canonical form.
// An empty action with no explicit decision is a notification body click:
// that means "open the application", never a status change. Unrecognized
// literals are dropped rather than guessed.
func NormalizeDecision(src DecisionSource) (*Decision, string) {
	var status models.RequestStatus
	switch {
	case src.Decision == "approved" || src.Action == ActionApprove:
		status = models.StatusApproved
	case src.Decision == "rejected" || src.Action == ActionReject:
		status = models.StatusRejected
	case src.Decision == "" && src.Action == "":
		return nil, ReasonOpenApp
	default:
		return nil, ReasonUnrecognized
	}

	rawID := src.RequestID
	if rawID == "" {
		rawID = src.VisitorID
	}
	requestID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ReasonBadRequestID
	}

	actor := src.Actor
	if actor == "" {
		actor = "notification_action"
	}

	return &Decision{
		ResidencyID: src.ResidencyID,
		RequestID:   requestID,
		Status:      status,
		Actor:       actor,
	}, ""
}

// RelayResult reports what the relay did with a decision source
type RelayResult struct {
	Forwarded bool
	Reason    string
	Status    models.RequestStatus
	Request   *models.VisitorRequest
}

// DecisionRelay normalizes decision inputs and forwards them to the
// request status transition.
type DecisionRelay struct {
	requests repository.VisitorRequestRepository
	events   EventPublisher
	notifier VisitorNotifier
	logger   *logrus.Entry
}

// NewDecisionRelay creates a new decision relay. events and notifier are
// optional; the relay degrades to the status update alone without them.
func NewDecisionRelay(requests repository.VisitorRequestRepository, events EventPublisher, notifier VisitorNotifier) *DecisionRelay {
	return &DecisionRelay{
		requests: requests,
		events:   events,
		notifier: notifier,
		logger:   logrus.WithField("component", "decision_relay"),
	}
}

// Relay applies one decision source. The returned error covers datastore
// failures only; dropped or stale events come back as an unforwarded result.
func (r *DecisionRelay) Relay(ctx context.Context, src DecisionSource) (*RelayResult, error) {
	decision, reason := NormalizeDecision(src)
	if decision == nil {
		r.logger.WithFields(logrus.Fields{
			"action": src.Action,
			"reason": reason,
		}).Info("Decision event dropped")
		return &RelayResult{Reason: reason}, nil
	}

	log := r.logger.WithFields(logrus.Fields{
		"request_id": decision.RequestID,
		"status":     decision.Status,
		"actor":      decision.Actor,
	})

	// Soft approval-token verification: legacy notification payloads may
	// not carry one, but a wrong token is rejected outright.
	if src.ApprovalToken != "" && src.ApprovalToken != "legacy" {
		existing, err := r.requests.GetByID(ctx, decision.ResidencyID, decision.RequestID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ApprovalToken != "" && existing.ApprovalToken != src.ApprovalToken {
			log.Warn("Approval token mismatch, decision dropped")
			r.publish(ctx, decision, false)
			return &RelayResult{Reason: ReasonTokenMismatch}, nil
		}
	}

	request, err := r.requests.Decide(ctx, decision.ResidencyID, decision.RequestID, decision.Status, decision.Actor)
	if err != nil {
		if err == repository.ErrAlreadyDecided {
			log.Info("Decision skipped: request already decided")
			r.publish(ctx, decision, false)
			return &RelayResult{Reason: ReasonAlreadyDecided, Status: decision.Status}, nil
		}
		return nil, err
	}
	if request == nil {
		log.Warn("Decision skipped: request not found")
		r.publish(ctx, decision, false)
		return &RelayResult{Reason: ReasonNotFound, Status: decision.Status}, nil
	}

	log.Info("Visitor request decided")
	r.publish(ctx, decision, true)
	r.notifyVisitor(ctx, request)

	return &RelayResult{
		Forwarded: true,
		Status:    decision.Status,
		Request:   request,
	}, nil
}

func (r *DecisionRelay) publish(ctx context.Context, decision *Decision, success bool) {
	if r.events == nil {
		return
	}
	event := DecisionProcessedEvent{
		Kind:      "decision-processed",
		RequestID: decision.RequestID.String(),
		Status:    string(decision.Status),
		Success:   success,
	}
	if err := r.events.PublishDecisionProcessed(ctx, event); err != nil {
		r.logger.WithError(err).Warn("Failed to publish decision-processed event")
	}
}

func (r *DecisionRelay) notifyVisitor(ctx context.Context, request *models.VisitorRequest) {
	if r.notifier == nil || request.VisitorPhone == "" {
		return
	}
	if _, err := r.notifier.SendDecisionNotice(ctx, request.VisitorPhone, request.Status); err != nil {
		r.logger.WithError(err).Warn("Failed to send visitor decision SMS")
	}
}
