package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"gate-service/internal/models"
	"gate-service/internal/repository"
)

// Dispatcher is the exactly-once notification gate for visitor requests.
// Dispatch is fire-and-forget from the submission flow's perspective: it
// never returns an error, and a send that fails after the sent flag commits
// is logged, not retried. At most once beats duplicate pushes here.
type Dispatcher struct {
	requests   repository.VisitorRequestRepository
	directory  repository.DirectoryRepository
	deliveries repository.DeliveryLogRepository
	resolver   *TokenResolver
	composer   *Composer
	push       PushSender
	logger     *logrus.Entry
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(
	requests repository.VisitorRequestRepository,
	directory repository.DirectoryRepository,
	deliveries repository.DeliveryLogRepository,
	resolver *TokenResolver,
	composer *Composer,
	push PushSender,
) *Dispatcher {
	return &Dispatcher{
		requests:   requests,
		directory:  directory,
		deliveries: deliveries,
		resolver:   resolver,
		composer:   composer,
		push:       push,
		logger:     logrus.WithField("component", "dispatcher"),
	}
}

// Dispatch notifies the resident devices for one visitor request. However
// many times it is invoked for the same request, concurrently or not, at
// most one invocation passes the claim and sends.
func (d *Dispatcher) Dispatch(ctx context.Context, residencyID string, requestID uuid.UUID) {
	log := d.logger.WithFields(logrus.Fields{
		"residency_id": residencyID,
		"request_id":   requestID,
	})

	claim, err := d.requests.ClaimNotification(ctx, residencyID, requestID)
	if err != nil {
		log.WithError(err).Error("Notification claim failed")
		return
	}

	switch claim.Outcome {
	case repository.ClaimNotFound:
		log.Warn("Skipped: request not found")
		return
	case repository.ClaimNotPending:
		log.Info("Skipped: request is not pending")
		return
	case repository.ClaimAlreadySent:
		log.Info("Skipped: notification already sent")
		return
	}

	request := claim.Request

	if d.push == nil {
		log.Warn("No push provider configured, notification dropped")
		return
	}

	tokens := d.resolver.ResolveFlat(ctx, residencyID, request.FlatID)
	if len(tokens) == 0 {
		log.Info("No tokens found for request")
		return
	}

	log.WithField("devices", len(tokens)).Info("Sending visitor request notification")

	payloads := d.composer.ComposeActionRequest(request, tokens)

	// Independent per-token sends run concurrently; individual failures
	// never abort the batch.
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		sent, failed int
		failedTokens []string
	)
	for _, payload := range payloads {
		wg.Add(1)
		go func(p *PushPayload) {
			defer wg.Done()
			_, err := d.push.Send(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				failedTokens = append(failedTokens, p.Token)
			} else {
				sent++
			}
		}(payload)
	}
	wg.Wait()

	log.WithFields(logrus.Fields{
		"sent":   sent,
		"failed": failed,
	}).Info("Visitor notifications sent")

	// Drop tokens the provider rejected so they are not attempted again
	for _, token := range failedTokens {
		if err := d.directory.ClearToken(ctx, residencyID, token); err != nil {
			log.WithError(err).Warn("Failed to clear invalid token")
		}
	}

	d.recordDelivery(ctx, request, len(tokens), sent, failed)
}

func (d *Dispatcher) recordDelivery(ctx context.Context, request *models.VisitorRequest, tokenCount, sent, failed int) {
	data, _ := json.Marshal(map[string]string{
		"visitorName": request.VisitorName,
		"flatId":      request.FlatID,
	})

	requestID := request.ID
	entry := &models.DeliveryLog{
		ResidencyID: request.ResidencyID,
		RequestID:   &requestID,
		Kind:        string(KindActionRequest),
		Tag:         RequestTag(request.ID.String()),
		Title:       "New Visitor Request",
		Body:        request.VisitorName + " wants to visit",
		TokenCount:  tokenCount,
		SentCount:   sent,
		FailedCount: failed,
		Data:        datatypes.JSON(data),
	}
	if err := d.deliveries.Record(ctx, entry); err != nil {
		d.logger.WithError(err).Warn("Failed to record delivery log")
	}
}
