package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"gate-service/internal/middleware"
	"gate-service/internal/models"
	"gate-service/internal/repository"
	"gate-service/internal/services"
)

// SendHandler handles direct notification sends: admin broadcasts to all
// residents of a residency, or targeted sends to one flat.
type SendHandler struct {
	resolver    *services.TokenResolver
	composer    *services.Composer
	push        services.PushSender
	directory   repository.DirectoryRepository
	deliveries  repository.DeliveryLogRepository
	rateLimiter *middleware.BroadcastRateLimiter
	logger      *logrus.Entry
}

// NewSendHandler creates a new send handler
func NewSendHandler(
	resolver *services.TokenResolver,
	composer *services.Composer,
	push services.PushSender,
	directory repository.DirectoryRepository,
	deliveries repository.DeliveryLogRepository,
) *SendHandler {
	return &SendHandler{
		resolver:   resolver,
		composer:   composer,
		push:       push,
		directory:  directory,
		deliveries: deliveries,
		logger:     logrus.WithField("component", "send_handler"),
	}
}

// SetRateLimiter sets the broadcast rate limiter (optional)
func (h *SendHandler) SetRateLimiter(limiter *middleware.BroadcastRateLimiter) {
	h.rateLimiter = limiter
}

// SendRequest represents a direct send request
type SendRequest struct {
	ResidencyID string            `json:"residencyId"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	TargetType  string            `json:"targetType"`
	TargetID    string            `json:"targetId"`
	Data        map[string]string `json:"data"`
}

// Send resolves target tokens and pushes the notification. Zero matching
// tokens is a successful send of nothing, not an error.
func (h *SendHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ResidencyID == "" || req.Title == "" || req.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: residencyId, title, body"})
		return
	}
	if req.TargetType == "" {
		req.TargetType = "residents"
	}
	if req.Data == nil {
		req.Data = map[string]string{}
	}

	if h.push == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Push provider not configured"})
		return
	}

	ctx := c.Request.Context()
	log := h.logger.WithFields(logrus.Fields{
		"residency_id": req.ResidencyID,
		"target_type":  req.TargetType,
	})

	var tokens []string
	switch req.TargetType {
	case "residents":
		if h.rateLimiter != nil {
			result, err := h.rateLimiter.CheckLimit(ctx, req.ResidencyID)
			if err != nil {
				log.WithError(err).Warn("Rate limit check failed, allowing send")
			} else if !result.Allowed {
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":      "Broadcast rate limit exceeded",
					"limitType":  result.LimitType,
					"retryAfter": result.RetryAfterSec,
				})
				return
			}
		}
		tokens = h.resolver.ResolveBroadcast(ctx, req.ResidencyID)
	case "specific_flat":
		if req.TargetID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing targetId for specific_flat"})
			return
		}
		tokens = h.resolver.ResolveFlat(ctx, req.ResidencyID, req.TargetID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown targetType"})
		return
	}

	if len(tokens) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"sentCount": 0,
			"message":   "No residents found with valid device tokens",
		})
		return
	}

	log.WithField("devices", len(tokens)).Info("Sending notification")

	// Visitor requests go out as individual action notifications; plain
	// sends go out as one multicast.
	if req.Data["actionType"] == "VISITOR_REQUEST" && req.TargetType == "specific_flat" {
		h.sendIndividual(c, req, tokens)
		return
	}

	payload := h.composer.ComposeBroadcast(services.BroadcastInput{
		Title:  req.Title,
		Body:   req.Body,
		Data:   req.Data,
		Tokens: tokens,
	})

	result, err := h.push.SendMulticast(ctx, payload)
	if err != nil {
		log.WithError(err).Error("Multicast send failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to send notification"})
		return
	}

	// Drop tokens the provider rejected
	for _, token := range result.FailedTokens {
		if err := h.directory.ClearToken(ctx, req.ResidencyID, token); err != nil {
			log.WithError(err).Warn("Failed to clear invalid token")
		}
	}

	if h.rateLimiter != nil && req.TargetType == "residents" {
		if err := h.rateLimiter.RecordSend(ctx, req.ResidencyID); err != nil {
			log.WithError(err).Warn("Failed to record broadcast for rate limiting")
		}
	}

	h.recordDelivery(c, req, payload.Tag, len(tokens), result.SuccessCount, result.FailureCount)

	log.WithFields(logrus.Fields{
		"sent":   result.SuccessCount,
		"failed": result.FailureCount,
	}).Info("Notification sent")

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"sentCount":    result.SuccessCount,
		"failureCount": result.FailureCount,
	})
}

// sendIndividual issues one action notification per token concurrently and
// reports the settled counts; individual failures never abort the batch.
func (h *SendHandler) sendIndividual(c *gin.Context, req SendRequest, tokens []string) {
	ctx := c.Request.Context()
	payloads := h.composer.ComposeActionSend(req.Title, req.Body, req.Data, tokens)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		sent, failed int
		failedTokens []string
	)
	for _, payload := range payloads {
		wg.Add(1)
		go func(p *services.PushPayload) {
			defer wg.Done()
			_, err := h.push.Send(ctx, p)
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

	for _, token := range failedTokens {
		if err := h.directory.ClearToken(ctx, req.ResidencyID, token); err != nil {
			h.logger.WithError(err).Warn("Failed to clear invalid token")
		}
	}

	tag := ""
	if len(payloads) > 0 {
		tag = payloads[0].Tag
	}
	h.recordDelivery(c, req, tag, len(tokens), sent, failed)

	h.logger.WithFields(logrus.Fields{
		"sent":   sent,
		"failed": failed,
	}).Info("Visitor notifications sent")

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"sentCount":    sent,
		"failureCount": failed,
	})
}

func (h *SendHandler) recordDelivery(c *gin.Context, req SendRequest, tag string, tokenCount, sent, failed int) {
	kind := services.KindBroadcast
	if req.Data["actionType"] == "VISITOR_REQUEST" {
		kind = services.KindActionRequest
	}

	var requestID *uuid.UUID
	if raw := req.Data["visitorId"]; raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			requestID = &parsed
		}
	}

	data, _ := json.Marshal(req.Data)
	entry := &models.DeliveryLog{
		ResidencyID: req.ResidencyID,
		RequestID:   requestID,
		Kind:        string(kind),
		Tag:         tag,
		Title:       req.Title,
		Body:        req.Body,
		TokenCount:  tokenCount,
		SentCount:   sent,
		FailedCount: failed,
		Data:        datatypes.JSON(data),
	}
	if err := h.deliveries.Record(c.Request.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("Failed to record delivery log")
	}
}
