package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gate-service/internal/models"
	"gate-service/internal/repository"
	"gate-service/internal/services"
)

// VisitorHandler handles visitor request submission, lookup and decisions
type VisitorHandler struct {
	requests   repository.VisitorRequestRepository
	dispatcher *services.Dispatcher
	relay      *services.DecisionRelay
	logger     *logrus.Entry
}

// NewVisitorHandler creates a new visitor handler
func NewVisitorHandler(requests repository.VisitorRequestRepository, dispatcher *services.Dispatcher, relay *services.DecisionRelay) *VisitorHandler {
	return &VisitorHandler{
		requests:   requests,
		dispatcher: dispatcher,
		relay:      relay,
		logger:     logrus.WithField("component", "visitor_handler"),
	}
}

// SubmitRequest represents a visitor request submission
type SubmitRequest struct {
	ResidencyID   string `json:"residencyId"`
	VisitorName   string `json:"visitorName"`
	VisitorPhone  string `json:"visitorPhone"`
	FlatID        string `json:"flatId"`
	Purpose       string `json:"purpose"`
	VehicleNumber string `json:"vehicleNumber"`
}

// Submit creates a visitor request and triggers the notification dispatch.
// Dispatch failures never fail the submission; the guard swallows them.
func (h *VisitorHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ResidencyID == "" || req.VisitorName == "" || req.FlatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	request := &models.VisitorRequest{
		ID:            uuid.New(),
		ResidencyID:   req.ResidencyID,
		VisitorName:   req.VisitorName,
		VisitorPhone:  req.VisitorPhone,
		FlatID:        req.FlatID,
		Purpose:       req.Purpose,
		VehicleNumber: req.VehicleNumber,
		Status:        models.StatusPending,
		ApprovalToken: uuid.NewString(),
	}

	if err := h.requests.Create(c.Request.Context(), request); err != nil {
		h.logger.WithError(err).Error("Failed to create visitor request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create request"})
		return
	}

	h.dispatcher.Dispatch(c.Request.Context(), request.ResidencyID, request.ID)

	h.logger.WithFields(logrus.Fields{
		"request_id":   request.ID,
		"residency_id": request.ResidencyID,
	}).Info("Visitor request submitted")

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"requestId": request.ID,
	})
}

// Get returns current request state (foreground UI polling fallback)
func (h *VisitorHandler) Get(c *gin.Context) {
	residencyID := c.Query("residencyId")
	if residencyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing residencyId"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request id"})
		return
	}

	request, err := h.requests.GetByID(c.Request.Context(), residencyID, id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load visitor request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load request"})
		return
	}
	if request == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		return
	}

	c.JSON(http.StatusOK, request)
}

// DecisionRequest is the explicit API decision body. visitorId is the
// historical alias for requestId; both are accepted.
type DecisionRequest struct {
	VisitorID   string `json:"visitorId"`
	RequestID   string `json:"requestId"`
	ResidencyID string `json:"residencyId"`
	Decision    string `json:"decision"`
}

// Decide applies an approve/reject decision submitted as an API body
func (h *VisitorHandler) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if (req.VisitorID == "" && req.RequestID == "") || req.Decision == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing visitorId or decision"})
		return
	}

	result, err := h.relay.Relay(c.Request.Context(), services.DecisionSource{
		RequestID:   req.RequestID,
		VisitorID:   req.VisitorID,
		ResidencyID: req.ResidencyID,
		Decision:    req.Decision,
	})
	if err != nil {
		h.logger.WithError(err).Error("Decision relay failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process decision"})
		return
	}

	h.respondRelay(c, result)
}

// ActionRequest is the shape posted by notification reception handlers
// (service worker / background handler) when the user taps a button.
type ActionRequest struct {
	Action      string `json:"action"`
	RequestID   string `json:"requestId"`
	VisitorID   string `json:"visitorId"`
	ResidencyID string `json:"residencyId"`
	Token       string `json:"token"`
	Username    string `json:"username"`
}

// Action applies a notification action event. An empty action is a body
// click and means "open the application", not a decision.
func (h *VisitorHandler) Action(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.relay.Relay(c.Request.Context(), services.DecisionSource{
		RequestID:     req.RequestID,
		VisitorID:     req.VisitorID,
		ResidencyID:   req.ResidencyID,
		Action:        req.Action,
		ApprovalToken: req.Token,
		Actor:         req.Username,
	})
	if err != nil {
		h.logger.WithError(err).Error("Decision relay failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process action"})
		return
	}

	if result.Reason == services.ReasonOpenApp {
		c.JSON(http.StatusOK, gin.H{"success": true, "openApp": true})
		return
	}

	h.respondRelay(c, result)
}

func (h *VisitorHandler) respondRelay(c *gin.Context, result *services.RelayResult) {
	if result.Forwarded {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"status":  result.Status,
		})
		return
	}

	// Stale or dropped events are soft no-ops, not user errors
	c.JSON(http.StatusOK, gin.H{
		"success": false,
		"reason":  result.Reason,
	})
}
