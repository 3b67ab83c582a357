package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gate-service/internal/repository"
)

// TokenHandler handles device token registration for residents
type TokenHandler struct {
	directory repository.DirectoryRepository
	logger    *logrus.Entry
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(directory repository.DirectoryRepository) *TokenHandler {
	return &TokenHandler{
		directory: directory,
		logger:    logrus.WithField("component", "token_handler"),
	}
}

// RegisterTokenRequest represents a device token registration
type RegisterTokenRequest struct {
	ResidencyID string `json:"residencyId"`
	Token       string `json:"token"`
}

// Register stores the resident's active device token. A new token replaces
// the previous one; one active device per resident.
func (h *TokenHandler) Register(c *gin.Context) {
	residentID := c.Param("residentId")

	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ResidencyID == "" || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing residencyId or token"})
		return
	}

	err := h.directory.SaveToken(c.Request.Context(), req.ResidencyID, residentID, req.Token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Resident not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to save device token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save token"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"residency_id": req.ResidencyID,
		"resident_id":  residentID,
	}).Info("Device token registered")

	c.JSON(http.StatusOK, gin.H{"success": true})
}
