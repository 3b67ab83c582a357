package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gate-service/internal/models"
)

// DeliveryLogRepository records outbound push delivery attempts
type DeliveryLogRepository interface {
	Record(ctx context.Context, log *models.DeliveryLog) error
	ListByRequest(ctx context.Context, residencyID string, requestID uuid.UUID) ([]models.DeliveryLog, error)
}

type deliveryLogRepository struct {
	db *gorm.DB
}

// NewDeliveryLogRepository creates a new delivery log repository
func NewDeliveryLogRepository(db *gorm.DB) DeliveryLogRepository {
	return &deliveryLogRepository{db: db}
}

func (r *deliveryLogRepository) Record(ctx context.Context, log *models.DeliveryLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *deliveryLogRepository) ListByRequest(ctx context.Context, residencyID string, requestID uuid.UUID) ([]models.DeliveryLog, error) {
	var logs []models.DeliveryLog
	err := r.db.WithContext(ctx).
		Where("residency_id = ? AND request_id = ?", residencyID, requestID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}
