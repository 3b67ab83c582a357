package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gate-service/internal/models"
)

// ErrAlreadyDecided is returned when a decision targets a request that has
// already left the pending state.
var ErrAlreadyDecided = errors.New("request already decided")

// ClaimOutcome describes the result of a notification claim
type ClaimOutcome string

const (
	ClaimGranted     ClaimOutcome = "granted"
	ClaimNotFound    ClaimOutcome = "not_found"
	ClaimNotPending  ClaimOutcome = "not_pending"
	ClaimAlreadySent ClaimOutcome = "already_sent"
)

// NotificationClaim is the result of the transactional send-once gate.
// Request is populated only when the claim is granted.
type NotificationClaim struct {
	Outcome ClaimOutcome
	Request *models.VisitorRequest
}

// VisitorRequestRepository handles visitor request database operations
type VisitorRequestRepository interface {
	Create(ctx context.Context, request *models.VisitorRequest) error
	GetByID(ctx context.Context, residencyID string, id uuid.UUID) (*models.VisitorRequest, error)

	// ClaimNotification atomically loads the request, verifies it is still
	// pending and unsent, and flips notification_sent to true, all under a
	// row lock. At most one concurrent caller ever receives ClaimGranted
	// for a given request; everyone else gets the skip reason.
	ClaimNotification(ctx context.Context, residencyID string, id uuid.UUID) (*NotificationClaim, error)

	// Decide transitions a pending request to approved/rejected. Returns
	// ErrAlreadyDecided when the request has already been decided and
	// (nil, nil) when the request does not exist.
	Decide(ctx context.Context, residencyID string, id uuid.UUID, status models.RequestStatus, actor string) (*models.VisitorRequest, error)
}

type visitorRequestRepository struct {
	db *gorm.DB
}

// NewVisitorRequestRepository creates a new visitor request repository
func NewVisitorRequestRepository(db *gorm.DB) VisitorRequestRepository {
	return &visitorRequestRepository{db: db}
}

func (r *visitorRequestRepository) Create(ctx context.Context, request *models.VisitorRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *visitorRequestRepository) GetByID(ctx context.Context, residencyID string, id uuid.UUID) (*models.VisitorRequest, error) {
	var request models.VisitorRequest
	err := r.db.WithContext(ctx).
		Where("id = ? AND residency_id = ?", id, residencyID).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *visitorRequestRepository) ClaimNotification(ctx context.Context, residencyID string, id uuid.UUID) (*NotificationClaim, error) {
	claim := &NotificationClaim{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request models.VisitorRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND residency_id = ?", id, residencyID).
			First(&request).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				claim.Outcome = ClaimNotFound
				return nil
			}
			return err
		}

		if request.Status != models.StatusPending {
			claim.Outcome = ClaimNotPending
			return nil
		}
		if request.NotificationSent {
			claim.Outcome = ClaimAlreadySent
			return nil
		}

		// Mark as sent before any external effect; the flag commits with
		// the pending check in the same transaction.
		if err := tx.Model(&models.VisitorRequest{}).
			Where("id = ?", request.ID).
			Updates(map[string]interface{}{
				"notification_sent": true,
				"updated_at":        time.Now(),
			}).Error; err != nil {
			return err
		}

		request.NotificationSent = true
		claim.Outcome = ClaimGranted
		claim.Request = &request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

func (r *visitorRequestRepository) Decide(ctx context.Context, residencyID string, id uuid.UUID, status models.RequestStatus, actor string) (*models.VisitorRequest, error) {
	var decided *models.VisitorRequest

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request models.VisitorRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND residency_id = ?", id, residencyID).
			First(&request).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if request.Status != models.StatusPending {
			return ErrAlreadyDecided
		}

		request.Decide(status, actor)
		if err := tx.Model(&models.VisitorRequest{}).
			Where("id = ?", request.ID).
			Updates(map[string]interface{}{
				"status":     request.Status,
				"decided_by": request.DecidedBy,
				"decided_at": request.DecidedAt,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}

		decided = &request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}
