package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"gate-service/internal/models"
)

// DirectoryRepository is the token directory: it maps (residency, resident
// identity) to device push tokens, including the legacy lookup paths by
// denormalized block/flat names.
type DirectoryRepository interface {
	// FindByFlatID matches residents linked to a unit via the canonical
	// flat_id field.
	FindByFlatID(ctx context.Context, residencyID, flatID string) ([]models.Resident, error)

	// FindByFlatNumber matches residents linked via the legacy free-text
	// flat number. Block-name matching over the result is the resolver's
	// concern, since stored names need normalization first.
	FindByFlatNumber(ctx context.Context, residencyID, flatNumber string) ([]models.Resident, error)

	// ListWithTokens streams every resident of the residency that carries
	// a token (broadcast targeting).
	ListWithTokens(ctx context.Context, residencyID string) ([]models.Resident, error)

	GetFlat(ctx context.Context, residencyID, flatID string) (*models.Flat, error)
	GetBlock(ctx context.Context, residencyID, blockID string) (*models.Block, error)

	// SaveToken stores the resident's active device token, overwriting any
	// previous one (last-write-wins, no token history).
	SaveToken(ctx context.Context, residencyID, residentID, token string) error

	// ClearToken drops a token that the push provider reported as invalid,
	// wherever it is stored within the residency.
	ClearToken(ctx context.Context, residencyID, token string) error
}

type directoryRepository struct {
	db *gorm.DB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *gorm.DB) DirectoryRepository {
	return &directoryRepository{db: db}
}

func (r *directoryRepository) FindByFlatID(ctx context.Context, residencyID, flatID string) ([]models.Resident, error) {
	var residents []models.Resident
	err := r.db.WithContext(ctx).
		Where("residency_id = ? AND flat_id = ?", residencyID, flatID).
		Find(&residents).Error
	return residents, err
}

func (r *directoryRepository) FindByFlatNumber(ctx context.Context, residencyID, flatNumber string) ([]models.Resident, error) {
	var residents []models.Resident
	err := r.db.WithContext(ctx).
		Where("residency_id = ? AND flat = ?", residencyID, flatNumber).
		Find(&residents).Error
	return residents, err
}

func (r *directoryRepository) ListWithTokens(ctx context.Context, residencyID string) ([]models.Resident, error) {
	var residents []models.Resident
	err := r.db.WithContext(ctx).
		Where("residency_id = ? AND fcm_token <> ''", residencyID).
		Find(&residents).Error
	return residents, err
}

func (r *directoryRepository) GetFlat(ctx context.Context, residencyID, flatID string) (*models.Flat, error) {
	var flat models.Flat
	err := r.db.WithContext(ctx).
		Where("id = ? AND residency_id = ?", flatID, residencyID).
		First(&flat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &flat, nil
}

func (r *directoryRepository) GetBlock(ctx context.Context, residencyID, blockID string) (*models.Block, error) {
	var block models.Block
	err := r.db.WithContext(ctx).
		Where("id = ? AND residency_id = ?", blockID, residencyID).
		First(&block).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &block, nil
}

func (r *directoryRepository) SaveToken(ctx context.Context, residencyID, residentID, token string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Resident{}).
		Where("id = ? AND residency_id = ?", residentID, residencyID).
		Update("fcm_token", token)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *directoryRepository) ClearToken(ctx context.Context, residencyID, token string) error {
	return r.db.WithContext(ctx).
		Model(&models.Resident{}).
		Where("residency_id = ? AND fcm_token = ?", residencyID, token).
		Update("fcm_token", "").Error
}
