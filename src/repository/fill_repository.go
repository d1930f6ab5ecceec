package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"investpipeline/src/database"
	"investpipeline/src/model"
)

// FillRepository handles purchase fill records. A fill is created
// exactly once per mapping (unique index on mapping_id) and is
// immutable thereafter.
type FillRepository struct {
	db *gorm.DB
}

// NewFillRepository creates a new repository instance using the main read/write database.
func NewFillRepository() *FillRepository {
	logger.WithField("component", "FillRepository").
		Info("Creating new FillRepository with MainDB")

	return &FillRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *FillRepository) WithDB(db *gorm.DB) *FillRepository {
	return &FillRepository{db: db}
}

// Create inserts a fill. Returns gorm.ErrDuplicatedKey when a fill
// already exists for the mapping, which callers treat as "fetch the
// existing one" rather than a failure.
func (r *FillRepository) Create(
	ctx context.Context,
	fill *model.PurchaseFill,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":         "FillRepository",
		"op":           "Create",
		"mapping_id":   fill.MappingID,
		"ticker":       fill.Ticker,
		"execution_id": fill.ExecutionID,
	}).Debug("Creating purchase fill")

	err := r.db.WithContext(ctx).Create(fill).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.WithFields(map[string]interface{}{
				"repo":       "FillRepository",
				"op":         "Create",
				"mapping_id": fill.MappingID,
			}).Warn("Fill already exists for mapping")

			return err
		}

		logger.WithFields(map[string]interface{}{
			"repo":       "FillRepository",
			"op":         "Create",
			"mapping_id": fill.MappingID,
		}).WithError(err).Error("Failed to create purchase fill")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "FillRepository",
		"op":         "Create",
		"fill_id":    fill.ID,
		"mapping_id": fill.MappingID,
	}).Info("Purchase fill created")

	return nil
}

// FindByMapping fetches the fill for a mapping.
// Returns (nil, nil) if no fill exists.
func (r *FillRepository) FindByMapping(
	ctx context.Context,
	mappingID uint,
) (*model.PurchaseFill, error) {

	var fill model.PurchaseFill

	err := r.db.WithContext(ctx).
		Where("mapping_id = ?", mappingID).
		First(&fill).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":       "FillRepository",
			"op":         "FindByMapping",
			"mapping_id": mappingID,
		}).WithError(err).Error("Failed to fetch purchase fill")

		return nil, err
	}

	return &fill, nil
}

// FindUnposted returns fills whose mapping has not yet flipped to
// invested, meaning the journal entry was never posted. This is the
// crash-recovery scan input: post, never re-invest.
func (r *FillRepository) FindUnposted(
	ctx context.Context,
	limit int,
) ([]model.PurchaseFill, error) {

	if limit <= 0 {
		limit = 100
	}

	var fills []model.PurchaseFill

	err := r.db.WithContext(ctx).
		Joins("JOIN mappings ON mappings.id = purchase_fills.mapping_id").
		Where("mappings.status <> ?", model.MappingStatusInvested).
		Order("purchase_fills.id ASC").
		Limit(limit).
		Find(&fills).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "FillRepository",
			"op":    "FindUnposted",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch unposted fills")

		return nil, err
	}

	if len(fills) > 0 {
		logger.WithFields(map[string]interface{}{
			"repo":        "FillRepository",
			"op":          "FindUnposted",
			"rows_return": len(fills),
		}).Warn("Found fills without posted journal entries")
	}

	return fills, nil
}
