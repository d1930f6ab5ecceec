package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"investpipeline/src/database"
	"investpipeline/src/model"
)

// AttemptRepository handles the append-only classification attempt log.
// Rows are never updated or deleted once written.
type AttemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository creates a new repository instance using the main read/write database.
func NewAttemptRepository() *AttemptRepository {
	logger.WithField("component", "AttemptRepository").
		Info("Creating new AttemptRepository with MainDB")

	return &AttemptRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *AttemptRepository) WithDB(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create appends a classification attempt.
func (r *AttemptRepository) Create(
	ctx context.Context,
	attempt *model.ClassificationAttempt,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "AttemptRepository",
		"op":         "Create",
		"mapping_id": attempt.MappingID,
		"is_error":   attempt.IsError,
		"latency_ms": attempt.LatencyMs,
	}).Debug("Appending classification attempt")

	err := r.db.WithContext(ctx).Create(attempt).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "AttemptRepository",
			"op":         "Create",
			"mapping_id": attempt.MappingID,
		}).WithError(err).Error("Failed to append classification attempt")

		return err
	}

	return nil
}

// FindByMapping returns all attempts for a mapping, oldest first.
func (r *AttemptRepository) FindByMapping(
	ctx context.Context,
	mappingID uint,
) ([]model.ClassificationAttempt, error) {

	var attempts []model.ClassificationAttempt

	err := r.db.WithContext(ctx).
		Where("mapping_id = ?", mappingID).
		Order("id ASC").
		Find(&attempts).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "AttemptRepository",
			"op":         "FindByMapping",
			"mapping_id": mappingID,
		}).WithError(err).Error("Failed to fetch classification attempts")

		return nil, err
	}

	return attempts, nil
}

// FindLatestByMapping returns the most recent attempt for a mapping.
// When attempts disagree, the latest one is authoritative.
// Returns (nil, nil) if no attempt exists yet.
func (r *AttemptRepository) FindLatestByMapping(
	ctx context.Context,
	mappingID uint,
) (*model.ClassificationAttempt, error) {

	var attempt model.ClassificationAttempt

	err := r.db.WithContext(ctx).
		Where("mapping_id = ?", mappingID).
		Order("id DESC").
		First(&attempt).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":       "AttemptRepository",
			"op":         "FindLatestByMapping",
			"mapping_id": mappingID,
		}).WithError(err).Error("Failed to fetch latest classification attempt")

		return nil, err
	}

	return &attempt, nil
}
