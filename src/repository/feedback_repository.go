package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"investpipeline/src/database"
	"investpipeline/src/model"
)

// FeedbackRepository stores human verdicts on past classifications.
// Feedback is append-only and deliberately has no FK to mappings so it
// survives any future mapping cleanup for learning purposes.
type FeedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository creates a new repository instance using the main read/write database.
func NewFeedbackRepository() *FeedbackRepository {
	logger.WithField("component", "FeedbackRepository").
		Info("Creating new FeedbackRepository with MainDB")

	return &FeedbackRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *FeedbackRepository) WithDB(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Create appends a feedback record.
func (r *FeedbackRepository) Create(
	ctx context.Context,
	record *model.FeedbackRecord,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "FeedbackRepository",
		"op":         "Create",
		"mapping_id": record.MappingID,
		"attempt_id": record.AttemptID,
		"correct":    record.ClassifierCorrect,
	}).Debug("Appending feedback record")

	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "FeedbackRepository",
			"op":         "Create",
			"mapping_id": record.MappingID,
		}).WithError(err).Error("Failed to append feedback record")

		return err
	}

	return nil
}

// FindByMapping returns all feedback recorded against a mapping.
func (r *FeedbackRepository) FindByMapping(
	ctx context.Context,
	mappingID uint,
) ([]model.FeedbackRecord, error) {

	var records []model.FeedbackRecord

	err := r.db.WithContext(ctx).
		Where("mapping_id = ?", mappingID).
		Order("id ASC").
		Find(&records).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "FeedbackRepository",
			"op":         "FindByMapping",
			"mapping_id": mappingID,
		}).WithError(err).Error("Failed to fetch feedback records")

		return nil, err
	}

	return records, nil
}
