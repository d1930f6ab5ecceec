package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"investpipeline/src/database"
	"investpipeline/src/model"
)

// JournalRepository handles journal entries. It is only ever used by
// the ledger poster, which owns the balance invariant; nothing else
// writes to journal_entries or journal_lines.
type JournalRepository struct {
	db *gorm.DB
}

// NewJournalRepository creates a new repository instance using the main read/write database.
func NewJournalRepository() *JournalRepository {
	logger.WithField("component", "JournalRepository").
		Info("Creating new JournalRepository with MainDB")

	return &JournalRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *JournalRepository) WithDB(db *gorm.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// Create inserts an entry with its lines in the caller's transaction
// scope when tx is non-nil, otherwise on the repository connection.
func (r *JournalRepository) Create(
	ctx context.Context,
	tx *gorm.DB,
	entry *model.JournalEntry,
) error {

	db := r.db
	if tx != nil {
		db = tx
	}

	err := db.WithContext(ctx).Create(entry).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "JournalRepository",
			"op":        "Create",
			"reference": entry.ReferenceCode,
		}).WithError(err).Error("Failed to create journal entry")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "JournalRepository",
		"op":        "Create",
		"entry_id":  entry.ID,
		"reference": entry.ReferenceCode,
		"status":    entry.Status,
	}).Info("Journal entry created")

	return nil
}

// FindByReference fetches an entry with its lines by reference code.
// Returns (nil, nil) if not found.
func (r *JournalRepository) FindByReference(
	ctx context.Context,
	reference string,
) (*model.JournalEntry, error) {

	var entry model.JournalEntry

	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("reference_code = ?", reference).
		First(&entry).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "JournalRepository",
			"op":        "FindByReference",
			"reference": reference,
		}).WithError(err).Error("Failed to fetch journal entry")

		return nil, err
	}

	return &entry, nil
}

// ListPosted returns posted entries, newest first, for the read-only
// accounting surface.
func (r *JournalRepository) ListPosted(
	ctx context.Context,
	limit int,
) ([]model.JournalEntry, error) {

	if limit <= 0 {
		limit = 50
	}

	var entries []model.JournalEntry

	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("status = ?", model.JournalStatusPosted).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "JournalRepository",
			"op":    "ListPosted",
			"limit": limit,
		}).WithError(err).Error("Failed to list posted journal entries")

		return nil, err
	}

	return entries, nil
}
