package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"investpipeline/src/database"
	"investpipeline/src/model"
)

// TransactionRepository reads upstream bank-card transactions. The
// pipeline never mutates their own fields; the only write-back is the
// resolved mapping reference once investing is complete.
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new repository instance using the main read/write database.
func NewTransactionRepository() *TransactionRepository {
	logger.WithField("component", "TransactionRepository").
		Info("Creating new TransactionRepository with MainDB")

	return &TransactionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TransactionRepository) WithDB(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// FindByID fetches a single transaction.
// Returns (nil, nil) if not found.
func (r *TransactionRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Transaction, error) {

	var txn model.Transaction

	err := r.db.WithContext(ctx).First(&txn, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "TransactionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch transaction")

		return nil, err
	}

	return &txn, nil
}

// FindWithoutMapping returns transactions that have no mapping yet,
// oldest first. These are the entry point of the pipeline.
func (r *TransactionRepository) FindWithoutMapping(
	ctx context.Context,
	limit int,
) ([]model.Transaction, error) {

	if limit <= 0 {
		limit = 100
	}

	var txns []model.Transaction

	err := r.db.WithContext(ctx).
		Joins("LEFT JOIN mappings ON mappings.transaction_id = transactions.id").
		Where("mappings.id IS NULL").
		Order("transactions.id ASC").
		Limit(limit).
		Find(&txns).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "TransactionRepository",
			"op":    "FindWithoutMapping",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch unmapped transactions")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "TransactionRepository",
		"op":          "FindWithoutMapping",
		"rows_return": len(txns),
	}).Debug("Unmapped transactions fetched")

	return txns, nil
}

// MarkInvested writes the mapping reference and invested flag back to
// the transaction. Called inside the ledger posting transaction so the
// write-back is atomic with the mapping flip.
func (r *TransactionRepository) MarkInvested(
	ctx context.Context,
	tx *gorm.DB,
	transactionID uint,
	mappingID uint,
) error {

	db := r.db
	if tx != nil {
		db = tx
	}

	err := db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", transactionID).
		Updates(map[string]interface{}{
			"mapping_id": mappingID,
			"invested":   true,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":           "TransactionRepository",
			"op":             "MarkInvested",
			"transaction_id": transactionID,
			"mapping_id":     mappingID,
		}).WithError(err).Error("Failed to mark transaction invested")

		return err
	}

	return nil
}
