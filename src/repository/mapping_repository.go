package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"investpipeline/src/database"
	"investpipeline/src/model"
)

// ErrStatusConflict is returned when a guarded status update matched no
// row: either another worker already claimed the mapping or the mapping
// is no longer in the expected state.
var ErrStatusConflict = errors.New("mapping status conflict")

// ErrIllegalTransition is returned when the requested transition is not
// an edge of the state machine.
var ErrIllegalTransition = errors.New("illegal mapping status transition")

// MappingRepository is the single owner of the mappings table. No other
// code path writes to it directly.
type MappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository creates a new repository instance using the main read/write database.
func NewMappingRepository() *MappingRepository {
	logger.WithField("component", "MappingRepository").
		Info("Creating new MappingRepository with MainDB")

	return &MappingRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *MappingRepository) WithDB(db *gorm.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Create inserts a new mapping. The unique index on transaction_id
// guarantees at most one active mapping per transaction.
func (r *MappingRepository) Create(
	ctx context.Context,
	mapping *model.Mapping,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":           "MappingRepository",
		"op":             "Create",
		"transaction_id": mapping.TransactionID,
		"merchant":       mapping.MerchantName,
		"source":         mapping.Source,
	}).Debug("Creating new mapping")

	err := r.db.WithContext(ctx).Create(mapping).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":           "MappingRepository",
			"op":             "Create",
			"transaction_id": mapping.TransactionID,
		}).WithError(err).Error("Failed to create mapping")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "MappingRepository",
		"op":         "Create",
		"mapping_id": mapping.ID,
	}).Info("Mapping created successfully")

	return nil
}

// FindByID fetches a single mapping with its classification attempts.
// Returns (nil, nil) if the mapping is not found.
func (r *MappingRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Mapping, error) {

	var mapping model.Mapping

	err := r.db.WithContext(ctx).
		Preload("Attempts").
		First(&mapping, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "MappingRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Mapping not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "MappingRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch mapping by ID")

		return nil, err
	}

	return &mapping, nil
}

// FindByTransactionID fetches the mapping owned by a transaction.
// Returns (nil, nil) if the mapping is not found.
func (r *MappingRepository) FindByTransactionID(
	ctx context.Context,
	transactionID uint,
) (*model.Mapping, error) {

	var mapping model.Mapping

	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&mapping).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":           "MappingRepository",
			"op":             "FindByTransactionID",
			"transaction_id": transactionID,
		}).WithError(err).Error("Failed to fetch mapping by transaction ID")

		return nil, err
	}

	return &mapping, nil
}

// FindBatchByStatus returns a bounded batch of mappings in the given
// status, oldest first so no mapping starves.
func (r *MappingRepository) FindBatchByStatus(
	ctx context.Context,
	status string,
	limit int,
) ([]model.Mapping, error) {

	if limit <= 0 {
		limit = 50 // default safety limit
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "MappingRepository",
		"op":     "FindBatchByStatus",
		"status": status,
		"limit":  limit,
	}).Debug("Fetching mapping batch by status")

	var mappings []model.Mapping

	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&mappings).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "MappingRepository",
			"op":     "FindBatchByStatus",
			"status": status,
			"limit":  limit,
		}).WithError(err).Error("Failed to fetch mapping batch")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "MappingRepository",
		"op":          "FindBatchByStatus",
		"status":      status,
		"rows_return": len(mappings),
	}).Info("Mapping batch fetched")

	return mappings, nil
}

// FindApprovedWithoutFill returns approved mappings that have no
// purchase fill yet. These are the candidates for the next investment
// pass.
func (r *MappingRepository) FindApprovedWithoutFill(
	ctx context.Context,
	limit int,
) ([]model.Mapping, error) {

	if limit <= 0 {
		limit = 50
	}

	var mappings []model.Mapping

	err := r.db.WithContext(ctx).
		Joins("LEFT JOIN purchase_fills ON purchase_fills.mapping_id = mappings.id").
		Where("mappings.status = ? AND purchase_fills.id IS NULL", model.MappingStatusApproved).
		Order("mappings.id ASC").
		Limit(limit).
		Find(&mappings).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "MappingRepository",
			"op":    "FindApprovedWithoutFill",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch approved mappings without fill")

		return nil, err
	}

	return mappings, nil
}

// ClaimForClassification atomically moves a mapping from unclassified to
// pending_classification. Returns false when another worker won the
// claim. This guarded write is the sole hard concurrency requirement of
// the pipeline.
func (r *MappingRepository) ClaimForClassification(
	ctx context.Context,
	id uint,
) (bool, error) {

	res := r.db.WithContext(ctx).
		Model(&model.Mapping{}).
		Where("id = ? AND status = ?", id, model.MappingStatusUnclassified).
		Update("status", model.MappingStatusPendingClassification)

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "MappingRepository",
			"op":   "ClaimForClassification",
			"id":   id,
		}).WithError(res.Error).Error("Failed to claim mapping")

		return false, res.Error
	}

	claimed := res.RowsAffected == 1

	logger.WithFields(map[string]interface{}{
		"repo":    "MappingRepository",
		"op":      "ClaimForClassification",
		"id":      id,
		"claimed": claimed,
	}).Debug("Mapping claim attempted")

	return claimed, nil
}

// FindStaleClaims returns pending_classification mappings whose claim
// is older than the cutoff. A worker that died after claiming leaves
// its mapping here; the scheduler's recovery step picks these up so a
// claim is a lease, not a lock.
func (r *MappingRepository) FindStaleClaims(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]model.Mapping, error) {

	if limit <= 0 {
		limit = 50
	}

	var mappings []model.Mapping

	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.MappingStatusPendingClassification, cutoff).
		Order("id ASC").
		Limit(limit).
		Find(&mappings).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "MappingRepository",
			"op":     "FindStaleClaims",
			"cutoff": cutoff,
			"limit":  limit,
		}).WithError(err).Error("Failed to fetch stale classification claims")

		return nil, err
	}

	if len(mappings) > 0 {
		logger.WithFields(map[string]interface{}{
			"repo":        "MappingRepository",
			"op":          "FindStaleClaims",
			"rows_return": len(mappings),
		}).Warn("Found stale classification claims")
	}

	return mappings, nil
}

// TransitionStatus performs a guarded state machine transition. The
// update only matches when the mapping is still in the expected `from`
// status, so concurrent workers cannot double-apply a transition and a
// terminal mapping can never move backward.
func (r *MappingRepository) TransitionStatus(
	ctx context.Context,
	id uint,
	from, to string,
	reason string,
) error {

	if !model.CanTransition(from, to) {
		logger.WithFields(map[string]interface{}{
			"repo": "MappingRepository",
			"op":   "TransitionStatus",
			"id":   id,
			"from": from,
			"to":   to,
		}).Error("Illegal mapping transition requested")

		return ErrIllegalTransition
	}

	res := r.db.WithContext(ctx).
		Model(&model.Mapping{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":        to,
			"status_reason": reason,
		})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "MappingRepository",
			"op":   "TransitionStatus",
			"id":   id,
			"from": from,
			"to":   to,
		}).WithError(res.Error).Error("Failed to transition mapping status")

		return res.Error
	}

	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "MappingRepository",
		"op":     "TransitionStatus",
		"id":     id,
		"from":   from,
		"to":     to,
		"reason": reason,
	}).Info("Mapping status transitioned")

	return nil
}

// UpdateClassification stores the classifier result on the mapping.
// Confidence is only ever written here or via an admin override.
func (r *MappingRepository) UpdateClassification(
	ctx context.Context,
	id uint,
	ticker, companyName, category string,
	confidence float64,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Mapping{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"ticker":       ticker,
			"company_name": companyName,
			"category":     category,
			"confidence":   confidence,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "MappingRepository",
			"op":     "UpdateClassification",
			"id":     id,
			"ticker": ticker,
		}).WithError(err).Error("Failed to update mapping classification")

		return err
	}

	return nil
}

// IncrementClassifyAttempts bumps the classification attempt counter.
func (r *MappingRepository) IncrementClassifyAttempts(
	ctx context.Context,
	id uint,
) error {

	return r.db.WithContext(ctx).
		Model(&model.Mapping{}).
		Where("id = ?", id).
		Update("classify_attempts", gorm.Expr("classify_attempts + 1")).Error
}

// IncrementInvestAttempts bumps the purchase attempt counter.
func (r *MappingRepository) IncrementInvestAttempts(
	ctx context.Context,
	id uint,
) error {

	return r.db.WithContext(ctx).
		Model(&model.Mapping{}).
		Where("id = ?", id).
		Update("invest_attempts", gorm.Expr("invest_attempts + 1")).Error
}

// SetDecision records how the mapping got its approval: the admin
// verdict and whether it was reached automatically.
func (r *MappingRepository) SetDecision(
	ctx context.Context,
	id uint,
	decision string,
	autoApproved bool,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Mapping{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"admin_decision": decision,
			"auto_approved":  autoApproved,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "MappingRepository",
			"op":       "SetDecision",
			"id":       id,
			"decision": decision,
		}).WithError(err).Error("Failed to set mapping decision")

		return err
	}

	return nil
}

// MappingSearchOptions filters the read-only mapping listing.
type MappingSearchOptions struct {
	Status string
	Source string
	Limit  int
	Offset int
}

// Search lists mappings for the read-only admin surface, newest first.
func (r *MappingRepository) Search(
	ctx context.Context,
	options MappingSearchOptions,
) ([]model.Mapping, error) {

	query := r.db.WithContext(ctx).Model(&model.Mapping{})

	if options.Status != "" {
		query = query.Where("status = ?", options.Status)
	}
	if options.Source != "" {
		query = query.Where("source = ?", options.Source)
	}
	if options.Limit <= 0 {
		options.Limit = 20
	}

	var mappings []model.Mapping
	err := query.
		Order("id DESC").
		Limit(options.Limit).
		Offset(options.Offset).
		Find(&mappings).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "MappingRepository",
			"op":     "Search",
			"status": options.Status,
			"source": options.Source,
		}).WithError(err).Error("Failed to search mappings")

		return nil, err
	}

	return mappings, nil
}

// PipelineStats is the aggregate view exposed to operational dashboards.
type PipelineStats struct {
	CountsByStatus   map[string]int64 `json:"counts_by_status"`
	AvgConfidence    float64          `json:"avg_confidence"`
	AutoApprovalRate float64          `json:"auto_approval_rate"`
}

// Stats computes counts by status, average confidence over classified
// mappings, and the share of decided mappings that were auto-approved.
func (r *MappingRepository) Stats(ctx context.Context) (*PipelineStats, error) {

	stats := &PipelineStats{CountsByStatus: map[string]int64{}}

	type statusCount struct {
		Status string
		Count  int64
	}

	var counts []statusCount
	if err := r.db.WithContext(ctx).
		Model(&model.Mapping{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Find(&counts).Error; err != nil {

		logger.WithFields(map[string]interface{}{
			"repo": "MappingRepository",
			"op":   "Stats",
		}).WithError(err).Error("Failed to count mappings by status")

		return nil, err
	}

	var decided int64
	for _, c := range counts {
		stats.CountsByStatus[c.Status] = c.Count
		switch c.Status {
		case model.MappingStatusUnclassified, model.MappingStatusPendingClassification:
		default:
			decided += c.Count
		}
	}

	var avg *float64
	if err := r.db.WithContext(ctx).
		Model(&model.Mapping{}).
		Where("confidence > 0").
		Select("AVG(confidence)").
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	if avg != nil {
		stats.AvgConfidence = *avg
	}

	var autoApproved int64
	if err := r.db.WithContext(ctx).
		Model(&model.Mapping{}).
		Where("auto_approved = ?", true).
		Count(&autoApproved).Error; err != nil {
		return nil, err
	}

	if decided > 0 {
		stats.AutoApprovalRate = float64(autoApproved) / float64(decided)
	}

	return stats, nil
}
