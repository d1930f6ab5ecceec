package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"investpipeline/src/brokerage"
	"investpipeline/src/model"
	"investpipeline/src/repository"
)

var (
	ErrNotApproved       = errors.New("mapping is not approved")
	ErrNoTicker          = errors.New("mapping has no ticker")
	ErrNonPositiveAmount = errors.New("dollar amount must be positive")
)

// venue is the brokerage contract the executor is a thin adapter over.
type venue interface {
	PlaceFractionalOrder(ctx context.Context, account, ticker string, dollarAmount decimal.Decimal) (*brokerage.Fill, error)
}

// PurchaseExecutor buys fixed-dollar fractional positions for approved
// mappings. It is idempotent per mapping id: an existing fill is
// returned as-is, never re-executed. That is the at-most-once guarantee
// protecting against duplicate spend on retry.
type PurchaseExecutor struct {
	venue        venue
	config       Config
	mappings     *repository.MappingRepository
	fills        *repository.FillRepository
	transactions *repository.TransactionRepository
}

func NewPurchaseExecutor(
	v venue,
	config Config,
	mappings *repository.MappingRepository,
	fills *repository.FillRepository,
	transactions *repository.TransactionRepository,
) *PurchaseExecutor {
	return &PurchaseExecutor{
		venue:        v,
		config:       config,
		mappings:     mappings,
		fills:        fills,
		transactions: transactions,
	}
}

// Invest executes the purchase for an approved mapping. On a fatal
// venue error the mapping moves to rejected with a recorded reason; on
// a retryable error it stays approved for the next pass, bounded by
// the attempt budget.
func (e *PurchaseExecutor) Invest(
	ctx context.Context,
	mapping *model.Mapping,
	dollarAmount decimal.Decimal,
) (*model.PurchaseFill, error) {

	existing, err := e.fills.FindByMapping(ctx, mapping.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.WithFields(map[string]interface{}{
			"component":  "PurchaseExecutor",
			"mapping_id": mapping.ID,
			"fill_id":    existing.ID,
		}).Debug("Fill already exists, returning it")

		return existing, nil
	}

	if mapping.Status != model.MappingStatusApproved {
		return nil, fmt.Errorf("%w: mapping %d is %s", ErrNotApproved, mapping.ID, mapping.Status)
	}
	if mapping.Ticker == "" {
		return nil, fmt.Errorf("%w: mapping %d", ErrNoTicker, mapping.ID)
	}
	if !dollarAmount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	txn, err := e.transactions.FindByID(ctx, mapping.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, fmt.Errorf("transaction %d not found for mapping %d", mapping.TransactionID, mapping.ID)
	}

	if err := e.mappings.IncrementInvestAttempts(ctx, mapping.ID); err != nil {
		return nil, err
	}
	attempts := mapping.InvestAttempts + 1

	account := fmt.Sprintf("%d", txn.AccountID)
	venueFill, err := e.venue.PlaceFractionalOrder(ctx, account, mapping.Ticker, dollarAmount)
	if err != nil {
		return nil, e.handleVenueError(ctx, mapping, attempts, err)
	}

	fill := &model.PurchaseFill{
		MappingID:     mapping.ID,
		Ticker:        venueFill.Ticker,
		DollarAmount:  venueFill.DollarAmount,
		Shares:        venueFill.Shares,
		PricePerShare: venueFill.PricePerShare,
		ExecutionID:   venueFill.ExecutionID,
		FilledAt:      venueFill.FilledAt,
	}

	if err := e.fills.Create(ctx, fill); err != nil {
		// A concurrent worker won the insert race; its fill is the one.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return e.fills.FindByMapping(ctx, mapping.ID)
		}
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component":    "PurchaseExecutor",
		"mapping_id":   mapping.ID,
		"ticker":       fill.Ticker,
		"shares":       fill.Shares.String(),
		"execution_id": fill.ExecutionID,
	}).Info("Purchase executed")

	return fill, nil
}

func (e *PurchaseExecutor) handleVenueError(
	ctx context.Context,
	mapping *model.Mapping,
	attempts int,
	err error,
) error {

	var orderErr *brokerage.OrderError
	if errors.As(err, &orderErr) && !orderErr.Retryable {
		reason := fmt.Sprintf("purchase failed: %s", orderErr.Error())
		if terr := e.mappings.TransitionStatus(ctx,
			mapping.ID, model.MappingStatusApproved, model.MappingStatusRejected, reason); terr != nil {
			return terr
		}

		logger.WithFields(map[string]interface{}{
			"component":  "PurchaseExecutor",
			"mapping_id": mapping.ID,
			"code":       orderErr.Code,
		}).Warn("Fatal venue error, mapping rejected")

		return err
	}

	if attempts >= e.config.MaxInvestAttempts {
		reason := fmt.Sprintf("escalated after %d purchase attempts: %v", attempts, err)
		if terr := e.mappings.TransitionStatus(ctx,
			mapping.ID, model.MappingStatusApproved, model.MappingStatusPendingReview, reason); terr != nil {
			return terr
		}

		logger.WithFields(map[string]interface{}{
			"component":  "PurchaseExecutor",
			"mapping_id": mapping.ID,
			"attempts":   attempts,
		}).Warn("Purchase retry budget exhausted, escalated to review")
	}

	return err
}
