package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"investpipeline/src/classifier"
	"investpipeline/src/decision"
	"investpipeline/src/executor"
	"investpipeline/src/ledger"
	"investpipeline/src/marketcal"
	"investpipeline/src/model"
	"investpipeline/src/repository"
)

// classifierClient is the slice of the classifier the scheduler drives.
type classifierClient interface {
	Classify(ctx context.Context, mapping *model.Mapping, contextHint string) (*classifier.Result, error)
}

// Deps collects the pipeline components the scheduler orchestrates.
type Deps struct {
	Classifier   classifierClient
	Engine       *decision.Engine
	Executor     *executor.PurchaseExecutor
	Poster       *ledger.Poster
	Mappings     *repository.MappingRepository
	Transactions *repository.TransactionRepository
	Fills        *repository.FillRepository
	Exceptions   *repository.ExceptionRepository

	// Mirrors the decision engine's classification attempt budget so the
	// error-retry loop stops where the engine would.
	MaxClassifyAttempts int
}

// PassReport summarizes one scheduler pass for logging and tests.
// Classified counts mappings that came out of the classifier with a
// routing (auto-approved or queued for review); exhausted budgets show
// up under Unmappable only.
type PassReport struct {
	Recovered       int
	Reclaimed       int
	Ingested        int
	Classified      int
	AutoApproved    int
	QueuedForReview int
	Unmappable      int
	Invested        int
	Errors          []error
}

// Scheduler runs the pipeline as periodic batch passes: recover, ingest,
// classify, invest. A failure on one mapping never aborts the pass; the
// mapping is skipped and retried on a later tick.
type Scheduler struct {
	config Config
	deps   Deps

	investAmount decimal.Decimal

	// Seams for tests.
	now          func() time.Time
	sleep        func(time.Duration)
	isMarketOpen func(time.Time) bool
}

func New(config Config, deps Deps) *Scheduler {
	if deps.MaxClassifyAttempts <= 0 {
		deps.MaxClassifyAttempts = 3
	}
	if config.ClaimLeaseWindow <= 0 {
		config.ClaimLeaseWindow = 10 * time.Minute
	}

	return &Scheduler{
		config:       config,
		deps:         deps,
		investAmount: decimal.NewFromFloat(config.InvestmentDollarAmount),
		now:          time.Now,
		sleep:        time.Sleep,
		isMarketOpen: marketcal.IsMarketOpen,
	}
}

// RunPass executes one full pipeline pass. Recovery runs first so fills
// that were executed but never posted (crash between venue call and
// journal write) are completed before any new money moves.
func (s *Scheduler) RunPass(ctx context.Context) *PassReport {
	report := &PassReport{}

	s.recoverUnposted(ctx, report)
	s.reclaimStaleClaims(ctx, report)
	s.ingestTransactions(ctx, report)
	s.classifyBatch(ctx, report)

	if s.isMarketOpen(s.now()) {
		s.investBatch(ctx, report)
	} else {
		logger.WithField("component", "Scheduler").
			Debug("Market closed, skipping investment batch")
	}

	logger.WithFields(map[string]interface{}{
		"component":  "Scheduler",
		"recovered":  report.Recovered,
		"reclaimed":  report.Reclaimed,
		"ingested":   report.Ingested,
		"classified": report.Classified,
		"invested":   report.Invested,
		"errors":     len(report.Errors),
	}).Info("Scheduler pass complete")

	return report
}

// recoverUnposted finds fills whose mapping never flipped to invested and
// re-runs the posting step only. The venue is never called here.
func (s *Scheduler) recoverUnposted(ctx context.Context, report *PassReport) {
	fills, err := s.deps.Fills.FindUnposted(ctx, s.config.BatchSize)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("recovery scan: %w", err))
		return
	}

	for i := range fills {
		fill := &fills[i]

		mapping, err := s.deps.Mappings.FindByID(ctx, fill.MappingID)
		if err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		if mapping == nil || mapping.Status != model.MappingStatusApproved {
			continue
		}

		if _, err := s.deps.Poster.PostFill(ctx, mapping, fill); err != nil {
			s.recordException(ctx, "LedgerPoster", "PostFill", err, map[string]interface{}{
				"mapping_id": mapping.ID,
				"fill_id":    fill.ID,
			})
			report.Errors = append(report.Errors, err)
			continue
		}

		logger.WithFields(map[string]interface{}{
			"component":  "Scheduler",
			"mapping_id": mapping.ID,
			"fill_id":    fill.ID,
		}).Warn("Recovered unposted fill")

		report.Recovered++
	}
}

// reclaimStaleClaims resumes mappings a dead worker left in
// pending_classification. The claim acts as a lease: once it is older
// than the lease window the mapping is driven through the classify loop
// again, with whatever attempt budget it has left.
func (s *Scheduler) reclaimStaleClaims(ctx context.Context, report *PassReport) {
	cutoff := s.now().Add(-s.config.ClaimLeaseWindow)

	stale, err := s.deps.Mappings.FindStaleClaims(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("stale claim scan: %w", err))
		return
	}

	for i := range stale {
		if ctx.Err() != nil {
			return
		}
		mapping := &stale[i]

		logger.WithFields(map[string]interface{}{
			"component":     "Scheduler",
			"mapping_id":    mapping.ID,
			"claimed_at":    mapping.UpdatedAt,
			"attempts_used": mapping.ClassifyAttempts,
		}).Warn("Reclaiming stale classification claim")

		report.Reclaimed++
		s.classifyOne(ctx, mapping, report)
	}
}

// ingestTransactions creates an unclassified mapping for every
// transaction that does not have one yet.
func (s *Scheduler) ingestTransactions(ctx context.Context, report *PassReport) {
	txns, err := s.deps.Transactions.FindWithoutMapping(ctx, s.config.BatchSize)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("ingest scan: %w", err))
		return
	}

	for i := range txns {
		txn := &txns[i]

		mapping := &model.Mapping{
			TransactionID: txn.ID,
			MerchantName:  txn.Merchant,
			Source:        model.SourceUserInitiated,
			Status:        model.MappingStatusUnclassified,
			AdminDecision: model.DecisionPending,
		}

		if err := s.deps.Mappings.Create(ctx, mapping); err != nil {
			// The unique index on transaction_id catches a concurrent
			// ingester; either way the transaction now has a mapping.
			report.Errors = append(report.Errors, err)
			continue
		}

		report.Ingested++
	}
}

// classifyBatch claims a bounded batch of unclassified mappings and
// drives each through classify -> decide -> store.
func (s *Scheduler) classifyBatch(ctx context.Context, report *PassReport) {
	batch, err := s.deps.Mappings.FindBatchByStatus(ctx, model.MappingStatusUnclassified, s.config.BatchSize)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("classify scan: %w", err))
		return
	}

	for i := range batch {
		if ctx.Err() != nil {
			return
		}
		mapping := &batch[i]

		claimed, err := s.deps.Mappings.ClaimForClassification(ctx, mapping.ID)
		if err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		if !claimed {
			continue
		}
		mapping.Status = model.MappingStatusPendingClassification

		s.classifyOne(ctx, mapping, report)
	}
}

// classifyOne runs the retry loop for a single claimed mapping. Retryable
// classifier errors back off exponentially; the attempt budget is shared
// between error retries and "no ticker" retries.
func (s *Scheduler) classifyOne(ctx context.Context, mapping *model.Mapping, report *PassReport) {
	contextHint := s.contextHintFor(ctx, mapping)

	attemptsUsed := mapping.ClassifyAttempts
	for {
		attemptsUsed++
		if err := s.deps.Mappings.IncrementClassifyAttempts(ctx, mapping.ID); err != nil {
			report.Errors = append(report.Errors, err)
			return
		}

		result, err := s.deps.Classifier.Classify(ctx, mapping, contextHint)
		if err != nil {
			if classifier.IsRetryable(err) && attemptsUsed < s.deps.MaxClassifyAttempts {
				s.sleep(s.backoff(attemptsUsed))
				continue
			}

			s.markUnmappable(ctx, mapping,
				fmt.Sprintf("classification failed after %d attempts: %v", attemptsUsed, err))
			s.recordException(ctx, "ClassifierClient", "Classify", err, map[string]interface{}{
				"mapping_id": mapping.ID,
				"attempts":   attemptsUsed,
			})
			report.Unmappable++
			report.Errors = append(report.Errors, err)
			return
		}

		outcome := s.deps.Engine.Decide(result, mapping.Source, attemptsUsed)
		if outcome.Retry {
			s.sleep(s.backoff(attemptsUsed))
			continue
		}

		if result.Ticker != "" {
			if err := s.deps.Mappings.UpdateClassification(ctx,
				mapping.ID, result.Ticker, result.CompanyName, result.Category, result.Confidence); err != nil {
				report.Errors = append(report.Errors, err)
				return
			}
		}

		if err := s.deps.Engine.Apply(ctx, mapping, outcome); err != nil {
			report.Errors = append(report.Errors, err)
			return
		}

		switch outcome.Status {
		case model.MappingStatusAutoApproved:
			report.Classified++
			report.AutoApproved++
		case model.MappingStatusPendingReview:
			report.Classified++
			report.QueuedForReview++
		case model.MappingStatusUnmappable:
			report.Unmappable++
		}
		return
	}
}

// investBatch buys and posts every approved mapping without a fill.
// Only runs during market hours.
func (s *Scheduler) investBatch(ctx context.Context, report *PassReport) {
	batch, err := s.deps.Mappings.FindApprovedWithoutFill(ctx, s.config.BatchSize)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("invest scan: %w", err))
		return
	}

	for i := range batch {
		if ctx.Err() != nil {
			return
		}
		mapping := &batch[i]

		fill, err := s.deps.Executor.Invest(ctx, mapping, s.investAmount)
		if err != nil {
			// Fatal venue errors already moved the mapping to rejected;
			// retryable ones leave it approved for the next pass.
			s.recordException(ctx, "PurchaseExecutor", "Invest", err, map[string]interface{}{
				"mapping_id": mapping.ID,
				"ticker":     mapping.Ticker,
			})
			report.Errors = append(report.Errors, err)
			continue
		}

		if _, err := s.deps.Poster.PostFill(ctx, mapping, fill); err != nil {
			// The fill exists; the recovery scan on the next pass will
			// finish the posting without touching the venue again.
			s.recordException(ctx, "LedgerPoster", "PostFill", err, map[string]interface{}{
				"mapping_id": mapping.ID,
				"fill_id":    fill.ID,
			})
			report.Errors = append(report.Errors, err)
			continue
		}

		report.Invested++
	}
}

func (s *Scheduler) markUnmappable(ctx context.Context, mapping *model.Mapping, reason string) {
	if err := s.deps.Mappings.TransitionStatus(ctx,
		mapping.ID, model.MappingStatusPendingClassification, model.MappingStatusUnmappable, reason); err != nil {

		logger.WithFields(map[string]interface{}{
			"component":  "Scheduler",
			"mapping_id": mapping.ID,
		}).WithError(err).Error("Failed to mark mapping unmappable")
	}
}

// contextHintFor passes the transaction description along to the
// classifier when the upstream service captured one.
func (s *Scheduler) contextHintFor(ctx context.Context, mapping *model.Mapping) string {
	txn, err := s.deps.Transactions.FindByID(ctx, mapping.TransactionID)
	if err != nil || txn == nil {
		return ""
	}
	return txn.Description
}

func (s *Scheduler) backoff(attempt int) time.Duration {
	d := s.config.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.config.BackoffMax {
			return s.config.BackoffMax
		}
	}
	return d
}

func (s *Scheduler) recordException(ctx context.Context, module, method string, err error, fields map[string]interface{}) {
	if s.deps.Exceptions == nil {
		return
	}

	exc := &model.Exception{
		Service: "invest_pipeline",
		Module:  module,
		Method:  method,
		Message: err.Error(),
		Level:   "error",
	}
	if len(fields) > 0 {
		if raw, merr := json.Marshal(fields); merr == nil {
			exc.Context = string(raw)
		}
	}

	if cerr := s.deps.Exceptions.Create(context.WithoutCancel(ctx), exc); cerr != nil {
		logger.WithField("component", "Scheduler").
			WithError(cerr).Error("Failed to persist exception")
	}
}
