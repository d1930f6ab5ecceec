package scheduler

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"investpipeline/src/brokerage"
	"investpipeline/src/classifier"
	"investpipeline/src/decision"
	"investpipeline/src/executor"
	"investpipeline/src/feedback"
	"investpipeline/src/ledger"
	"investpipeline/src/repository"
	"investpipeline/src/security"
)

// StartLoop wires the full pipeline from the environment config and runs
// passes until the context is cancelled.
func StartLoop(ctx context.Context) error {
	config := GetConfig()

	ticker := time.NewTicker(config.LoopPeriod) // Set up a ticker that fires periodically
	defer ticker.Stop()

	sched, err := buildScheduler(config)
	if err != nil {
		logger.WithError(err).Error("Failed to build scheduler")
		return err
	}

	// Recovery must happen before the first scheduled batch, not a full
	// period later.
	sched.RunPass(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Println("loop stopped")
			return nil

		case <-ticker.C:
			logger.Info("loop tick")
			report := sched.RunPass(ctx)
			for _, perr := range report.Errors {
				logger.WithError(perr).Warn("pass error")
			}
		}
	}
}

// RunRecoveryOnce posts any fills left unposted by a crash, then
// returns. Used by the standalone recovery command; the venue is never
// called.
func RunRecoveryOnce(ctx context.Context) error {
	sched, err := buildScheduler(GetConfig())
	if err != nil {
		return err
	}

	report := &PassReport{}
	sched.recoverUnposted(ctx, report)

	logger.WithFields(map[string]interface{}{
		"component": "Scheduler",
		"recovered": report.Recovered,
		"errors":    len(report.Errors),
	}).Info("Recovery pass complete")

	if len(report.Errors) > 0 {
		return report.Errors[0]
	}
	return nil
}

func buildScheduler(config Config) (*Scheduler, error) {
	mappingRep := repository.NewMappingRepository()
	transactionRep := repository.NewTransactionRepository()
	fillRep := repository.NewFillRepository()
	attemptRep := repository.NewAttemptRepository()
	feedbackRep := repository.NewFeedbackRepository()
	exceptionRep := repository.NewExceptionRepository()

	apiKey, apiSecret := "", ""
	if config.BrokerageAPIKeyEnc != "" {
		var err error
		apiKey, err = security.DecryptString(config.BrokerageAPIKeyEnc)
		if err != nil {
			logger.WithError(err).Error("Failed to decrypt API Key")
			return nil, err
		}
		apiSecret, err = security.DecryptString(config.BrokerageAPISecretEnc)
		if err != nil {
			logger.WithError(err).Error("Failed to decrypt API Secret")
			return nil, err
		}
	}

	venue := brokerage.NewClient(apiKey, apiSecret, config.BrokerageBaseURL)

	decisionConfig := decision.GetConfig()
	recorder := feedback.NewRecorder(mappingRep, attemptRep, feedbackRep)
	engine := decision.NewEngine(decisionConfig, mappingRep, recorder)

	return New(config, Deps{
		Classifier:          classifier.NewClient(attemptRep),
		Engine:              engine,
		Executor:            executor.NewPurchaseExecutor(venue, executor.GetConfig(), mappingRep, fillRep, transactionRep),
		Poster:              ledger.NewPoster(),
		Mappings:            mappingRep,
		Transactions:        transactionRep,
		Fills:               fillRep,
		Exceptions:          exceptionRep,
		MaxClassifyAttempts: decisionConfig.MaxClassificationAttempts,
	}), nil
}
