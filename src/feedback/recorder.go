package feedback

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"investpipeline/src/model"
	"investpipeline/src/repository"
)

var (
	ErrMappingNotFound = errors.New("mapping not found")
	ErrNotReviewable   = errors.New("mapping has no reviewed classification to give feedback on")
	ErrNoAttempt       = errors.New("mapping has no classification attempt")
)

// Recorder captures admin verdicts against prior classifier responses.
// It only ever appends: neither the mapping nor its attempt history is
// mutated, because feedback is input to future re-weighting, not a
// retroactive edit of an audited record.
type Recorder struct {
	mappings *repository.MappingRepository
	attempts *repository.AttemptRepository
	records  *repository.FeedbackRepository
}

func NewRecorder(
	mappings *repository.MappingRepository,
	attempts *repository.AttemptRepository,
	records *repository.FeedbackRepository,
) *Recorder {
	return &Recorder{mappings: mappings, attempts: attempts, records: records}
}

// Record appends a feedback record for a mapping whose review is done.
// Calling it against a mapping still being classified is an error with
// no side effects, since there is no reviewed classifier output yet.
func (r *Recorder) Record(
	ctx context.Context,
	mappingID uint,
	classifierCorrect bool,
	correctedTicker string,
	note string,
) error {

	mapping, err := r.mappings.FindByID(ctx, mappingID)
	if err != nil {
		return err
	}
	if mapping == nil {
		return fmt.Errorf("%w: %d", ErrMappingNotFound, mappingID)
	}

	switch mapping.Status {
	case model.MappingStatusApproved, model.MappingStatusRejected, model.MappingStatusInvested:
	default:
		return fmt.Errorf("%w: mapping %d is %s", ErrNotReviewable, mappingID, mapping.Status)
	}

	attempt, err := r.attempts.FindLatestByMapping(ctx, mappingID)
	if err != nil {
		return err
	}
	if attempt == nil {
		return fmt.Errorf("%w: %d", ErrNoAttempt, mappingID)
	}

	record := &model.FeedbackRecord{
		MappingID:         mappingID,
		AttemptID:         attempt.ID,
		ClassifierCorrect: classifierCorrect,
		CorrectedTicker:   correctedTicker,
		Note:              note,
	}

	if err := r.records.Create(ctx, record); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"component":        "FeedbackRecorder",
		"mapping_id":       mappingID,
		"attempt_id":       attempt.ID,
		"correct":          classifierCorrect,
		"corrected_ticker": correctedTicker,
	}).Info("Feedback recorded")

	return nil
}
