package decision

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"investpipeline/src/classifier"
	"investpipeline/src/feedback"
	"investpipeline/src/model"
	"investpipeline/src/repository"
)

// Review verdicts supplied by the external admin surface.
const (
	VerdictApprove = "approve"
	VerdictReject  = "reject"
)

var ErrUnknownVerdict = errors.New("unknown review verdict")

// Outcome is the engine's verdict for one classification result.
type Outcome struct {
	Status       string // auto_approved | pending_review | unmappable
	AutoApproved bool
	Retry        bool // no ticker yet, attempt budget not exhausted
	Reason       string
}

// Engine applies the confidence thresholds and submission-source rules.
// Decide is a pure function of its inputs; Apply and ApplyReview write
// the resulting transitions through the mapping repository.
type Engine struct {
	config   Config
	mappings *repository.MappingRepository
	recorder *feedback.Recorder
}

func NewEngine(config Config, mappings *repository.MappingRepository, recorder *feedback.Recorder) *Engine {
	return &Engine{config: config, mappings: mappings, recorder: recorder}
}

// Decide routes a classification result. attemptsUsed counts every
// classifier call already made for the mapping, including this one.
//
// Thresholds are inclusive: confidence exactly at the bar
// auto-approves. An empty category is advisory metadata only and never
// blocks a mapping.
func (e *Engine) Decide(result *classifier.Result, source string, attemptsUsed int) Outcome {
	if result.Ticker == "" {
		if attemptsUsed >= e.config.MaxClassificationAttempts {
			return Outcome{
				Status: model.MappingStatusUnmappable,
				Reason: "no match",
			}
		}
		return Outcome{Retry: true, Reason: "no ticker returned"}
	}

	threshold, autoApprovable := e.thresholdForSource(source)
	if autoApprovable && result.Confidence >= threshold {
		return Outcome{
			Status:       model.MappingStatusAutoApproved,
			AutoApproved: true,
			Reason:       fmt.Sprintf("confidence %.2f >= %.2f threshold for source %s", result.Confidence, threshold, source),
		}
	}

	return Outcome{
		Status: model.MappingStatusPendingReview,
		Reason: fmt.Sprintf("confidence %.2f below auto-approve bar for source %s", result.Confidence, source),
	}
}

// thresholdForSource returns the auto-approve bar for a submission
// source and whether the source permits auto-approval at all.
// Bulk-curated admin uploads are pre-vetted and get a lower bar;
// automated reclassification always requires human sign-off.
func (e *Engine) thresholdForSource(source string) (float64, bool) {
	switch source {
	case model.SourceAdminBulkUpload:
		return e.config.BulkAutoApproveThreshold, true
	case model.SourceReclassification:
		return 0, false
	default:
		return e.config.AutoApproveThreshold, true
	}
}

// Apply writes an Outcome to the mapping's state machine. The
// auto_approved -> approved hop is same-tick: auto-approval already
// implies approval, not a queueing point.
func (e *Engine) Apply(ctx context.Context, mapping *model.Mapping, outcome Outcome) error {
	if outcome.Retry {
		return nil
	}

	if err := e.mappings.TransitionStatus(ctx,
		mapping.ID, model.MappingStatusPendingClassification, outcome.Status, outcome.Reason); err != nil {
		return err
	}

	if outcome.Status == model.MappingStatusAutoApproved {
		if err := e.mappings.TransitionStatus(ctx,
			mapping.ID, model.MappingStatusAutoApproved, model.MappingStatusApproved, outcome.Reason); err != nil {
			return err
		}
		if err := e.mappings.SetDecision(ctx, mapping.ID, model.DecisionApproved, true); err != nil {
			return err
		}
	}

	logger.WithFields(map[string]interface{}{
		"component":  "DecisionEngine",
		"mapping_id": mapping.ID,
		"status":     outcome.Status,
		"auto":       outcome.AutoApproved,
		"reason":     outcome.Reason,
	}).Info("Decision applied")

	return nil
}

// ApplyReview consumes an explicit human decision for a mapping in
// pending_review. A rejection may carry a corrected ticker, which
// becomes a feedback record, never a silent mutation of the rejected
// mapping.
func (e *Engine) ApplyReview(
	ctx context.Context,
	mappingID uint,
	verdict string,
	correctedTicker string,
	note string,
) error {

	switch verdict {
	case VerdictApprove:
		if err := e.mappings.TransitionStatus(ctx,
			mappingID, model.MappingStatusPendingReview, model.MappingStatusApproved, "approved by admin"); err != nil {
			return err
		}
		if err := e.mappings.SetDecision(ctx, mappingID, model.DecisionApproved, false); err != nil {
			return err
		}

		return e.recorder.Record(ctx, mappingID, true, "", note)

	case VerdictReject:
		if err := e.mappings.TransitionStatus(ctx,
			mappingID, model.MappingStatusPendingReview, model.MappingStatusRejected, "rejected by admin"); err != nil {
			return err
		}
		if err := e.mappings.SetDecision(ctx, mappingID, model.DecisionRejected, false); err != nil {
			return err
		}

		return e.recorder.Record(ctx, mappingID, false, correctedTicker, note)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownVerdict, verdict)
	}
}
