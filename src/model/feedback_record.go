package model

import "time"

// FeedbackRecord captures a human verdict on a past classification
// attempt. The attempt id is a weak reference: feedback outlives the
// mapping it was recorded against, so there is no FK constraint.
type FeedbackRecord struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	MappingID uint `gorm:"index;not null" json:"mapping_id"`
	AttemptID uint `gorm:"index;not null" json:"attempt_id"`

	ClassifierCorrect bool   `gorm:"not null" json:"classifier_correct"`
	CorrectedTicker   string `gorm:"size:12" json:"corrected_ticker,omitempty"`
	Note              string `gorm:"size:1024" json:"note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (FeedbackRecord) TableName() string {
	return "feedback_records"
}
