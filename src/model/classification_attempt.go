package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClassificationAttempt is the append-only audit log of every classifier
// call, success or failure. Rows are never updated after insert.
type ClassificationAttempt struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	MappingID uint `gorm:"index;not null" json:"mapping_id"`

	Prompt      string `gorm:"type:text" json:"prompt"`
	RawResponse string `gorm:"type:text" json:"raw_response"`

	// Parsed result, empty when the call errored.
	Ticker      string  `gorm:"size:12" json:"ticker"`
	CompanyName string  `gorm:"size:255" json:"company_name"`
	Category    string  `gorm:"size:100" json:"category"`
	Confidence  float64 `json:"confidence"`

	ModelVersion string `gorm:"size:100" json:"model_version"`
	LatencyMs    int64  `json:"latency_ms"`

	// Usage accounting for billing visibility.
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	CostUSD      decimal.Decimal `gorm:"type:numeric(10,6)" json:"cost_usd"`

	IsError      bool   `gorm:"not null;default:false;index" json:"is_error"`
	ErrorMessage string `gorm:"size:512" json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (ClassificationAttempt) TableName() string {
	return "classification_attempts"
}
