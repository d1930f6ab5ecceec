package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the raw bank-card transaction produced by the upstream
// ingestion service. The pipeline treats it as read-only input: the only
// write-back is the resolved mapping reference and the invested flag.
type Transaction struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	AccountID   uint            `gorm:"index;not null" json:"account_id"`
	Merchant    string          `gorm:"size:255;not null" json:"merchant"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency    string          `gorm:"size:3;not null;default:USD" json:"currency"`
	Description string          `gorm:"size:512" json:"description,omitempty"`
	OccurredAt  time.Time       `gorm:"not null" json:"occurred_at"`

	// Written back by the pipeline once the mapping is invested.
	MappingID *uint `gorm:"index" json:"mapping_id,omitempty"`
	Invested  bool  `gorm:"not null;default:false" json:"invested"`

	CreatedAt time.Time `json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
