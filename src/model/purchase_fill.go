package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseFill is the record of one executed fractional-share purchase.
// The unique index on mapping_id is the at-most-once guarantee: a second
// invest call for the same mapping can only ever return this row.
type PurchaseFill struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	MappingID uint `gorm:"uniqueIndex;not null" json:"mapping_id"`

	Ticker        string          `gorm:"size:12;not null" json:"ticker"`
	DollarAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"dollar_amount"`
	Shares        decimal.Decimal `gorm:"type:numeric(18,8);not null" json:"shares"`
	PricePerShare decimal.Decimal `gorm:"type:numeric(14,4);not null" json:"price_per_share"`
	ExecutionID   string          `gorm:"size:64;not null" json:"execution_id"`

	FilledAt  time.Time `gorm:"not null" json:"filled_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (PurchaseFill) TableName() string {
	return "purchase_fills"
}
