package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Journal entry statuses.
const (
	JournalStatusDraft  = "draft"
	JournalStatusPosted = "posted"
)

// Journal line sides.
const (
	LineSideDebit  = "debit"
	LineSideCredit = "credit"
)

// Journal transaction type tags.
const (
	JournalTypeInvestment = "investment"
	JournalTypeReversal   = "reversal"
)

// JournalEntry is one double-entry accounting record. Once posted the
// entry is immutable; corrections are made with a reversing entry.
type JournalEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ReferenceCode string    `gorm:"size:64;uniqueIndex;not null" json:"reference_code"`
	Type          string    `gorm:"size:30;not null" json:"type"`
	Status        string    `gorm:"size:20;not null;default:draft;index" json:"status"`
	Currency      string    `gorm:"size:3;not null;default:USD" json:"currency"`
	Memo          string    `gorm:"size:512" json:"memo,omitempty"`
	CreatedBy     string    `gorm:"size:100;not null" json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`

	// One-to-many relation: the debit and credit legs of the entry.
	Lines []JournalLine `gorm:"foreignKey:EntryID" json:"lines,omitempty"`
}

func (JournalEntry) TableName() string {
	return "journal_entries"
}

// JournalLine is a single debit or credit leg of a journal entry.
type JournalLine struct {
	ID      uint            `gorm:"primaryKey" json:"id"`
	EntryID uint            `gorm:"index;not null" json:"entry_id"`
	Account string          `gorm:"size:100;not null" json:"account"`
	Side    string          `gorm:"size:6;not null" json:"side"`
	Amount  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
}

func (JournalLine) TableName() string {
	return "journal_lines"
}

// Balanced reports whether the entry's debit legs and credit legs sum to
// exactly the same amount.
func (e *JournalEntry) Balanced() bool {
	debits := decimal.Zero
	credits := decimal.Zero
	for _, line := range e.Lines {
		switch line.Side {
		case LineSideDebit:
			debits = debits.Add(line.Amount)
		case LineSideCredit:
			credits = credits.Add(line.Amount)
		default:
			return false
		}
	}
	return debits.Equal(credits) && debits.IsPositive()
}
