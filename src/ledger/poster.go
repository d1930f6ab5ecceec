package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"investpipeline/src/database"
	"investpipeline/src/model"
	"investpipeline/src/repository"
)

var (
	// ErrUnbalanced means a balancing pair could not be constructed.
	// A ledger error is never "fixed" by adjusting the amount; the
	// posting is rejected and the mismatch surfaced.
	ErrUnbalanced        = errors.New("journal entry does not balance")
	ErrNonPositiveAmount = errors.New("journal amount must be positive")
	ErrSameAccount       = errors.New("debit and credit accounts must differ")
	ErrEmptyAccount      = errors.New("account code must not be empty")
	ErrNotPosted         = errors.New("only posted entries can be reversed")
)

// CashAccount is the credit side of an investment posting.
func CashAccount(accountID uint) string {
	return fmt.Sprintf("user:%d:cash", accountID)
}

// InvestmentAccount is the debit side of an investment posting.
func InvestmentAccount(ticker string) string {
	return fmt.Sprintf("assets:investments:%s", ticker)
}

// Poster is the single owner of the journal tables. It only ever emits
// entries whose debit total equals the credit total; anything else is
// rejected before a row is written.
type Poster struct {
	db           *gorm.DB
	journal      *repository.JournalRepository
	mappings     *repository.MappingRepository
	transactions *repository.TransactionRepository
}

// NewPoster creates a poster on the main read/write database.
func NewPoster() *Poster {
	return &Poster{
		db:           database.MainDB,
		journal:      repository.NewJournalRepository(),
		mappings:     repository.NewMappingRepository(),
		transactions: repository.NewTransactionRepository(),
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests.
func (p *Poster) WithDB(db *gorm.DB) *Poster {
	return &Poster{
		db:           db,
		journal:      p.journal.WithDB(db),
		mappings:     p.mappings.WithDB(db),
		transactions: p.transactions.WithDB(db),
	}
}

// Post writes a balanced journal entry moving amount from one account
// to another. The destination is debited, the source credited.
func (p *Poster) Post(
	ctx context.Context,
	fromAccount, toAccount string,
	amount decimal.Decimal,
	reference string,
	createdBy string,
) (*model.JournalEntry, error) {

	entry, err := buildEntry(fromAccount, toAccount, amount, reference, model.JournalTypeInvestment, createdBy)
	if err != nil {
		return nil, err
	}

	if err := p.journal.Create(ctx, nil, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// PostFill posts the journal entry for a purchase fill and flips the
// mapping to invested as a single unit of work. If the process crashed
// after the fill was obtained, calling PostFill again on the next pass
// completes the posting without re-investing.
func (p *Poster) PostFill(
	ctx context.Context,
	mapping *model.Mapping,
	fill *model.PurchaseFill,
) (*model.JournalEntry, error) {

	reference := FillReference(mapping.ID, fill.FilledAt)

	// Already flipped: return the existing entry instead of posting twice.
	if mapping.Status == model.MappingStatusInvested {
		return p.journal.FindByReference(ctx, reference)
	}

	txn, err := p.transactions.FindByID(ctx, mapping.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, fmt.Errorf("transaction %d not found for mapping %d", mapping.TransactionID, mapping.ID)
	}

	entry, err := buildEntry(
		CashAccount(txn.AccountID),
		InvestmentAccount(fill.Ticker),
		fill.DollarAmount,
		reference,
		model.JournalTypeInvestment,
		"invest_pipeline",
	)
	if err != nil {
		return nil, err
	}
	entry.Memo = fmt.Sprintf("fractional purchase of %s for mapping %d", fill.Ticker, mapping.ID)

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.journal.Create(ctx, tx, entry); err != nil {
			return err
		}

		if err := p.mappings.WithDB(tx).TransitionStatus(ctx,
			mapping.ID, model.MappingStatusApproved, model.MappingStatusInvested,
			fmt.Sprintf("invested, journal %s", reference)); err != nil {
			return err
		}

		return p.transactions.MarkInvested(ctx, tx, txn.ID, mapping.ID)
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"component":  "LedgerPoster",
			"mapping_id": mapping.ID,
			"reference":  reference,
		}).WithError(err).Error("Failed to post fill")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component":  "LedgerPoster",
		"mapping_id": mapping.ID,
		"reference":  reference,
		"amount":     fill.DollarAmount.String(),
	}).Info("Fill posted, mapping invested")

	return entry, nil
}

// Reverse posts a reversing entry for a posted entry. History is never
// edited; corrections only ever append.
func (p *Poster) Reverse(ctx context.Context, entry *model.JournalEntry, createdBy string) (*model.JournalEntry, error) {
	if entry.Status != model.JournalStatusPosted {
		return nil, ErrNotPosted
	}

	reversal := &model.JournalEntry{
		ReferenceCode: entry.ReferenceCode + "-REV",
		Type:          model.JournalTypeReversal,
		Status:        model.JournalStatusPosted,
		Currency:      entry.Currency,
		Memo:          fmt.Sprintf("reversal of %s", entry.ReferenceCode),
		CreatedBy:     createdBy,
	}

	for _, line := range entry.Lines {
		side := model.LineSideDebit
		if line.Side == model.LineSideDebit {
			side = model.LineSideCredit
		}
		reversal.Lines = append(reversal.Lines, model.JournalLine{
			Account: line.Account,
			Side:    side,
			Amount:  line.Amount,
		})
	}

	if !reversal.Balanced() {
		return nil, ErrUnbalanced
	}

	if err := p.journal.Create(ctx, nil, reversal); err != nil {
		return nil, err
	}

	return reversal, nil
}

// FillReference derives the human-auditable reference code from the
// mapping id and the fill date.
func FillReference(mappingID uint, filledAt time.Time) string {
	return fmt.Sprintf("INV-%d-%s", mappingID, filledAt.UTC().Format("20060102"))
}

func buildEntry(
	fromAccount, toAccount string,
	amount decimal.Decimal,
	reference, entryType, createdBy string,
) (*model.JournalEntry, error) {

	if fromAccount == "" || toAccount == "" {
		return nil, ErrEmptyAccount
	}
	if fromAccount == toAccount {
		return nil, ErrSameAccount
	}
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	entry := &model.JournalEntry{
		ReferenceCode: reference,
		Type:          entryType,
		Status:        model.JournalStatusPosted,
		Currency:      "USD",
		CreatedBy:     createdBy,
		Lines: []model.JournalLine{
			{Account: toAccount, Side: model.LineSideDebit, Amount: amount},
			{Account: fromAccount, Side: model.LineSideCredit, Amount: amount},
		},
	}

	if !entry.Balanced() {
		return nil, ErrUnbalanced
	}

	return entry, nil
}
