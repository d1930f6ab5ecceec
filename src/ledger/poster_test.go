package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"investpipeline/src/database"
	"investpipeline/src/model"
	"investpipeline/src/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestPoster(db *gorm.DB) *Poster {
	return (&Poster{
		journal:      repository.NewJournalRepository(),
		mappings:     repository.NewMappingRepository(),
		transactions: repository.NewTransactionRepository(),
	}).WithDB(db)
}

func seedApprovedMapping(t *testing.T, db *gorm.DB) (*model.Transaction, *model.Mapping) {
	t.Helper()

	txn := &model.Transaction{
		AccountID:  42,
		Merchant:   "STARBUCKS #9911",
		Amount:     decimal.RequireFromString("8.75"),
		Currency:   "USD",
		OccurredAt: time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("failed to seed transaction: %v", err)
	}

	mapping := &model.Mapping{
		TransactionID: txn.ID,
		MerchantName:  txn.Merchant,
		Ticker:        "SBUX",
		Confidence:    0.97,
		Source:        model.SourceUserInitiated,
		Status:        model.MappingStatusApproved,
		AdminDecision: model.DecisionApproved,
		AutoApproved:  true,
	}
	if err := db.Create(mapping).Error; err != nil {
		t.Fatalf("failed to seed mapping: %v", err)
	}
	return txn, mapping
}

func testFill(mappingID uint) *model.PurchaseFill {
	return &model.PurchaseFill{
		MappingID:     mappingID,
		Ticker:        "SBUX",
		DollarAmount:  decimal.RequireFromString("5.00"),
		Shares:        decimal.RequireFromString("0.05617978"),
		PricePerShare: decimal.RequireFromString("89.00"),
		ExecutionID:   "exec-123",
		FilledAt:      time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC),
	}
}

func TestPostFill(t *testing.T) {
	db := newTestDB(t)
	poster := newTestPoster(db)
	ctx := context.Background()

	txn, mapping := seedApprovedMapping(t, db)
	fill := testFill(mapping.ID)
	if err := db.Create(fill).Error; err != nil {
		t.Fatalf("failed to seed fill: %v", err)
	}

	entry, err := poster.PostFill(ctx, mapping, fill)
	if err != nil {
		t.Fatalf("unexpected PostFill error: %v", err)
	}

	if entry.Status != model.JournalStatusPosted {
		t.Fatalf("entry status = %q, want posted", entry.Status)
	}
	if !entry.Balanced() {
		t.Fatalf("posted entry does not balance: %+v", entry.Lines)
	}
	if len(entry.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(entry.Lines))
	}

	var debit, credit *model.JournalLine
	for i := range entry.Lines {
		switch entry.Lines[i].Side {
		case model.LineSideDebit:
			debit = &entry.Lines[i]
		case model.LineSideCredit:
			credit = &entry.Lines[i]
		}
	}
	if debit == nil || credit == nil {
		t.Fatalf("expected one debit and one credit leg, got %+v", entry.Lines)
	}
	if debit.Account != InvestmentAccount("SBUX") {
		t.Fatalf("debit account = %q", debit.Account)
	}
	if credit.Account != CashAccount(txn.AccountID) {
		t.Fatalf("credit account = %q", credit.Account)
	}
	if !debit.Amount.Equal(fill.DollarAmount) {
		t.Fatalf("debit amount = %s, want %s", debit.Amount, fill.DollarAmount)
	}

	// The flip to invested and the transaction write-back happened in the
	// same unit of work.
	var reloaded model.Mapping
	if err := db.First(&reloaded, mapping.ID).Error; err != nil {
		t.Fatalf("failed to reload mapping: %v", err)
	}
	if reloaded.Status != model.MappingStatusInvested {
		t.Fatalf("mapping status = %q, want invested", reloaded.Status)
	}

	var reloadedTxn model.Transaction
	if err := db.First(&reloadedTxn, txn.ID).Error; err != nil {
		t.Fatalf("failed to reload transaction: %v", err)
	}
	if !reloadedTxn.Invested || reloadedTxn.MappingID == nil || *reloadedTxn.MappingID != mapping.ID {
		t.Fatalf("transaction write-back missing: %+v", reloadedTxn)
	}
}

func TestPostFillIdempotent(t *testing.T) {
	db := newTestDB(t)
	poster := newTestPoster(db)
	ctx := context.Background()

	_, mapping := seedApprovedMapping(t, db)
	fill := testFill(mapping.ID)
	if err := db.Create(fill).Error; err != nil {
		t.Fatalf("failed to seed fill: %v", err)
	}

	first, err := poster.PostFill(ctx, mapping, fill)
	if err != nil {
		t.Fatalf("unexpected PostFill error: %v", err)
	}

	mapping.Status = model.MappingStatusInvested
	second, err := poster.PostFill(ctx, mapping, fill)
	if err != nil {
		t.Fatalf("unexpected second PostFill error: %v", err)
	}

	if second == nil || second.ID != first.ID {
		t.Fatalf("expected the original entry back, got %+v", second)
	}

	var count int64
	if err := db.Model(&model.JournalEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count entries: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 journal entry, got %d", count)
	}
}

func TestPostValidation(t *testing.T) {
	db := newTestDB(t)
	poster := newTestPoster(db)
	ctx := context.Background()

	amount := decimal.RequireFromString("5.00")

	tests := []struct {
		name    string
		from    string
		to      string
		amount  decimal.Decimal
		wantErr error
	}{
		{"zero amount", "user:1:cash", "assets:investments:SBUX", decimal.Zero, ErrNonPositiveAmount},
		{"negative amount", "user:1:cash", "assets:investments:SBUX", amount.Neg(), ErrNonPositiveAmount},
		{"same account", "user:1:cash", "user:1:cash", amount, ErrSameAccount},
		{"empty account", "", "assets:investments:SBUX", amount, ErrEmptyAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := poster.Post(ctx, tt.from, tt.to, tt.amount, "REF-"+tt.name, "test")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Nothing was written by the rejected postings.
	var count int64
	if err := db.Model(&model.JournalEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count entries: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no journal entries, got %d", count)
	}
}

func TestReverse(t *testing.T) {
	db := newTestDB(t)
	poster := newTestPoster(db)
	ctx := context.Background()

	entry, err := poster.Post(ctx,
		"user:42:cash", "assets:investments:SBUX",
		decimal.RequireFromString("5.00"), "INV-1-20250602", "test")
	if err != nil {
		t.Fatalf("unexpected Post error: %v", err)
	}

	reversal, err := poster.Reverse(ctx, entry, "admin")
	if err != nil {
		t.Fatalf("unexpected Reverse error: %v", err)
	}

	if reversal.ReferenceCode != "INV-1-20250602-REV" {
		t.Fatalf("reversal reference = %q", reversal.ReferenceCode)
	}
	if reversal.Type != model.JournalTypeReversal {
		t.Fatalf("reversal type = %q", reversal.Type)
	}
	if !reversal.Balanced() {
		t.Fatalf("reversal does not balance: %+v", reversal.Lines)
	}

	// Sides are swapped account by account.
	for _, line := range reversal.Lines {
		switch line.Account {
		case "assets:investments:SBUX":
			if line.Side != model.LineSideCredit {
				t.Fatalf("investment leg side = %q, want credit", line.Side)
			}
		case "user:42:cash":
			if line.Side != model.LineSideDebit {
				t.Fatalf("cash leg side = %q, want debit", line.Side)
			}
		default:
			t.Fatalf("unexpected account %q", line.Account)
		}
	}

	// The original entry is untouched.
	original, err := poster.journal.FindByReference(ctx, "INV-1-20250602")
	if err != nil || original == nil {
		t.Fatalf("original entry lost: %v", err)
	}
	if original.Status != model.JournalStatusPosted {
		t.Fatalf("original entry status changed: %q", original.Status)
	}
}

func TestReverseRequiresPosted(t *testing.T) {
	db := newTestDB(t)
	poster := newTestPoster(db)

	draft := &model.JournalEntry{ReferenceCode: "X", Status: model.JournalStatusDraft}
	if _, err := poster.Reverse(context.Background(), draft, "admin"); !errors.Is(err, ErrNotPosted) {
		t.Fatalf("error = %v, want ErrNotPosted", err)
	}
}

func TestFillReference(t *testing.T) {
	filledAt := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	if got := FillReference(17, filledAt); got != "INV-17-20250602" {
		t.Fatalf("FillReference = %q", got)
	}
}
