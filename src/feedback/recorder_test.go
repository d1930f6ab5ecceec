package feedback

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

func newTestRecorder(db *gorm.DB) *Recorder {
	return NewRecorder(
		repository.NewMappingRepository().WithDB(db),
		repository.NewAttemptRepository().WithDB(db),
		repository.NewFeedbackRepository().WithDB(db),
	)
}

func seedMappingWithAttempt(t *testing.T, db *gorm.DB, status string) *model.Mapping {
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
		Status:        status,
		AdminDecision: model.DecisionApproved,
	}
	if err := db.Create(mapping).Error; err != nil {
		t.Fatalf("failed to seed mapping: %v", err)
	}

	attempt := &model.ClassificationAttempt{
		MappingID:    mapping.ID,
		Prompt:       "p",
		RawResponse:  `{"ticker": "SBUX"}`,
		Ticker:       "SBUX",
		Confidence:   0.97,
		ModelVersion: "test-model",
	}
	if err := db.Create(attempt).Error; err != nil {
		t.Fatalf("failed to seed attempt: %v", err)
	}
	return mapping
}

func TestRecord(t *testing.T) {
	db := newTestDB(t)
	recorder := newTestRecorder(db)
	ctx := context.Background()

	mapping := seedMappingWithAttempt(t, db, model.MappingStatusRejected)

	err := recorder.Record(ctx, mapping.ID, false, "COST", "actually a Costco food court")
	if err != nil {
		t.Fatalf("unexpected record error: %v", err)
	}

	var records []model.FeedbackRecord
	if err := db.Where("mapping_id = ?", mapping.ID).Find(&records).Error; err != nil {
		t.Fatalf("failed to load feedback: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 feedback record, got %d", len(records))
	}

	record := records[0]
	if record.ClassifierCorrect || record.CorrectedTicker != "COST" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.AttemptID == 0 {
		t.Fatal("expected the record to reference the attempt")
	}

	// Feedback never mutates the mapping it criticizes.
	var reloaded model.Mapping
	if err := db.First(&reloaded, mapping.ID).Error; err != nil {
		t.Fatalf("failed to reload mapping: %v", err)
	}
	if reloaded.Ticker != "SBUX" || reloaded.Status != model.MappingStatusRejected {
		t.Fatalf("mapping was mutated by feedback: %+v", reloaded)
	}
}

func TestRecordAppendsMultiple(t *testing.T) {
	db := newTestDB(t)
	recorder := newTestRecorder(db)
	ctx := context.Background()

	mapping := seedMappingWithAttempt(t, db, model.MappingStatusApproved)

	if err := recorder.Record(ctx, mapping.ID, true, "", "first look"); err != nil {
		t.Fatalf("unexpected record error: %v", err)
	}
	if err := recorder.Record(ctx, mapping.ID, true, "", "second look"); err != nil {
		t.Fatalf("unexpected record error: %v", err)
	}

	var count int64
	if err := db.Model(&model.FeedbackRecord{}).Where("mapping_id = ?", mapping.ID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count feedback: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 feedback records, got %d", count)
	}
}

func TestRecordGuards(t *testing.T) {
	db := newTestDB(t)
	recorder := newTestRecorder(db)
	ctx := context.Background()

	t.Run("unknown mapping", func(t *testing.T) {
		if err := recorder.Record(ctx, 9999, true, "", ""); !errors.Is(err, ErrMappingNotFound) {
			t.Fatalf("error = %v, want ErrMappingNotFound", err)
		}
	})

	t.Run("mapping still in flight", func(t *testing.T) {
		mapping := seedMappingWithAttempt(t, db, model.MappingStatusPendingClassification)

		err := recorder.Record(ctx, mapping.ID, true, "", "")
		if !errors.Is(err, ErrNotReviewable) {
			t.Fatalf("error = %v, want ErrNotReviewable", err)
		}

		var count int64
		if err := db.Model(&model.FeedbackRecord{}).Count(&count).Error; err != nil {
			t.Fatalf("failed to count feedback: %v", err)
		}
		if count != 0 {
			t.Fatalf("rejected record left side effects: %d rows", count)
		}
	})

	t.Run("mapping without attempts", func(t *testing.T) {
		txn := &model.Transaction{
			AccountID:  7,
			Merchant:   "NO ATTEMPTS LLC",
			Amount:     decimal.RequireFromString("1.00"),
			Currency:   "USD",
			OccurredAt: time.Now().UTC(),
		}
		if err := db.Create(txn).Error; err != nil {
			t.Fatalf("failed to seed transaction: %v", err)
		}
		mapping := &model.Mapping{
			TransactionID: txn.ID,
			MerchantName:  txn.Merchant,
			Source:        model.SourceUserInitiated,
			Status:        model.MappingStatusApproved,
		}
		if err := db.Create(mapping).Error; err != nil {
			t.Fatalf("failed to seed mapping: %v", err)
		}

		if err := recorder.Record(ctx, mapping.ID, true, "", ""); !errors.Is(err, ErrNoAttempt) {
			t.Fatalf("error = %v, want ErrNoAttempt", err)
		}
	})
}
