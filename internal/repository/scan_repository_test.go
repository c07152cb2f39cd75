package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/leafscan/internal/logging"
	"github.com/example/leafscan/internal/retry"
)

func newTestRepository(t *testing.T) *ScanRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "scans.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo := NewScanRepository(db, zap.NewNop())
	if err := repo.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return repo
}

func TestSaveAndFindScan(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	log := &ScanLog{ScanID: "scan-1", Class: "Tomato___Late_blight", Confidence: 0.9, SHA1Hash: "abc", CreatedAt: time.Now().UTC()}
	if err := repo.SaveScan(ctx, log); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}

	found, err := repo.FindByScanID(ctx, "scan-1")
	if err != nil {
		t.Fatalf("FindByScanID: %v", err)
	}
	if found.Class != log.Class || found.Confidence != log.Confidence {
		t.Fatalf("unexpected scan: %+v", found)
	}

	if _, err := repo.FindByScanID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindDuplicatesByHashExcludesSelf(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		hash := "same"
		if id == "c" {
			hash = "other"
		}
		err := repo.SaveScan(ctx, &ScanLog{ScanID: id, SHA1Hash: hash, CreatedAt: time.Unix(int64(i), 0)})
		if err != nil {
			t.Fatalf("SaveScan(%s): %v", id, err)
		}
	}

	dups, err := repo.FindDuplicatesByHash(ctx, "same", "b")
	if err != nil {
		t.Fatalf("FindDuplicatesByHash: %v", err)
	}
	if len(dups) != 1 || dups[0].ScanID != "a" {
		t.Fatalf("expected only scan a, got %+v", dups)
	}
}

func TestAggregateStats(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	scans := []*ScanLog{
		{ScanID: "1", Class: "Apple___healthy", Confidence: 0.8, LatencyMs: 100},
		{ScanID: "2", Class: "Apple___Black_rot", Confidence: 0.6, LatencyMs: 300},
	}
	for _, s := range scans {
		if err := repo.SaveScan(ctx, s); err != nil {
			t.Fatalf("SaveScan: %v", err)
		}
	}

	stats, err := repo.AggregateStats(ctx)
	if err != nil {
		t.Fatalf("AggregateStats: %v", err)
	}
	if stats.TotalCount != 2 || stats.HealthyCount != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.AverageLatencyMs != 200 {
		t.Fatalf("unexpected latency: %v", stats.AverageLatencyMs)
	}
}

func TestExecuteWithRetryReturnsOperationError(t *testing.T) {
	repo := &ScanRepository{
		logger: zap.NewNop(),
		policy: retry.Policy{Attempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "scan-2", func() error {
		attempts++
		return errors.New("boom")
	})
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.ScanID != "scan-2" {
		t.Fatalf("expected OperationError for scan-2, got %v", err)
	}
}
