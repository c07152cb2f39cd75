package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/leafscan/internal/retry"
)

// ErrNotFound is returned when no scan matches.
var ErrNotFound = errors.New("scan not found")

// ScanLog represents a persisted leaf scan.
type ScanLog struct {
	ID          uint      `gorm:"primaryKey"`
	ScanID      string    `gorm:"column:scan_id;uniqueIndex;size:64"`
	Class       string    `gorm:"column:class;size:128;index"`
	Confidence  float64   `gorm:"column:confidence"`
	ImageURL    string    `gorm:"column:image_url;type:text"`
	SHA1Hash    string    `gorm:"column:sha1_hash;size:40;index"`
	Description string    `gorm:"column:description;type:text"`
	Treatments  string    `gorm:"column:treatments;type:text"`
	LatencyMs   int64     `gorm:"column:latency_ms"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ScanLog) TableName() string {
	return "scan_logs"
}

// StatsAggregation is the raw aggregate over all scans.
type StatsAggregation struct {
	TotalCount        int64
	HealthyCount      int64
	AverageConfidence float64
	AverageLatencyMs  float64
}

// ScanRepository provides persistence APIs for scan logs.
type ScanRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewScanRepository creates a new repository instance.
func NewScanRepository(db *gorm.DB, logger *zap.Logger) *ScanRepository {
	return &ScanRepository{db: db, logger: logger.Named("scan_repository"), policy: retry.Default}
}

// AutoMigrate ensures the schema is available.
func (r *ScanRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ScanLog{})
}

// SaveScan persists a scan, retrying transient database errors.
func (r *ScanRepository) SaveScan(ctx context.Context, log *ScanLog) error {
	return r.executeWithRetry(ctx, "repository.save_scan", log.ScanID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByScanID retrieves a scan by its public identifier.
func (r *ScanRepository) FindByScanID(ctx context.Context, scanID string) (*ScanLog, error) {
	var log ScanLog
	err := r.db.WithContext(ctx).First(&log, "scan_id = ?", scanID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindDuplicatesByHash lists earlier scans of the same image bytes.
func (r *ScanRepository) FindDuplicatesByHash(ctx context.Context, hash, excludeScanID string) ([]*ScanLog, error) {
	var logs []*ScanLog
	err := r.db.WithContext(ctx).
		Where("sha1_hash = ? AND scan_id <> ?", hash, excludeScanID).
		Order("created_at desc").
		Limit(20).
		Find(&logs).Error
	return logs, err
}

// AggregateStats computes totals and averages over every scan.
func (r *ScanRepository) AggregateStats(ctx context.Context) (*StatsAggregation, error) {
	var row struct {
		TotalCount        int64
		HealthyCount      int64
		AverageConfidence float64
		AverageLatencyMs  float64
	}
	err := r.db.WithContext(ctx).Model(&ScanLog{}).
		Select("COUNT(*) AS total_count, " +
			"COALESCE(SUM(CASE WHEN class LIKE '%healthy' THEN 1 ELSE 0 END), 0) AS healthy_count, " +
			"COALESCE(AVG(confidence), 0) AS average_confidence, " +
			"COALESCE(AVG(latency_ms), 0) AS average_latency_ms").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &StatsAggregation{
		TotalCount:        row.TotalCount,
		HealthyCount:      row.HealthyCount,
		AverageConfidence: row.AverageConfidence,
		AverageLatencyMs:  row.AverageLatencyMs,
	}, nil
}

func (r *ScanRepository) executeWithRetry(ctx context.Context, operation, scanID string, fn func() error) error {
	return r.policy.Do(ctx, r.logger, operation, scanID, fn)
}
