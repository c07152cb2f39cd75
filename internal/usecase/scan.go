package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/leafscan/internal/advisor"
	"github.com/example/leafscan/internal/imageprocessor"
	"github.com/example/leafscan/internal/logging"
	"github.com/example/leafscan/internal/repository"
	"github.com/example/leafscan/internal/retry"
	"github.com/example/leafscan/internal/storage"
)

// ErrInvalidImage is returned when the upload cannot be decoded as an image.
var ErrInvalidImage = errors.New("uploaded file is not a readable image")

// ScanRepository defines the persistence operations needed by the use case.
type ScanRepository interface {
	SaveScan(ctx context.Context, log *repository.ScanLog) error
	FindByScanID(ctx context.Context, scanID string) (*repository.ScanLog, error)
	FindDuplicatesByHash(ctx context.Context, hash, excludeScanID string) ([]*repository.ScanLog, error)
	AggregateStats(ctx context.Context) (*repository.StatsAggregation, error)
}

// DetailsProvider looks up disease descriptions and treatments. On error the
// returned Details is a placeholder for display only.
type DetailsProvider interface {
	Lookup(ctx context.Context, class string) (advisor.Details, error)
}

// ScanResult is everything the result page and the JSON API show.
type ScanResult struct {
	ScanID      string          `json:"scan_id"`
	Class       string          `json:"class"`
	DisplayName string          `json:"display_name"`
	Confidence  float64         `json:"confidence"`
	Healthy     bool            `json:"healthy"`
	ImageURL    string          `json:"image_url"`
	SHA1Hash    string          `json:"sha1_hash"`
	Details     advisor.Details `json:"details"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ConfidencePercent renders the confidence as shown on the result page.
func (r *ScanResult) ConfidencePercent() string {
	return fmt.Sprintf("%.2f%%", r.Confidence*100)
}

// DuplicateReport lists earlier scans of the same image.
type DuplicateReport struct {
	Scan       *ScanResult
	Duplicates []*ScanResult
}

// ScanUseCase encapsulates business logic for the identify flow.
type ScanUseCase struct {
	repo       ScanRepository
	cache      jsonCache
	classifier imageprocessor.Client
	store      storage.Store
	advisor    DetailsProvider
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewScanUseCase constructs a new use case instance. metrics may be nil.
func NewScanUseCase(repo ScanRepository, cache Cache, classifier imageprocessor.Client, store storage.Store, details DetailsProvider, metrics *Metrics, logger *zap.Logger) *ScanUseCase {
	logger = logger.Named("scan_usecase")
	return &ScanUseCase{
		repo:       repo,
		cache:      jsonCache{cache: cache, policy: retry.Default, logger: logger},
		classifier: classifier,
		store:      store,
		advisor:    details,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Identify classifies an uploaded leaf image, stores it, fetches disease
// details and records the scan.
func (uc *ScanUseCase) Identify(ctx context.Context, filename, contentType string, data []byte) (*ScanResult, error) {
	start := uc.now()
	scanID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.identify", scanID)

	result, err := uc.identify(ctx, scanID, filename, contentType, data)
	elapsed := uc.now().Sub(start)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrInvalidImage) {
			outcome = "invalid_image"
		}
		uc.metrics.observe(outcome, "", elapsed)
		opLogger.Error("identify failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}
	uc.metrics.observe("ok", result.Class, elapsed)
	opLogger.Info("scan identified",
		zap.String("class", result.Class),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

func (uc *ScanUseCase) identify(ctx context.Context, scanID, filename, contentType string, data []byte) (*ScanResult, error) {
	start := uc.now()
	prepared, err := imageprocessor.Preprocess(data)
	if err != nil {
		return nil, logging.NewOperationError("usecase.preprocess", scanID, fmt.Errorf("%w: %v", ErrInvalidImage, err))
	}

	prediction, err := uc.classifier.Predict(ctx, scanID, prepared)
	if err != nil {
		return nil, logging.NewOperationError("usecase.predict", scanID, err)
	}

	imageURL, err := uc.store.Save(ctx, filename, contentType, data)
	if err != nil {
		return nil, logging.NewOperationError("usecase.store_image", scanID, err)
	}

	details := uc.lookupDetails(ctx, scanID, prediction.Class)

	hash := sha1.Sum(data)
	result := &ScanResult{
		ScanID:      scanID,
		Class:       prediction.Class,
		DisplayName: prediction.DisplayName(),
		Confidence:  prediction.Confidence,
		Healthy:     isHealthy(prediction.Class),
		ImageURL:    imageURL,
		SHA1Hash:    hex.EncodeToString(hash[:]),
		Details:     details,
		CreatedAt:   uc.now().UTC(),
	}

	treatments, err := json.Marshal(details.Treatments)
	if err != nil {
		return nil, logging.NewOperationError("usecase.encode_treatments", scanID, err)
	}
	log := &repository.ScanLog{
		ScanID:      scanID,
		Class:       result.Class,
		Confidence:  result.Confidence,
		ImageURL:    result.ImageURL,
		SHA1Hash:    result.SHA1Hash,
		Description: details.Description,
		Treatments:  string(treatments),
		LatencyMs:   uc.now().Sub(start).Milliseconds(),
		CreatedAt:   result.CreatedAt,
	}
	if err := uc.repo.SaveScan(ctx, log); err != nil {
		return nil, logging.NewOperationError("usecase.save_scan", scanID, err)
	}

	uc.cache.save(ctx, "cache.set.scan", scanID, scanKey(scanID), result, scanTTL)
	return result, nil
}

// lookupDetails serves details from the cache and only caches real answers,
// so an advisor outage does not pin a placeholder for detailsTTL.
func (uc *ScanUseCase) lookupDetails(ctx context.Context, scanID, class string) advisor.Details {
	key := detailsKey(class)
	var details advisor.Details
	if uc.cache.load(ctx, "cache.get.details", scanID, key, &details) {
		return details
	}

	details, err := uc.advisor.Lookup(ctx, class)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.lookup_details", scanID).Warn("disease details unavailable",
			zap.String("class", class), zap.Error(err))
		return details
	}
	uc.cache.save(ctx, "cache.set.details", scanID, key, details, detailsTTL)
	return details
}

// GetScan retrieves a cached scan or loads it from persistence.
func (uc *ScanUseCase) GetScan(ctx context.Context, scanID string) (*ScanResult, error) {
	var cached ScanResult
	if uc.cache.load(ctx, "cache.get.scan", scanID, scanKey(scanID), &cached) {
		return &cached, nil
	}

	log, err := uc.repo.FindByScanID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return fromLog(log), nil
}

// GetDuplicateReport finds earlier scans of the same image bytes.
func (uc *ScanUseCase) GetDuplicateReport(ctx context.Context, scanID string) (*DuplicateReport, error) {
	log, err := uc.repo.FindByScanID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, log.SHA1Hash, log.ScanID)
	if err != nil {
		return nil, err
	}

	report := &DuplicateReport{Scan: fromLog(log)}
	for _, d := range duplicates {
		report.Duplicates = append(report.Duplicates, fromLog(d))
	}
	return report, nil
}

func fromLog(log *repository.ScanLog) *ScanResult {
	var treatments []string
	_ = json.Unmarshal([]byte(log.Treatments), &treatments)
	return &ScanResult{
		ScanID:      log.ScanID,
		Class:       log.Class,
		DisplayName: imageprocessor.DisplayName(log.Class),
		Confidence:  log.Confidence,
		Healthy:     isHealthy(log.Class),
		ImageURL:    log.ImageURL,
		SHA1Hash:    log.SHA1Hash,
		Details:     advisor.Details{Description: log.Description, Treatments: treatments},
		CreatedAt:   log.CreatedAt,
	}
}
