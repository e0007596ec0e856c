package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Max0Past/passport-api/internal/logging"
)

// ExtractionLog is a persisted record of one extraction request. The face
// image itself is never stored; only the identifier and outcome metadata are.
type ExtractionLog struct {
	ID               uint      `gorm:"primaryKey"`
	RequestID        string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID           string    `gorm:"column:user_id;size:64;index"`
	OriginalFilename string    `gorm:"column:original_filename;size:255"`
	PassportID       string    `gorm:"column:passport_id;size:16"`
	Success          bool      `gorm:"column:success"`
	ErrorKind        string    `gorm:"column:error_kind;size:32"`
	SHA1Hash         string    `gorm:"column:sha1_hash;size:40;index"`
	LatencyMs        int64     `gorm:"column:latency_ms"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ExtractionLog) TableName() string {
	return "extraction_logs"
}

// MetricsAggregation holds the aggregate values computed over the log table.
type MetricsAggregation struct {
	TotalCount                 int64   `gorm:"column:total_count"`
	SuccessCount               int64   `gorm:"column:success_count"`
	AverageProcessingLatencyMs float64 `gorm:"column:average_processing_latency_ms"`
}

// FailureKindCount is one row of the failure breakdown.
type FailureKindCount struct {
	ErrorKind string `gorm:"column:error_kind" json:"error_kind"`
	Count     int64  `gorm:"column:count" json:"count"`
}

// ExtractionRepository provides persistence APIs for extraction logs.
type ExtractionRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewExtractionRepository creates a new repository instance.
func NewExtractionRepository(db *gorm.DB, logger *zap.Logger) *ExtractionRepository {
	return &ExtractionRepository{
		db:             db,
		logger:         logger.Named("extraction_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ExtractionRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ExtractionLog{})
}

// SaveLog persists an extraction log entry, retrying transient failures.
func (r *ExtractionRepository) SaveLog(ctx context.Context, log *ExtractionLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndUser retrieves the log matching the request and owner.
func (r *ExtractionRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*ExtractionLog, error) {
	var log ExtractionLog
	if err := r.db.WithContext(ctx).First(&log, "request_id = ? AND user_id = ?", requestID, userID).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes totals over the whole log table.
func (r *ExtractionRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.db.WithContext(ctx).
		Model(&ExtractionLog{}).
		Select("count(*) as total_count, " +
			"coalesce(sum(case when success then 1 else 0 end), 0) as success_count, " +
			"coalesce(avg(latency_ms), 0) as average_processing_latency_ms").
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// CountFailuresByKind breaks failed requests down by error kind.
func (r *ExtractionRepository) CountFailuresByKind(ctx context.Context) ([]FailureKindCount, error) {
	var rows []FailureKindCount
	err := r.db.WithContext(ctx).
		Model(&ExtractionLog{}).
		Select("error_kind, count(*) as count").
		Where("success = ? AND error_kind <> ''", false).
		Group("error_kind").
		Order("count desc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ExtractionRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
