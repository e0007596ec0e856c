package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Max0Past/passport-api/internal/facedetect"
	"github.com/Max0Past/passport-api/internal/imageutil"
	"github.com/Max0Past/passport-api/internal/logging"
	"github.com/Max0Past/passport-api/internal/ocr"
	"github.com/Max0Past/passport-api/internal/pipeline"
	"github.com/Max0Past/passport-api/internal/repository"
)

// ExtractionRepository defines the persistence operations needed by the use case.
type ExtractionRepository interface {
	SaveLog(ctx context.Context, log *repository.ExtractionLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.ExtractionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
	CountFailuresByKind(ctx context.Context) ([]repository.FailureKindCount, error)
}

// PassportProcessor is the slice of the pipeline the use case depends on.
type PassportProcessor interface {
	Process(ctx context.Context, img image.Image, originalFilename string) (*pipeline.Result, error)
}

// ExtractionOutcome is what the boundary returns for a successful request.
type ExtractionOutcome struct {
	RequestID        string
	PassportID       string
	FaceImage        string // base64-encoded PNG
	OriginalFilename string
}

// cachedExtraction is the JSON payload stored in redis. The face image lives
// only here, with a short TTL; it is never written to the database.
type cachedExtraction struct {
	RequestID  string    `json:"request_id"`
	UserID     string    `json:"user_id"`
	PassportID string    `json:"passport_id"`
	FaceImage  string    `json:"face_image"`
	Filename   string    `json:"filename"`
	Hash       string    `json:"sha1_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExtractionUseCase encapsulates the request-scoped flow around the pipeline:
// dedupe caching by image hash, audit logging, and result lookup.
type ExtractionUseCase struct {
	repo           ExtractionRepository
	cache          Cache
	processor      PassportProcessor
	logger         *zap.Logger
	resultTTL      time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewExtractionUseCase constructs a new use case instance.
func NewExtractionUseCase(repo ExtractionRepository, cache Cache, processor PassportProcessor, logger *zap.Logger) *ExtractionUseCase {
	return &ExtractionUseCase{
		repo:           repo,
		cache:          cache,
		processor:      processor,
		logger:         logger.Named("extraction_usecase"),
		resultTTL:      5 * time.Minute,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// ExtractPassport runs the pipeline for an uploaded image. The pipeline is
// deterministic for identical bytes, so a cached result for the same SHA-1
// is served without re-running OCR and detection. Typed pipeline errors
// propagate unchanged; cache and persistence failures surface as
// OperationError so they are never mistaken for extraction failures.
func (uc *ExtractionUseCase) ExtractPassport(ctx context.Context, userID, filename string, imageBytes []byte) (*ExtractionOutcome, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.extract_passport", requestID)
	started := time.Now()

	hash := sha1.Sum(imageBytes)
	hashHex := hex.EncodeToString(hash[:])
	dedupeKey := fmt.Sprintf("passport:image:%s", hashHex)

	if serialized, err := uc.withRedisGet(ctx, requestID, "cache.get.dedupe", dedupeKey); err == nil {
		var payload cachedExtraction
		if err := json.Unmarshal([]byte(serialized), &payload); err != nil {
			opLogger.Warn("failed to decode cached extraction", zap.Error(err))
		} else {
			opLogger.Info("serving extraction from cache", zap.String("sha1", hashHex))
			outcome := &ExtractionOutcome{
				RequestID:        requestID,
				PassportID:       payload.PassportID,
				FaceImage:        payload.FaceImage,
				OriginalFilename: filename,
			}
			uc.finalize(ctx, opLogger, userID, hashHex, outcome, started)
			return outcome, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read dedupe cache", zap.Error(err))
	}

	img, err := imageutil.Decode(imageBytes)
	if err != nil {
		uc.recordFailure(ctx, opLogger, userID, filename, hashHex, requestID, err, started)
		return nil, err
	}

	result, err := uc.processor.Process(ctx, img, filename)
	if err != nil {
		uc.recordFailure(ctx, opLogger, userID, filename, hashHex, requestID, err, started)
		return nil, err
	}

	faceImage, err := imageutil.ToBase64PNG(result.Face)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.encode_face", requestID, err)
		opLogger.Error("failed to encode face image", zap.Error(wrapped))
		return nil, wrapped
	}

	outcome := &ExtractionOutcome{
		RequestID:        requestID,
		PassportID:       result.PassportID,
		FaceImage:        faceImage,
		OriginalFilename: filename,
	}
	uc.finalize(ctx, opLogger, userID, hashHex, outcome, started)
	return outcome, nil
}

// finalize persists the audit row and caches the outcome under both the
// request ID and the image hash. Failures here are logged but do not fail a
// request whose extraction already succeeded.
func (uc *ExtractionUseCase) finalize(ctx context.Context, opLogger *zap.Logger, userID, hashHex string, outcome *ExtractionOutcome, started time.Time) {
	now := time.Now().UTC()
	log := &repository.ExtractionLog{
		RequestID:        outcome.RequestID,
		UserID:           userID,
		OriginalFilename: outcome.OriginalFilename,
		PassportID:       outcome.PassportID,
		Success:          true,
		SHA1Hash:         hashHex,
		LatencyMs:        time.Since(started).Milliseconds(),
		CreatedAt:        now,
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		opLogger.Error("failed to persist extraction log", zap.Error(err))
	}

	cached := cachedExtraction{
		RequestID:  outcome.RequestID,
		UserID:     userID,
		PassportID: outcome.PassportID,
		FaceImage:  outcome.FaceImage,
		Filename:   outcome.OriginalFilename,
		Hash:       hashHex,
		CreatedAt:  now,
	}
	serialized, err := json.Marshal(cached)
	if err != nil {
		opLogger.Error("failed to serialize extraction result", zap.Error(err))
		return
	}

	resultKey := fmt.Sprintf("passport:extraction:%s", outcome.RequestID)
	dedupeKey := fmt.Sprintf("passport:image:%s", hashHex)
	for _, key := range []string{resultKey, dedupeKey} {
		key := key
		if err := uc.withRedisRetry(ctx, outcome.RequestID, "cache.set.result", func() error {
			return uc.cache.Set(ctx, key, string(serialized), uc.resultTTL)
		}); err != nil {
			opLogger.Error("failed to cache extraction result", zap.Error(err), zap.String("key", key))
		}
	}
}

// recordFailure writes an audit row for a failed request, best effort.
func (uc *ExtractionUseCase) recordFailure(ctx context.Context, opLogger *zap.Logger, userID, filename, hashHex, requestID string, cause error, started time.Time) {
	log := &repository.ExtractionLog{
		RequestID:        requestID,
		UserID:           userID,
		OriginalFilename: filename,
		Success:          false,
		ErrorKind:        ErrorKindLabel(cause),
		SHA1Hash:         hashHex,
		LatencyMs:        time.Since(started).Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		opLogger.Error("failed to persist failure log", zap.Error(err))
	}
}

// GetResult retrieves a cached extraction outcome or loads the audit row from
// persistence. The face image is only available while the cache entry lives.
func (uc *ExtractionUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.ExtractionLog, error) {
	cacheKey := fmt.Sprintf("passport:extraction:%s", requestID)
	if serialized, err := uc.withRedisGet(ctx, requestID, "cache.get.result", cacheKey); err == nil {
		var payload cachedExtraction
		if err := json.Unmarshal([]byte(serialized), &payload); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to decode cached result", zap.Error(err))
		} else {
			log := &repository.ExtractionLog{
				RequestID:        requestID,
				UserID:           userID,
				OriginalFilename: payload.Filename,
				PassportID:       payload.PassportID,
				Success:          true,
				SHA1Hash:         payload.Hash,
				CreatedAt:        payload.CreatedAt,
			}
			if payload.UserID != "" {
				log.UserID = payload.UserID
			}
			if payload.RequestID != "" {
				log.RequestID = payload.RequestID
			}
			return log, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
}

// ErrorKindLabel maps a pipeline error to the stable label persisted in the
// audit log, matched in taxonomy order.
func ErrorKindLabel(err error) string {
	switch {
	case errors.Is(err, imageutil.ErrUnreadableImage):
		return "unreadable_image"
	case errors.Is(err, imageutil.ErrUnsupportedFileType):
		return "unsupported_file_type"
	case errors.Is(err, ocr.ErrNoTextDetected):
		return "no_text_detected"
	case errors.Is(err, ocr.ErrIdentifierNotFound):
		return "identifier_not_found"
	case errors.Is(err, facedetect.ErrNoFaceDetected):
		return "no_face_detected"
	case errors.Is(err, facedetect.ErrMultipleFacesDetected):
		return "multiple_faces_detected"
	case errors.Is(err, facedetect.ErrEmptyCropRegion):
		return "empty_crop_region"
	case errors.Is(err, facedetect.ErrFaceLocator):
		return "face_locator_error"
	default:
		return "pipeline_failure"
	}
}

func (uc *ExtractionUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *ExtractionUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
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
