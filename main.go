package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Max0Past/passport-api/internal/auth"
	"github.com/Max0Past/passport-api/internal/facedetect"
	"github.com/Max0Past/passport-api/internal/handlers"
	"github.com/Max0Past/passport-api/internal/logging"
	"github.com/Max0Past/passport-api/internal/ocr"
	"github.com/Max0Past/passport-api/internal/ocr/tesseract"
	"github.com/Max0Past/passport-api/internal/pipeline"
	"github.com/Max0Past/passport-api/internal/repository"
	"github.com/Max0Past/passport-api/internal/usecase"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	db := initDatabase(ctx, logger)
	repo := repository.NewExtractionRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, logger)

	// Capability providers are constructed once and shared across requests.
	engine := tesseract.NewEngine(splitList(getEnv("OCR_LANGUAGES", "eng"))...)
	detector := initDetector(logger)
	extractor := ocr.NewExtractor(ocr.ExtractorConfig{
		Keywords:     splitList(os.Getenv("PASSPORT_ID_KEYWORDS")),
		SearchWindow: getEnvInt("PASSPORT_ID_SEARCH_WINDOW", 0),
	})

	processor := pipeline.NewProcessor(engine, detector, extractor, pipeline.Config{
		MaxWidth:        getEnvInt("PIPELINE_MAX_WIDTH", 0),
		MaxHeight:       getEnvInt("PIPELINE_MAX_HEIGHT", 0),
		PaddingFraction: getEnvFloat("FACE_PADDING_FRACTION", 0),
	}, logger)

	cache := usecase.NewRedisCache(redisClient)
	uc := usecase.NewExtractionUseCase(repo, cache, processor, logger)

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize

	jwtSecret := getEnv("JWT_SECRET", "dev-secret")
	jwtAudience := os.Getenv("JWT_AUDIENCE")
	authMiddleware := auth.JWTMiddleware(jwtSecret, jwtAudience)

	handlers.RegisterRoutes(r, uc, authMiddleware)

	server := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	logger.Info("passport API listening",
		zap.String("addr", ":8080"),
		zap.String("ocr_engine", engine.Name()),
		zap.String("face_detector", detector.Name()))
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, zapLogger *zap.Logger) *gorm.DB {
	dsn := getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=passport port=5432 sslmode=disable")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, zapLogger *zap.Logger) *redis.Client {
	addr := getEnv("REDIS_ADDR", "redis:6379")
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

// initDetector loads the binary face cascade and unpacks it. A missing or
// corrupt cascade is fatal to startup, not a per-request failure.
func initDetector(zapLogger *zap.Logger) facedetect.Detector {
	cascadePath := getEnv("FACE_CASCADE_PATH", "cascade/facefinder")
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		zapLogger.Fatal("failed to read face cascade", zap.Error(err), zap.String("path", cascadePath))
	}
	detector, err := facedetect.NewPigoDetector(cascade)
	if err != nil {
		zapLogger.Fatal("failed to initialize face detector", zap.Error(err), zap.String("path", cascadePath))
	}
	return detector
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
