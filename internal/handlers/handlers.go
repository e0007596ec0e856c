package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Max0Past/passport-api/internal/auth"
	"github.com/Max0Past/passport-api/internal/facedetect"
	"github.com/Max0Past/passport-api/internal/imageutil"
	"github.com/Max0Past/passport-api/internal/ocr"
	"github.com/Max0Past/passport-api/internal/usecase"
)

// MaxUploadSize caps uploaded passport images at 10 MiB.
const MaxUploadSize = 10 << 20

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.ExtractionUseCase, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1", authMiddleware)
	api.POST("/passport", uploadPassport(uc))
	api.GET("/extractions/:id", getExtraction(uc))
	api.GET("/metrics", getMetrics(uc))
}

func uploadPassport(uc *usecase.ExtractionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided in upload request"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "uploaded file exceeds the 10 MiB limit"})
			return
		}
		if err := imageutil.ValidateFilename(file.Filename); err != nil {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open uploaded file"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read uploaded file"})
			return
		}
		if len(data) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "uploaded file is empty"})
			return
		}

		outcome, err := uc.ExtractPassport(c.Request.Context(), userID, file.Filename, data)
		if err != nil {
			status := statusForError(err)
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":  outcome.RequestID,
			"passport_id": outcome.PassportID,
			"face_image":  outcome.FaceImage,
		})
	}
}

func getExtraction(uc *usecase.ExtractionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		log, err := uc.GetResult(c.Request.Context(), userID, requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":  log.RequestID,
			"user_id":     log.UserID,
			"filename":    log.OriginalFilename,
			"passport_id": log.PassportID,
			"success":     log.Success,
			"error_kind":  log.ErrorKind,
			"created_at":  log.CreatedAt,
		})
	}
}

func getMetrics(uc *usecase.ExtractionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// statusForError maps the typed error taxonomy to HTTP statuses: upload and
// decode problems are the client's fault (400), extraction failures mean the
// image was readable but unusable (422), everything else is a server fault
// (500). Matched in order with a final catch-all arm.
func statusForError(err error) int {
	switch {
	case errors.Is(err, imageutil.ErrUnreadableImage):
		return http.StatusBadRequest
	case errors.Is(err, imageutil.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ocr.ErrNoTextDetected),
		errors.Is(err, ocr.ErrIdentifierNotFound),
		errors.Is(err, facedetect.ErrNoFaceDetected),
		errors.Is(err, facedetect.ErrMultipleFacesDetected),
		errors.Is(err, facedetect.ErrEmptyCropRegion),
		errors.Is(err, facedetect.ErrFaceLocator):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
