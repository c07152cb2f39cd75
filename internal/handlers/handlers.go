package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/leafscan/internal/auth"
	"github.com/example/leafscan/internal/imageprocessor"
	"github.com/example/leafscan/internal/repository"
	"github.com/example/leafscan/internal/usecase"
	"github.com/example/leafscan/internal/web"
)

// MaxUploadSize is the default upload limit for a leaf image.
const MaxUploadSize = 10 << 20

// multipartOverhead is allowed on top of the image for form boundaries and headers.
const multipartOverhead = 64 << 10

// Messages shown on the scanner page.
const (
	msgNoImage     = "No image uploaded"
	msgTooLarge    = "Image is too large"
	msgUnsupported = "Unsupported file type. Please upload an image."
	msgUnreadable  = "The uploaded file could not be read as an image."
	msgFailed      = "Could not analyze the image. Please try again."
)

// ScanService is the use case surface the handlers need.
type ScanService interface {
	Identify(ctx context.Context, filename, contentType string, data []byte) (*usecase.ScanResult, error)
	GetScan(ctx context.Context, scanID string) (*usecase.ScanResult, error)
	GetDuplicateReport(ctx context.Context, scanID string) (*usecase.DuplicateReport, error)
	Stats(ctx context.Context) (*usecase.StatsSummary, error)
}

// Options tune route registration.
type Options struct {
	Logger         *zap.Logger
	MaxUploadBytes int64
	StaticDir      string
	Metrics        http.Handler
}

type handler struct {
	svc       ScanService
	logger    *zap.Logger
	maxUpload int64
}

// RegisterRoutes wires the pages, the identify endpoint and the JSON API to
// the Gin router.
func RegisterRoutes(router *gin.Engine, svc ScanService, authMiddleware gin.HandlerFunc, opts Options) error {
	tmpl, err := web.Templates()
	if err != nil {
		return err
	}
	router.SetHTMLTemplate(tmpl)

	h := &handler{svc: svc, logger: opts.Logger, maxUpload: opts.MaxUploadBytes}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.maxUpload <= 0 {
		h.maxUpload = MaxUploadSize
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	if opts.StaticDir != "" {
		router.Static("/static", opts.StaticDir)
	}

	router.GET("/", h.page("landing.html", "Home"))
	router.GET("/scanner", h.page("index.html", "Scanner"))
	router.GET("/about", h.page("about.html", "About"))
	router.POST("/identify", h.identify)

	api := router.Group("/api")
	api.Use(authMiddleware)
	{
		api.GET("/scans/:id", h.getScan)
		api.GET("/scans/:id/duplicates", h.getDuplicates)
		api.GET("/stats", h.stats)
	}
	return nil
}

func (h *handler) page(name, title string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, name, gin.H{"Title": title, "ClassCount": len(imageprocessor.Labels)})
	}
}

func (h *handler) scannerError(c *gin.Context, status int, message string) {
	c.HTML(status, "index.html", gin.H{"Title": "Scanner", "Error": message})
}

func (h *handler) identify(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.scannerError(c, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		h.scannerError(c, http.StatusBadRequest, msgNoImage)
		return
	}
	if file.Size > h.maxUpload {
		h.scannerError(c, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	}

	src, err := file.Open()
	if err != nil {
		h.scannerError(c, http.StatusBadRequest, msgNoImage)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		h.logger.Error("failed to read upload", zap.Error(err))
		h.scannerError(c, http.StatusInternalServerError, msgFailed)
		return
	}
	if len(data) == 0 {
		h.scannerError(c, http.StatusBadRequest, msgNoImage)
		return
	}

	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") || !strings.HasPrefix(http.DetectContentType(data), "image/") {
		h.scannerError(c, http.StatusUnsupportedMediaType, msgUnsupported)
		return
	}

	result, err := h.svc.Identify(c.Request.Context(), file.Filename, contentType, data)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidImage) {
			h.scannerError(c, http.StatusUnprocessableEntity, msgUnreadable)
			return
		}
		h.logger.Error("identify failed", zap.Error(err))
		h.scannerError(c, http.StatusInternalServerError, msgFailed)
		return
	}

	c.HTML(http.StatusOK, "result.html", gin.H{"Title": result.DisplayName, "Scan": result})
}

func (h *handler) getScan(c *gin.Context) {
	result, err := h.svc.GetScan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) getDuplicates(c *gin.Context) {
	report, err := h.svc.GetDuplicateReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scan": report.Scan, "duplicates": report.Duplicates})
}

func (h *handler) stats(c *gin.Context) {
	summary, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) apiError(c *gin.Context, err error) {
	client, _ := auth.Subject(c.Request.Context())
	if errors.Is(err, repository.ErrNotFound) {
		h.logger.Debug("scan not found", zap.String("client", client), zap.String("id", c.Param("id")))
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}
	h.logger.Error("api request failed",
		zap.String("client", client),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
