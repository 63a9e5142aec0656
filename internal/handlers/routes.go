package handlers

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/middleware"
	"dealer-studio-backend/internal/pipeline"
	"dealer-studio-backend/internal/store"
	"dealer-studio-backend/internal/studio"
)

// Deps is everything the HTTP layer needs. Consumer, Orders, Files and
// Archive may be nil when archiving is not configured.
type Deps struct {
	// RunCtx bounds background batches; cancel it on shutdown.
	RunCtx       context.Context
	Store        *store.Store
	Orchestrator *pipeline.Orchestrator
	Catalog      *studio.Catalog
	Classifier   AngleClassifier
	Consumer     EventConsumer
	Orders       OrderArchive
	Files        FileArchive
	Archive      FileLister

	ClassifyTimeout time.Duration
	MaxUploadBytes  int64
	PollInterval    time.Duration
	Logger          *slog.Logger
}

// NewRouter builds the engine with every route mounted under /api/v1.
func NewRouter(d Deps) *gin.Engine {
	if d.RunCtx == nil {
		d.RunCtx = context.Background()
	}

	orders := NewOrdersHandler(d.Store, d.Orders, d.Files, d.Logger)
	upload := NewUploadHandler(d.Store, d.MaxUploadBytes)
	images := NewImagesHandler(d.Store)
	process := NewProcessHandler(d.RunCtx, d.Store, d.Orchestrator, d.Consumer, d.Logger)
	status := NewStatusHandler(d.Store, d.PollInterval)
	files := NewFilesHandler(d.Archive)
	studios := NewStudiosHandler(d.Catalog)
	branding := NewBrandingHandler(d.Store, d.MaxUploadBytes)
	classify := NewClassifyHandler(d.Classifier, d.ClassifyTimeout, d.MaxUploadBytes)

	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))
	r.Use(gin.Recovery())
	if d.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = d.MaxUploadBytes
	}

	r.GET("/health", HealthHandler)

	api := r.Group("/api/v1")

	api.GET("/studios", studios.ListStudios)
	api.GET("/branding", branding.GetBranding)
	api.PUT("/branding", branding.UpdateBranding)
	api.POST("/classify", classify.Classify)

	// Orders
	api.POST("/orders", orders.CreateOrder)
	api.GET("/orders", orders.ListOrders)
	api.GET("/orders/:order_id", orders.GetOrder)
	api.DELETE("/orders/:order_id", orders.DeleteOrder)
	api.PUT("/orders/:order_id/studio", orders.SetStudio)

	// Jobs
	api.POST("/orders/:order_id/jobs", upload.Upload)
	api.POST("/orders/:order_id/jobs/:job_id/retry", upload.Retry)
	api.GET("/orders/:order_id/jobs/:job_id/image", images.GetImage)

	// Processing
	api.POST("/orders/:order_id/process", process.Process)
	api.POST("/orders/:order_id/cancel", process.Cancel)
	api.GET("/orders/:order_id/progress", status.GetProgress)
	api.GET("/orders/:order_id/events", status.Events)
	api.GET("/orders/:order_id/files", files.GetFiles)

	return r
}
