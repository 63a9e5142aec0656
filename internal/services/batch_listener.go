package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/pipeline"
	"dealer-studio-backend/internal/store"
	"dealer-studio-backend/internal/supabase"
)

type OrderReader interface {
	GetOrder(orderID string) (models.Order, error)
}

type ProgressPublisher interface {
	PublishProgress(row supabase.ProgressRow) error
}

type ImageArchive interface {
	UploadImage(storagePath string, img models.Image) (string, error)
}

type OrderRecorder interface {
	UpsertOrder(order models.Order) error
	CreateOrderFile(file *supabase.OrderFile) error
}

type ListenerOptions struct {
	// Realtime, Storage and Database are optional. A nil dependency skips
	// that part of the archive.
	Realtime ProgressPublisher
	Storage  ImageArchive
	Database OrderRecorder
	Logger   *slog.Logger

	UploadRetries int
	RetryBackoff  time.Duration
}

// BatchListener mirrors a run into Supabase: live progress rows, archived
// output images and their file records. Archive failures are logged and
// never touch job state.
type BatchListener struct {
	orders   OrderReader
	realtime ProgressPublisher
	storage  ImageArchive
	db       OrderRecorder
	logger   *slog.Logger

	uploadRetries int
	retryBackoff  time.Duration
}

func NewBatchListener(orders OrderReader, opts ListenerOptions) *BatchListener {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &BatchListener{
		orders:        orders,
		realtime:      opts.Realtime,
		storage:       opts.Storage,
		db:            opts.Database,
		logger:        logger,
		uploadRetries: opts.UploadRetries,
		retryBackoff:  opts.RetryBackoff,
	}
	if l.uploadRetries <= 0 {
		l.uploadRetries = 3
	}
	if l.retryBackoff <= 0 {
		l.retryBackoff = time.Second
	}
	return l
}

// Consume reads events until the run's channel closes. It keeps reading after
// ctx is done; only pending upload retries are cut short.
func (l *BatchListener) Consume(ctx context.Context, events <-chan pipeline.Event) {
	for ev := range events {
		switch ev.Type {
		case pipeline.EventLog:
			l.publish(ev, store.RunRunning)
		case pipeline.EventJobCompleted:
			l.archiveJob(ctx, ev.OrderID, ev.JobID)
			l.publish(ev, store.RunRunning)
		case pipeline.EventJobFailed:
			l.publish(ev, store.RunRunning)
		case pipeline.EventBatchComplete:
			l.publish(ev, store.RunDrained)
			l.recordOrder(ev.OrderID)
		}
	}
}

func (l *BatchListener) publish(ev pipeline.Event, state store.RunState) {
	if l.realtime == nil {
		return
	}
	row := supabase.ProgressRow{
		OrderID:   ev.OrderID,
		State:     string(state),
		Processed: ev.Processed,
		Total:     ev.Total,
		Percent:   supabase.ProgressPercent(ev.Processed, ev.Total),
		LastJobID: ev.JobID,
		Cancelled: ev.Cancelled,
	}
	if ev.Log != nil {
		row.LastLog = ev.Log.Message
		row.UpdatedAt = ev.Log.At
	}
	if err := l.realtime.PublishProgress(row); err != nil {
		l.logger.Warn("realtime publish failed", "order_id", ev.OrderID, "error", err)
	}
}

func (l *BatchListener) archiveJob(ctx context.Context, orderID, jobID string) {
	if l.storage == nil {
		return
	}
	order, err := l.orders.GetOrder(orderID)
	if err != nil {
		l.logger.Warn("archive skipped, order not readable", "order_id", orderID, "error", err)
		return
	}
	idx := order.JobIndex(jobID)
	if idx < 0 || order.Jobs[idx].ProcessedImage == nil {
		l.logger.Warn("archive skipped, no processed image", "order_id", orderID, "job_id", jobID)
		return
	}
	job := order.Jobs[idx]
	img := *job.ProcessedImage

	path := supabase.ProcessedImagePath(orderID, jobID, img.Extension())
	var url string
	err = supabase.RetryWithBackoff(ctx, func() error {
		var uploadErr error
		url, uploadErr = l.storage.UploadImage(path, img)
		return uploadErr
	}, l.uploadRetries, l.retryBackoff)
	if err != nil {
		l.logger.Error("failed to archive processed image", "order_id", orderID, "job_id", jobID, "error", err)
		return
	}
	l.logger.Info("processed image archived", "order_id", orderID, "job_id", jobID, "path", path)

	if l.db == nil {
		return
	}
	// order_files references orders, so the order row goes first.
	if err := l.db.UpsertOrder(order); err != nil {
		l.logger.Warn("failed to record order", "order_id", orderID, "error", err)
		return
	}
	file := &supabase.OrderFile{
		ID:          uuid.New(),
		OrderID:     orderID,
		JobID:       jobID,
		Angle:       string(job.Angle),
		Category:    string(job.Category),
		StoragePath: path,
		StorageURL:  url,
		FileSize:    int64(len(img.Data)),
		MimeType:    img.MimeType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.db.CreateOrderFile(file); err != nil {
		l.logger.Warn("failed to record order file", "order_id", orderID, "job_id", jobID, "error", err)
	}
}

func (l *BatchListener) recordOrder(orderID string) {
	if l.db == nil {
		return
	}
	order, err := l.orders.GetOrder(orderID)
	if err != nil {
		l.logger.Warn("order not readable after batch", "order_id", orderID, "error", err)
		return
	}
	if err := l.db.UpsertOrder(order); err != nil {
		l.logger.Warn("failed to record order", "order_id", orderID, "error", err)
	}
}
