// Package pipeline runs an order's pending jobs through classification,
// routing and generation, one job at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"dealer-studio-backend/internal/classifier"
	"dealer-studio-backend/internal/generator"
	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/router"
	"dealer-studio-backend/internal/store"
)

const (
	DefaultClassifyTimeout = 30 * time.Second
	DefaultGenerateTimeout = 150 * time.Second
)

type Classifier interface {
	Classify(ctx context.Context, img models.Image) classifier.Classification
}

type Generator interface {
	Generate(ctx context.Context, req generator.Request) (models.Image, error)
}

type PlateSource interface {
	Plate(ctx context.Context, studioID string) (models.Image, error)
}

type Options struct {
	ClassifyTimeout time.Duration
	GenerateTimeout time.Duration
	Logger          *slog.Logger
}

type Orchestrator struct {
	store      *store.Store
	classifier Classifier
	generator  Generator
	plates     PlateSource
	logger     *slog.Logger

	classifyTimeout time.Duration
	generateTimeout time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(st *store.Store, cls Classifier, gen Generator, plates PlateSource, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o := &Orchestrator{
		store:           st,
		classifier:      cls,
		generator:       gen,
		plates:          plates,
		logger:          logger,
		classifyTimeout: opts.ClassifyTimeout,
		generateTimeout: opts.GenerateTimeout,
		cancels:         make(map[string]context.CancelFunc),
	}
	if o.classifyTimeout <= 0 {
		o.classifyTimeout = DefaultClassifyTimeout
	}
	if o.generateTimeout <= 0 {
		o.generateTimeout = DefaultGenerateTimeout
	}
	return o
}

// Run starts processing the order's pending jobs in the background and
// returns the run's event stream. The channel holds every event of the run,
// so it never blocks the batch, and is closed after EventBatchComplete.
//
// The run stops between jobs once ctx is done or Cancel is called.
func (o *Orchestrator) Run(ctx context.Context, orderID string) (<-chan Event, error) {
	batch, err := o.store.BeginRun(orderID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancels[orderID] = cancel
	o.mu.Unlock()

	events := make(chan Event, 5*len(batch.Jobs)+10)
	r := &activeRun{
		o:      o,
		batch:  batch,
		total:  len(batch.Jobs),
		events: events,
	}
	go func() {
		defer cancel()
		r.process(runCtx)
	}()
	return events, nil
}

// Cancel asks the order's active run to stop after its current job.
func (o *Orchestrator) Cancel(orderID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[orderID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether a run for the order is in flight.
func (o *Orchestrator) Running(orderID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.cancels[orderID]
	return ok
}

type activeRun struct {
	o         *Orchestrator
	batch     store.Batch
	total     int
	processed int
	events    chan Event
}

func (r *activeRun) process(ctx context.Context) {
	o := r.o
	orderID := r.batch.OrderID
	started := time.Now()

	o.logger.Info("batch started",
		"order_id", orderID,
		"task_type", r.batch.TaskType,
		"studio_id", r.batch.StudioID,
		"jobs", r.total,
	)
	r.log(fmt.Sprintf("Task: %s processing initiated.", strings.ToUpper(string(r.batch.TaskType))), false)
	r.log(fmt.Sprintf("Batch: %d assets queued.", r.total), false)
	if r.batch.Branding.Active() {
		r.log("Brand identity: logo detected. Preparing studio wall branding.", false)
	}

	cancelled := false
	for _, job := range r.batch.Jobs {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		// The job in flight finishes even if the run is cancelled meanwhile.
		r.handle(context.WithoutCancel(ctx), job)
	}

	completed := r.completedCount()
	if cancelled {
		r.log(fmt.Sprintf("Batch cancelled: %d of %d assets left pending.", r.total-r.processed, r.total), false)
	}
	r.log(fmt.Sprintf("Batch complete: %d of %d assets ready.", completed, r.total), false)

	// A new run can register as soon as FinishRun returns.
	o.mu.Lock()
	delete(o.cancels, orderID)
	o.mu.Unlock()
	if _, err := o.store.FinishRun(orderID, cancelled); err != nil {
		o.logger.Error("failed to finish run", "order_id", orderID, "error", err)
	}
	o.logger.Info("batch finished",
		"order_id", orderID,
		"processed", r.processed,
		"total", r.total,
		"cancelled", cancelled,
		"duration", time.Since(started),
	)

	r.emit(Event{Type: EventBatchComplete, Cancelled: cancelled})
	close(r.events)
}

func (r *activeRun) handle(ctx context.Context, job models.ProcessingJob) {
	o := r.o
	orderID := r.batch.OrderID

	if err := o.store.SetCurrentJob(orderID, job.ID); err != nil {
		o.logger.Warn("failed to mark current job", "order_id", orderID, "job_id", job.ID, "error", err)
	}
	r.log(fmt.Sprintf("[AI Vision] Analyzing %s...", job.Angle.Label()), false)

	angle, out, err := r.runJob(ctx, job)
	if err == nil && out.Empty() {
		err = errors.New("generator returned an empty image")
	}
	if err == nil {
		err = o.store.CompleteJob(orderID, job.ID, out)
	}
	if err != nil {
		reason := failureReason(err)
		if ferr := o.store.FailJob(orderID, job.ID, reason); ferr != nil && !errors.Is(ferr, store.ErrInvalidTransition) {
			o.logger.Error("failed to record job failure", "order_id", orderID, "job_id", job.ID, "error", ferr)
		}
		r.processed++
		o.logger.Warn("job failed", "order_id", orderID, "job_id", job.ID, "error", err)
		r.log(fmt.Sprintf("[ERROR] Failed to process %s: %s", angle.Label(), reason), true)
		r.emit(Event{Type: EventJobFailed, JobID: job.ID})
		return
	}

	r.processed++
	o.logger.Info("job completed", "order_id", orderID, "job_id", job.ID, "angle", angle)
	r.log(fmt.Sprintf("[SUCCESS] %s enhanced and optimized.", angle.Label()), false)
	r.emit(Event{Type: EventJobCompleted, JobID: job.ID})
}

// runJob classifies, routes and generates one job. A panic anywhere in the
// chain is returned as an error so it only fails this job.
func (r *activeRun) runJob(ctx context.Context, job models.ProcessingJob) (angle models.CameraAngle, out models.Image, err error) {
	o := r.o
	angle = job.Angle
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("job panicked",
				"order_id", r.batch.OrderID,
				"job_id", job.ID,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			out = models.Image{}
			err = fmt.Errorf("internal error: %v", p)
		}
	}()

	var category models.Category
	if job.AngleKnown {
		category = router.CategoryForAngle(job.Angle)
	} else {
		cctx, cancel := context.WithTimeout(ctx, o.classifyTimeout)
		result := o.classifier.Classify(cctx, job.OriginalImage)
		cancel()
		category = result.Category
		angle = router.AngleForCategory(category, job.Angle)
		if result.Fallback {
			r.log("[AI Vision] Category unclear, treating as exterior.", false)
		} else {
			r.log(fmt.Sprintf("[AI Vision] Detected %s (confidence %.2f).", category, result.Confidence), false)
		}
	}
	if err := o.store.RecordClassification(r.batch.OrderID, job.ID, category, angle); err != nil {
		return angle, models.Image{}, err
	}

	strategy := router.Route(category, r.batch.TaskType)
	branded := r.batch.Branding.Active()

	req := generator.Request{
		Original:    job.OriginalImage,
		AspectRatio: router.OutputAspectRatio,
		Instruction: strategy.Instruction(router.InstructionParams{
			Category: category,
			TaskType: r.batch.TaskType,
			Branding: branded,
		}),
	}
	if strategy.RequiresPlate {
		plate, err := o.plates.Plate(ctx, r.batch.StudioID)
		if err != nil {
			return angle, models.Image{}, fmt.Errorf("reference plate unavailable: %w", err)
		}
		req.ReferencePlate = &plate
	}
	if branded {
		logo := r.batch.Branding.Logo.Clone()
		req.Logo = &logo
	}

	switch strategy.Kind {
	case router.KindInterior:
		r.log("[Processing] Applying interior relighting, reflection removal and cabin cleanup...", false)
	case router.KindDetail:
		r.log("[Processing] Executing detail compositing...", false)
	default:
		msg := "[Processing] Executing studio compositing"
		if branded {
			msg += " with branding"
		}
		r.log(msg+"...", false)
	}

	gctx, cancel := context.WithTimeout(ctx, o.generateTimeout)
	defer cancel()
	out, err = o.generator.Generate(gctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return angle, models.Image{}, fmt.Errorf("generation timed out after %s", o.generateTimeout)
		}
		return angle, models.Image{}, err
	}
	return angle, out, nil
}

func (r *activeRun) completedCount() int {
	order, err := r.o.store.GetOrder(r.batch.OrderID)
	if err != nil {
		return 0
	}
	n := 0
	for _, job := range r.batch.Jobs {
		if i := order.JobIndex(job.ID); i >= 0 && order.Jobs[i].Status == models.JobStatusCompleted {
			n++
		}
	}
	return n
}

func (r *activeRun) log(msg string, isError bool) {
	line, err := r.o.store.AppendLog(r.batch.OrderID, msg, isError)
	if err != nil {
		r.o.logger.Warn("failed to append run log", "order_id", r.batch.OrderID, "error", err)
		line = store.LogLine{At: time.Now().UTC(), Message: msg, Error: isError}
	}
	r.emit(Event{Type: EventLog, Log: &line})
}

func (r *activeRun) emit(ev Event) {
	ev.OrderID = r.batch.OrderID
	ev.Processed = r.processed
	ev.Total = r.total
	select {
	case r.events <- ev:
	default:
		r.o.logger.Warn("event buffer full, dropping event", "order_id", ev.OrderID, "type", ev.Type)
	}
}

func failureReason(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown error"
	}
	return msg
}
