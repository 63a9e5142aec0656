package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dealer-studio-backend/internal/models"
)

// NewJob describes one image being attached to an order.
type NewJob struct {
	Image models.Image
	// Angle is the capture-time viewpoint. Leave empty for uploads that
	// should be classified.
	Angle models.CameraAngle
}

type Options struct {
	// StudioExists validates studio ids. Nil accepts any non-empty id.
	StudioExists func(studioID string) bool
	Now          func() time.Time
	NewID        func() string
}

type record struct {
	order   models.Order
	run     *run
	started bool
}

// Store owns every Order and funnels all mutation through its methods.
// Readers always receive deep copies.
type Store struct {
	mu       sync.Mutex
	orders   map[string]*record
	branding models.Branding

	studioExists func(string) bool
	now          func() time.Time
	newID        func() string
}

func New(opts Options) *Store {
	s := &Store{
		orders:       make(map[string]*record),
		studioExists: opts.StudioExists,
		now:          opts.Now,
		newID:        opts.NewID,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

func (s *Store) validStudio(id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	if s.studioExists == nil {
		return true
	}
	return s.studioExists(id)
}

func (s *Store) CreateOrder(title string, taskType models.TaskType, studioID string) (models.Order, error) {
	if !s.validStudio(studioID) {
		return models.Order{}, fmt.Errorf("%w: %q", ErrUnknownStudio, studioID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	title = strings.TrimSpace(title)
	if title == "" {
		title = fmt.Sprintf("%s %d", taskType.Label(), len(s.orders)+1)
	}

	now := s.now()
	rec := &record{order: models.Order{
		ID:        s.newID(),
		Title:     title,
		TaskType:  taskType,
		StudioID:  studioID,
		Branding:  s.branding.Clone(),
		Status:    models.OrderStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.orders[rec.order.ID] = rec
	return rec.order.Clone(), nil
}

func (s *Store) GetOrder(orderID string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.orders[orderID]
	if !ok {
		return models.Order{}, ErrOrderNotFound
	}
	return rec.order.Clone(), nil
}

// ListOrders returns all orders, newest first.
func (s *Store) ListOrders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0, len(s.orders))
	for _, rec := range s.orders {
		out = append(out, rec.order.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) DeleteOrder(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if rec.run != nil && rec.run.state == RunRunning {
		return ErrRunInProgress
	}
	delete(s.orders, orderID)
	return nil
}

// SetStudio changes the reference background until the first run starts.
func (s *Store) SetStudio(orderID, studioID string) (models.Order, error) {
	if !s.validStudio(studioID) {
		return models.Order{}, fmt.Errorf("%w: %q", ErrUnknownStudio, studioID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.orders[orderID]
	if !ok {
		return models.Order{}, ErrOrderNotFound
	}
	if rec.started {
		return models.Order{}, ErrOrderLocked
	}
	rec.order.StudioID = studioID
	rec.order.UpdatedAt = s.now()
	return rec.order.Clone(), nil
}

// AttachJobs appends pending jobs in the given order. Jobs with an angle are
// treated as pre-tagged and skip classification.
func (s *Store) AttachJobs(orderID string, jobs []NewJob) ([]models.ProcessingJob, error) {
	if len(jobs) == 0 {
		return nil, ErrNoImages
	}
	for i, j := range jobs {
		if j.Image.Empty() {
			return nil, fmt.Errorf("image %d: %w", i+1, ErrNoImages)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}

	now := s.now()
	added := make([]models.ProcessingJob, 0, len(jobs))
	for _, j := range jobs {
		job := models.ProcessingJob{
			ID:            s.newID(),
			OriginalImage: j.Image.Clone(),
			Angle:         j.Angle,
			AngleKnown:    j.Angle != "",
			Status:        models.JobStatusPending,
			CreatedAt:     now,
		}
		if !job.AngleKnown {
			job.Angle = models.DefaultUploadAngle
		}
		rec.order.Jobs = append(rec.order.Jobs, job)
		added = append(added, job.Clone())
	}
	s.touch(rec)
	return added, nil
}

// ResubmitJob queues a failed job's photo again as a new pending job.
func (s *Store) ResubmitJob(orderID, jobID string) (models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, job, err := s.lookupJob(orderID, jobID)
	if err != nil {
		return models.ProcessingJob{}, err
	}
	if job.Status != models.JobStatusFailed {
		return models.ProcessingJob{}, ErrJobNotFailed
	}

	retry := models.ProcessingJob{
		ID:            s.newID(),
		OriginalImage: job.OriginalImage.Clone(),
		Angle:         job.Angle,
		AngleKnown:    job.AngleKnown,
		Status:        models.JobStatusPending,
		CreatedAt:     s.now(),
	}
	rec.order.Jobs = append(rec.order.Jobs, retry)
	s.touch(rec)
	return retry.Clone(), nil
}

// SetBranding replaces the workspace branding. Orders pick it up when their
// next run begins.
func (s *Store) SetBranding(b models.Branding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branding = b.Clone()
}

func (s *Store) Branding() models.Branding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.branding.Clone()
}

// BeginRun claims the order for a single run. It snapshots the workspace
// branding onto the order and returns the pending jobs in list order. A
// rejected call leaves the order untouched.
func (s *Store) BeginRun(orderID string) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.orders[orderID]
	if !ok {
		return Batch{}, ErrOrderNotFound
	}
	if rec.run != nil && rec.run.state == RunRunning {
		return Batch{}, ErrRunInProgress
	}

	var pending []models.ProcessingJob
	for _, job := range rec.order.Jobs {
		if job.Status == models.JobStatusPending {
			pending = append(pending, job.Clone())
		}
	}
	if len(pending) == 0 {
		return Batch{}, ErrNoPendingJobs
	}

	rec.started = true
	rec.order.Branding = s.branding.Clone()
	rec.run = &run{
		state:     RunRunning,
		total:     len(pending),
		startedAt: s.now(),
	}
	s.touch(rec)

	return Batch{
		OrderID:  orderID,
		TaskType: rec.order.TaskType,
		StudioID: rec.order.StudioID,
		Branding: rec.order.Branding.Clone(),
		Jobs:     pending,
	}, nil
}

// SetCurrentJob records which job the active run is working on.
func (s *Store) SetCurrentJob(orderID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.activeRun(orderID)
	if err != nil {
		return err
	}
	rec.run.currentJobID = jobID
	return nil
}

// RecordClassification stores the resolved category and refined angle of a
// pending job.
func (s *Store) RecordClassification(orderID, jobID string, category models.Category, angle models.CameraAngle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, job, err := s.lookupJob(orderID, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	job.Category = category
	if angle != "" {
		job.Angle = angle
	}
	s.touch(rec)
	return nil
}

// CompleteJob moves a pending job to completed with its output image.
func (s *Store) CompleteJob(orderID, jobID string, output models.Image) error {
	if output.Empty() {
		return s.FailJob(orderID, jobID, "generator returned an empty image")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, job, err := s.lookupJob(orderID, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrInvalidTransition
	}

	img := output.Clone()
	job.Status = models.JobStatusCompleted
	job.ProcessedImage = &img
	job.Error = ""
	job.FinishedAt = s.now()
	s.finishJob(rec, jobID)
	return nil
}

// FailJob moves a pending job to failed. The processed image is never kept.
func (s *Store) FailJob(orderID, jobID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, job, err := s.lookupJob(orderID, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrInvalidTransition
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	job.Status = models.JobStatusFailed
	job.ProcessedImage = nil
	job.Error = reason
	job.FinishedAt = s.now()
	s.finishJob(rec, jobID)
	return nil
}

// AppendLog adds a timestamped line to the order's latest run log.
func (s *Store) AppendLog(orderID, message string, isError bool) (LogLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.orders[orderID]
	if !ok {
		return LogLine{}, ErrOrderNotFound
	}
	if rec.run == nil {
		return LogLine{}, ErrRunNotActive
	}
	line := LogLine{At: s.now(), Message: message, Error: isError}
	rec.run.logs = append(rec.run.logs, line)
	return line, nil
}

// FinishRun drains the active run and releases the single-run guard.
func (s *Store) FinishRun(orderID string, cancelled bool) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.activeRun(orderID)
	if err != nil {
		return Progress{}, err
	}
	rec.run.state = RunDrained
	rec.run.cancelled = cancelled
	rec.run.currentJobID = ""
	rec.run.finishedAt = s.now()
	s.touch(rec)
	return rec.run.progress(orderID), nil
}

// Progress reports the latest run. Orders that never ran report RunIdle.
func (s *Store) Progress(orderID string) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.orders[orderID]
	if !ok {
		return Progress{}, ErrOrderNotFound
	}
	if rec.run == nil {
		return Progress{OrderID: orderID, State: RunIdle}, nil
	}
	return rec.run.progress(orderID), nil
}

func (s *Store) lookupJob(orderID, jobID string) (*record, *models.ProcessingJob, error) {
	rec, ok := s.orders[orderID]
	if !ok {
		return nil, nil, ErrOrderNotFound
	}
	idx := rec.order.JobIndex(jobID)
	if idx < 0 {
		return nil, nil, ErrJobNotFound
	}
	return rec, &rec.order.Jobs[idx], nil
}

func (s *Store) activeRun(orderID string) (*record, error) {
	rec, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if rec.run == nil || rec.run.state != RunRunning {
		return nil, ErrRunNotActive
	}
	return rec, nil
}

func (s *Store) finishJob(rec *record, jobID string) {
	if rec.run != nil && rec.run.state == RunRunning {
		rec.run.processed++
		if rec.run.currentJobID == jobID {
			rec.run.currentJobID = ""
		}
	}
	s.touch(rec)
}

func (s *Store) touch(rec *record) {
	rec.order.UpdatedAt = s.now()
	rec.order.Status = rec.order.ComputeStatus()
}
