package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/store"
)

// writeStoreError renders a store sentinel with its HTTP status.
func writeStoreError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrOrderNotFound), errors.Is(err, store.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrUnknownStudio), errors.Is(err, store.ErrNoImages), errors.Is(err, store.ErrNoPendingJobs):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrRunInProgress), errors.Is(err, store.ErrOrderLocked),
		errors.Is(err, store.ErrJobNotFailed), errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrRunNotActive):
		status = http.StatusConflict
	}
	c.JSON(status, models.ErrorResponse{Error: err.Error()})
}

// toOrderResponse reports the job currently in flight as processing.
func toOrderResponse(order models.Order, currentJobID string) models.OrderResponse {
	resp := models.OrderResponse{
		ID:        order.ID,
		Title:     order.Title,
		TaskType:  order.TaskType,
		StudioID:  order.StudioID,
		Status:    order.Status,
		Branding:  order.Branding.Active(),
		Jobs:      make([]models.JobResponse, 0, len(order.Jobs)),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
	for _, job := range order.Jobs {
		jr := toJobResponse(job)
		if job.ID == currentJobID && job.Status == models.JobStatusPending {
			jr.Status = models.JobStatusProcessing
		}
		resp.Jobs = append(resp.Jobs, jr)
	}
	return resp
}

func toJobResponse(job models.ProcessingJob) models.JobResponse {
	jr := models.JobResponse{
		ID:           job.ID,
		Angle:        job.Angle,
		Category:     job.Category,
		Status:       job.Status,
		Error:        job.Error,
		HasProcessed: job.ProcessedImage != nil,
		CreatedAt:    job.CreatedAt,
	}
	if !job.FinishedAt.IsZero() {
		finished := job.FinishedAt
		jr.FinishedAt = &finished
	}
	return jr
}

func toOrderSummary(order models.Order) models.OrderSummary {
	completed, failed := order.Counts()
	return models.OrderSummary{
		ID:        order.ID,
		Title:     order.Title,
		TaskType:  order.TaskType,
		Status:    order.Status,
		Total:     len(order.Jobs),
		Completed: completed,
		Failed:    failed,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}

func toProgressResponse(p store.Progress, fromLog int) models.ProgressResponse {
	resp := models.ProgressResponse{
		OrderID:      p.OrderID,
		State:        string(p.State),
		Processed:    p.Processed,
		Total:        p.Total,
		Percent:      p.Percent(),
		CurrentJobID: p.CurrentJobID,
		Cancelled:    p.Cancelled,
		Logs:         []models.LogLineResponse{},
	}
	if fromLog < 0 {
		fromLog = 0
	}
	for i := fromLog; i < len(p.Logs); i++ {
		resp.Logs = append(resp.Logs, toLogLine(p.Logs[i]))
	}
	return resp
}

func toLogLine(l store.LogLine) models.LogLineResponse {
	return models.LogLineResponse{At: l.At, Message: l.Message, Error: l.Error}
}
