package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/pipeline"
	"dealer-studio-backend/internal/store"
)

// EventConsumer takes over a run's event stream, e.g. the archive listener.
type EventConsumer interface {
	Consume(ctx context.Context, events <-chan pipeline.Event)
}

type ProcessHandler struct {
	store        *store.Store
	orchestrator *pipeline.Orchestrator
	consumer     EventConsumer
	// runCtx outlives the request that started the batch.
	runCtx context.Context
	logger *slog.Logger
}

func NewProcessHandler(runCtx context.Context, st *store.Store, orchestrator *pipeline.Orchestrator, consumer EventConsumer, logger *slog.Logger) *ProcessHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ProcessHandler{
		store:        st,
		orchestrator: orchestrator,
		consumer:     consumer,
		runCtx:       runCtx,
		logger:       logger,
	}
}

// Process godoc
// @Summary     Start a batch
// @Description Processes the order's pending jobs one at a time in the background.
// @Description Follow progress with GET /orders/{order_id}/progress or the event stream.
// @Tags        processing
// @Produce     json
// @Param       order_id path string true "Order ID"
// @Success     202 {object} models.ProcessResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse "a batch is already running for this order"
// @Router      /orders/{order_id}/process [post]
func (h *ProcessHandler) Process(c *gin.Context) {
	orderID := c.Param("order_id")

	events, err := h.orchestrator.Run(h.runCtx, orderID)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	if h.consumer != nil {
		go h.consumer.Consume(h.runCtx, events)
	} else {
		go func() {
			for range events {
			}
		}()
	}

	resp := models.ProcessResponse{OrderID: orderID, Status: string(store.RunRunning)}
	if p, err := h.store.Progress(orderID); err == nil {
		resp.Total = p.Total
	}
	h.logger.Info("batch accepted", "order_id", orderID, "total", resp.Total)
	c.JSON(http.StatusAccepted, resp)
}

// Cancel godoc
// @Summary     Cancel a batch
// @Description Stops the batch after the job in flight. Remaining jobs stay pending.
// @Tags        processing
// @Produce     json
// @Param       order_id path string true "Order ID"
// @Success     202 {object} models.ProcessResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{order_id}/cancel [post]
func (h *ProcessHandler) Cancel(c *gin.Context) {
	orderID := c.Param("order_id")
	if !h.orchestrator.Cancel(orderID) {
		writeStoreError(c, store.ErrRunNotActive)
		return
	}
	c.JSON(http.StatusAccepted, models.ProcessResponse{OrderID: orderID, Status: "cancelling"})
}
