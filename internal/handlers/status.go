package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/store"
)

const defaultPollInterval = 500 * time.Millisecond

type StatusHandler struct {
	store        *store.Store
	pollInterval time.Duration
}

func NewStatusHandler(st *store.Store, pollInterval time.Duration) *StatusHandler {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &StatusHandler{
		store:        st,
		pollInterval: pollInterval,
	}
}

// GetProgress godoc
// @Summary     Get batch progress
// @Description Returns counters and the activity log of the latest batch.
// @Description Pass `from` to receive only log lines after that index.
// @Tags        processing
// @Produce     json
// @Param       order_id path string true "Order ID"
// @Param       from query int false "First log line to return"
// @Success     200 {object} models.ProgressResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{order_id}/progress [get]
func (h *StatusHandler) GetProgress(c *gin.Context) {
	from, err := logOffset(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid from", Message: err.Error()})
		return
	}

	p, err := h.store.Progress(c.Param("order_id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProgressResponse(p, from))
}

// Events godoc
// @Summary     Stream batch progress
// @Description Server-sent events for the latest batch. Emits `log` for each
// @Description activity line, `progress` when counters move and `done` once
// @Description the batch has drained.
// @Tags        processing
// @Produce     text/event-stream
// @Param       order_id path string true "Order ID"
// @Success     200 {string} string "event stream"
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{order_id}/events [get]
func (h *StatusHandler) Events(c *gin.Context) {
	orderID := c.Param("order_id")
	if _, err := h.store.Progress(orderID); err != nil {
		writeStoreError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	sentLogs := 0
	lastProcessed := -1
	first := true

	c.Stream(func(w io.Writer) bool {
		if !first {
			select {
			case <-c.Request.Context().Done():
				return false
			case <-ticker.C:
			}
		}
		first = false

		p, err := h.store.Progress(orderID)
		if err != nil {
			c.SSEvent("error", models.ErrorResponse{Error: err.Error()})
			return false
		}

		for ; sentLogs < len(p.Logs); sentLogs++ {
			c.SSEvent("log", toLogLine(p.Logs[sentLogs]))
		}
		if p.Processed != lastProcessed {
			lastProcessed = p.Processed
			c.SSEvent("progress", toProgressResponse(p, len(p.Logs)))
		}

		if p.State != store.RunRunning {
			c.SSEvent("done", toProgressResponse(p, len(p.Logs)))
			return false
		}
		return true
	})
}

func logOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
