package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/store"
)

// OrderArchive removes an order's archived copy. Optional.
type OrderArchive interface {
	DeleteOrder(orderID string) error
}

// FileArchive removes an order's archived images. Optional.
type FileArchive interface {
	DeleteOrderFiles(orderID string) error
}

type OrdersHandler struct {
	store  *store.Store
	db     OrderArchive
	files  FileArchive
	logger *slog.Logger
}

func NewOrdersHandler(st *store.Store, db OrderArchive, files FileArchive, logger *slog.Logger) *OrdersHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &OrdersHandler{
		store:  st,
		db:     db,
		files:  files,
		logger: logger,
	}
}

// CreateOrder godoc
// @Summary     Create a new order
// @Description Creates an empty order for one vehicle. The studio must be one of GET /studios.
// @Tags        orders
// @Accept      json
// @Produce     json
// @Param       request body models.CreateOrderRequest true "Task type, studio and optional title"
// @Success     201 {object} models.OrderResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /orders [post]
func (h *OrdersHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid request body",
			Message: err.Error(),
		})
		return
	}

	taskType, err := models.ParseTaskType(req.TaskType)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid task type",
			Message: err.Error(),
		})
		return
	}

	order, err := h.store.CreateOrder(req.Title, taskType, req.StudioID)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	h.logger.Info("order created", "order_id", order.ID, "task_type", order.TaskType, "studio_id", order.StudioID)
	c.JSON(http.StatusCreated, toOrderResponse(order, ""))
}

// ListOrders godoc
// @Summary     List orders
// @Description Returns all orders, newest first, with job counts
// @Tags        orders
// @Produce     json
// @Success     200 {object} models.OrderListResponse
// @Router      /orders [get]
func (h *OrdersHandler) ListOrders(c *gin.Context) {
	orders := h.store.ListOrders()
	resp := models.OrderListResponse{Orders: make([]models.OrderSummary, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toOrderSummary(order))
	}
	c.JSON(http.StatusOK, resp)
}

// GetOrder godoc
// @Summary     Get order
// @Description Returns an order with all of its jobs. The job being worked on is reported as processing.
// @Tags        orders
// @Produce     json
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.OrderResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{order_id} [get]
func (h *OrdersHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("order_id")
	order, err := h.store.GetOrder(orderID)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	progress, err := h.store.Progress(orderID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order, progress.CurrentJobID))
}

// DeleteOrder godoc
// @Summary     Delete order
// @Description Deletes an order and, when archiving is configured, its archived images. Rejected while a batch is running.
// @Tags        orders
// @Param       order_id path string true "Order ID"
// @Success     204
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{order_id} [delete]
func (h *OrdersHandler) DeleteOrder(c *gin.Context) {
	orderID := c.Param("order_id")
	if err := h.store.DeleteOrder(orderID); err != nil {
		writeStoreError(c, err)
		return
	}

	if h.files != nil {
		if err := h.files.DeleteOrderFiles(orderID); err != nil {
			h.logger.Warn("failed to delete archived images", "order_id", orderID, "error", err)
		}
	}
	if h.db != nil {
		if err := h.db.DeleteOrder(orderID); err != nil {
			h.logger.Warn("failed to delete archived order", "order_id", orderID, "error", err)
		}
	}

	c.Status(http.StatusNoContent)
}

// SetStudio godoc
// @Summary     Change the order's studio
// @Description Switches the reference background. Only allowed before the first batch starts.
// @Tags        orders
// @Accept      json
// @Produce     json
// @Param       order_id path string true "Order ID"
// @Param       request body models.SetStudioRequest true "Studio"
// @Success     200 {object} models.OrderResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{order_id}/studio [put]
func (h *OrdersHandler) SetStudio(c *gin.Context) {
	var req models.SetStudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid request body",
			Message: err.Error(),
		})
		return
	}

	order, err := h.store.SetStudio(c.Param("order_id"), req.StudioID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order, ""))
}
