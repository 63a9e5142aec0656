package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/supabase"
)

// FileLister reads the archived images of an order.
type FileLister interface {
	GetOrderFiles(orderID string) ([]supabase.OrderFile, error)
}

type FilesHandler struct {
	db FileLister
}

func NewFilesHandler(db FileLister) *FilesHandler {
	return &FilesHandler{db: db}
}

// GetFiles godoc
// @Summary     Get archived files
// @Description Returns the processed images archived for an order, including their Supabase Storage URLs
// @Tags        files
// @Produce     json
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.FilesResponse
// @Failure     500 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /orders/{order_id}/files [get]
func (h *FilesHandler) GetFiles(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "archive database not configured"})
		return
	}

	files, err := h.db.GetOrderFiles(c.Param("order_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to get files",
			Message: err.Error(),
		})
		return
	}

	resp := models.FilesResponse{Files: make([]models.FileResponse, len(files))}
	for i, file := range files {
		resp.Files[i] = models.FileResponse{
			ID:         file.ID.String(),
			JobID:      file.JobID,
			Angle:      file.Angle,
			StorageURL: file.StorageURL,
			FileSize:   file.FileSize,
			MimeType:   file.MimeType,
			CreatedAt:  file.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, resp)
}
