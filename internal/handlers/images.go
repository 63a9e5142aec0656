package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/store"
)

type ImagesHandler struct {
	store *store.Store
}

func NewImagesHandler(st *store.Store) *ImagesHandler {
	return &ImagesHandler{store: st}
}

// GetImage godoc
// @Summary     Download a job image
// @Description Returns the original photo or the processed studio shot of a job
// @Tags        jobs
// @Produce     image/png
// @Produce     image/jpeg
// @Param       order_id path string true "Order ID"
// @Param       job_id path string true "Job ID"
// @Param       variant query string false "original or processed (default processed)"
// @Success     200 {file} binary
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{order_id}/jobs/{job_id}/image [get]
func (h *ImagesHandler) GetImage(c *gin.Context) {
	order, err := h.store.GetOrder(c.Param("order_id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	idx := order.JobIndex(c.Param("job_id"))
	if idx < 0 {
		writeStoreError(c, store.ErrJobNotFound)
		return
	}
	job := order.Jobs[idx]

	var img models.Image
	switch variant := c.DefaultQuery("variant", "processed"); variant {
	case "original":
		img = job.OriginalImage
	case "processed":
		if job.ProcessedImage == nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "processed image not available",
				Message: fmt.Sprintf("job is %s", job.Status),
			})
			return
		}
		img = *job.ProcessedImage
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid variant", Message: "variant must be original or processed"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s%s"`, job.ID, img.Extension()))
	c.Data(http.StatusOK, img.MimeType, img.Data)
}
