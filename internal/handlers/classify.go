package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/classifier"
	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/router"
)

// AngleClassifier labels a single photo.
type AngleClassifier interface {
	Classify(ctx context.Context, img models.Image) classifier.Classification
}

type ClassifyHandler struct {
	classifier   AngleClassifier
	timeout      time.Duration
	maxFileBytes int64
}

func NewClassifyHandler(cls AngleClassifier, timeout time.Duration, maxFileBytes int64) *ClassifyHandler {
	if maxFileBytes <= 0 {
		maxFileBytes = 32 << 20
	}
	return &ClassifyHandler{classifier: cls, timeout: timeout, maxFileBytes: maxFileBytes}
}

// Classify godoc
// @Summary     Classify a photo
// @Description Labels one photo with its view category without creating a job.
// @Description Unreadable answers fall back to EXTERIOR_CAR.
// @Tags        classify
// @Accept      multipart/form-data
// @Produce     json
// @Param       image formData file true "Photo"
// @Success     200 {object} models.ClassifyResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /classify [post]
func (h *ClassifyHandler) Classify(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "no image uploaded", Message: err.Error()})
		return
	}
	img, err := readImage(fh, h.maxFileBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid image",
			Message: fmt.Sprintf("%s: %v", fh.Filename, err),
		})
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result := h.classifier.Classify(ctx, img)
	c.JSON(http.StatusOK, models.ClassifyResponse{
		Category:   result.Category,
		Angle:      router.AngleForCategory(result.Category, models.DefaultUploadAngle),
		Confidence: result.Confidence,
		Fallback:   result.Fallback,
	})
}
