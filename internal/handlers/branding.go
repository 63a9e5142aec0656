package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/store"
)

type BrandingHandler struct {
	store        *store.Store
	maxFileBytes int64
}

func NewBrandingHandler(st *store.Store, maxFileBytes int64) *BrandingHandler {
	if maxFileBytes <= 0 {
		maxFileBytes = 8 << 20
	}
	return &BrandingHandler{store: st, maxFileBytes: maxFileBytes}
}

// GetBranding godoc
// @Summary     Get workspace branding
// @Tags        branding
// @Produce     json
// @Success     200 {object} models.BrandingResponse
// @Router      /branding [get]
func (h *BrandingHandler) GetBranding(c *gin.Context) {
	c.JSON(http.StatusOK, toBrandingResponse(h.store.Branding()))
}

// UpdateBranding godoc
// @Summary     Update workspace branding
// @Description Sets the dealership logo and toggles branding. Orders pick up
// @Description the branding in effect when their batch starts.
// @Tags        branding
// @Accept      multipart/form-data
// @Produce     json
// @Param       logo formData file false "Logo image"
// @Param       enabled formData bool false "Apply the logo to generated images"
// @Param       remove_logo formData bool false "Clear the stored logo"
// @Success     200 {object} models.BrandingResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /branding [put]
func (h *BrandingHandler) UpdateBranding(c *gin.Context) {
	b := h.store.Branding()

	if raw, ok := c.GetPostForm("enabled"); ok {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid enabled", Message: err.Error()})
			return
		}
		b.Enabled = enabled
	}

	if raw, ok := c.GetPostForm("remove_logo"); ok {
		remove, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid remove_logo", Message: err.Error()})
			return
		}
		if remove {
			b.Logo = nil
		}
	}

	if fh, err := c.FormFile("logo"); err == nil {
		logo, err := readImage(fh, h.maxFileBytes)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid logo",
				Message: fmt.Sprintf("%s: %v", fh.Filename, err),
			})
			return
		}
		b.Logo = &logo
	} else if err != http.ErrMissingFile {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read logo", Message: err.Error()})
		return
	}

	h.store.SetBranding(b)
	c.JSON(http.StatusOK, toBrandingResponse(b))
}

func toBrandingResponse(b models.Branding) models.BrandingResponse {
	resp := models.BrandingResponse{
		Enabled: b.Enabled,
		HasLogo: b.Logo != nil && !b.Logo.Empty(),
		Active:  b.Active(),
	}
	if resp.HasLogo {
		resp.MimeType = b.Logo.MimeType
	}
	return resp
}
