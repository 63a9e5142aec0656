package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/studio"
)

type StudiosHandler struct {
	catalog *studio.Catalog
}

func NewStudiosHandler(catalog *studio.Catalog) *StudiosHandler {
	return &StudiosHandler{catalog: catalog}
}

// ListStudios godoc
// @Summary     List studios
// @Description Returns the selectable studio backdrops in display order
// @Tags        studios
// @Produce     json
// @Success     200 {object} models.StudiosResponse
// @Router      /studios [get]
func (h *StudiosHandler) ListStudios(c *gin.Context) {
	all := h.catalog.All()
	resp := models.StudiosResponse{Studios: make([]models.StudioResponse, 0, len(all))}
	for _, s := range all {
		resp.Studios = append(resp.Studios, models.StudioResponse{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Category:    s.Category,
		})
	}
	c.JSON(http.StatusOK, resp)
}
