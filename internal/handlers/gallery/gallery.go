package handlers_gallery

import (
	"net/http"
	"sparsh/internal/handlers/respond"
	"sparsh/internal/models/spimages"

	"github.com/gin-gonic/gin"
)

// GalleryHandler expose le catalogue public : seules les images actives sont visibles
type GalleryHandler struct {
	service *spimages.Service
}

func NewGalleryHandler(service *spimages.Service) *GalleryHandler {
	return &GalleryHandler{service: service}
}

func (h *GalleryHandler) List(c *gin.Context) {
	gallery, err := h.service.Gallery(c.Request.Context(), spimages.GalleryQuery{
		Sector:   c.Query("sector"),
		Template: c.Query("template"),
		Limit:    respond.QueryInt(c, "limit", spimages.DefaultGalleryLimit),
	})
	if err != nil {
		respond.Error(c, err, "Failed to fetch gallery")
		return
	}

	respond.OK(c, http.StatusOK, gin.H{
		"images":          gallery.Images,
		"groupedBySector": gallery.GroupedBySector,
		"total":           gallery.Total,
	})
}

func (h *GalleryHandler) Filters(c *gin.Context) {
	filters, err := h.service.Filters(c.Request.Context())
	if err != nil {
		respond.Error(c, err, "Failed to fetch filters")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{
		"sectors":   filters.Sectors,
		"templates": filters.Templates,
	})
}

func (h *GalleryHandler) Get(c *gin.Context) {
	id, err := respond.ID(c)
	if err != nil {
		respond.Error(c, err, "")
		return
	}

	img, err := h.service.PublicGet(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, err, "Failed to fetch image")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"image": img})
}
