package handlers_images

import (
	"net/http"
	"sparsh/internal/handlers/respond"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/spimages"
	"sparsh/internal/spmiddleware"

	"github.com/gin-gonic/gin"
)

type ImagesHandler struct {
	service *spimages.Service
}

type uploadForm struct {
	Title       string `form:"title"`
	Description string `form:"description"`
	Sector      string `form:"sector"`
	Template    string `form:"template"`
	Tags        string `form:"tags"`
}

func NewImagesHandler(service *spimages.Service) *ImagesHandler {
	return &ImagesHandler{service: service}
}

// Upload : formulaire multipart, le fichier est dans le champ "image"
func (h *ImagesHandler) Upload(c *gin.Context) {
	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		respond.Error(c, sperr.Invalid("invalid upload form"), "Failed to upload image")
		return
	}

	up, file, err := respond.FormFile(c, "image")
	if err != nil {
		respond.Error(c, err, "Failed to upload image")
		return
	}
	if file != nil {
		defer file.Close()
	}

	img, err := h.service.Upload(c.Request.Context(), spimages.UploadInput{
		Title:       form.Title,
		Description: form.Description,
		Sector:      form.Sector,
		Template:    form.Template,
		Tags:        form.Tags,
		UploadedBy:  spmiddleware.UserID(c),
		File:        up,
	})
	if err != nil {
		respond.Error(c, err, "Failed to upload image")
		return
	}

	respond.OK(c, http.StatusCreated, gin.H{
		"message": "Image uploaded successfully",
		"image":   img,
	})
}

// AdminList : toutes les images, actives ou non, paginées
func (h *ImagesHandler) AdminList(c *gin.Context) {
	list, err := h.service.AdminList(c.Request.Context(), spimages.AdminQuery{
		Sector:   c.Query("sector"),
		Template: c.Query("template"),
		Search:   c.Query("search"),
		Page:     respond.QueryInt(c, "page", 1),
		Limit:    respond.QueryInt(c, "limit", spimages.DefaultAdminLimit),
	})
	if err != nil {
		respond.Error(c, err, "Failed to fetch images")
		return
	}

	respond.OK(c, http.StatusOK, gin.H{
		"images":     list.Images,
		"pagination": list.Pagination,
	})
}

func (h *ImagesHandler) Update(c *gin.Context) {
	id, err := respond.ID(c)
	if err != nil {
		respond.Error(c, err, "")
		return
	}

	var in spimages.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, sperr.Invalid("invalid request body"), "Failed to update image")
		return
	}

	img, err := h.service.Update(c.Request.Context(), id, in)
	if err != nil {
		respond.Error(c, err, "Failed to update image")
		return
	}

	respond.OK(c, http.StatusOK, gin.H{
		"message": "Image updated successfully",
		"image":   img,
	})
}

func (h *ImagesHandler) Delete(c *gin.Context) {
	id, err := respond.ID(c)
	if err != nil {
		respond.Error(c, err, "")
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respond.Error(c, err, "Failed to delete image")
		return
	}

	respond.OK(c, http.StatusOK, gin.H{"message": "Image deleted successfully"})
}
