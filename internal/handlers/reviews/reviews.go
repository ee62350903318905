package handlers_reviews

import (
	"net/http"
	"sparsh/internal/handlers/respond"
	"sparsh/internal/models/spcaptchas"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/spgeo"
	"sparsh/internal/models/spreviews"
	"sparsh/internal/spmiddleware"

	"github.com/gin-gonic/gin"
)

type ReviewsHandler struct {
	service *spreviews.Service
	captcha *spcaptchas.Captchas
	require bool
}

type submitForm struct {
	Name          string `json:"name" form:"name"`
	Email         string `json:"email" form:"email"`
	Role          string `json:"role" form:"role"`
	Location      string `json:"location" form:"location"`
	Content       string `json:"content" form:"content"`
	Rating        int    `json:"rating" form:"rating"`
	CaptchaID     string `json:"captchaId" form:"captchaId"`
	CaptchaAnswer string `json:"captchaAnswer" form:"captchaAnswer"`
}

type visibilityRequest struct {
	IsVisible *bool `json:"isVisible"`
}

// NewReviewsHandler : requireCaptcha impose un captcha valide au dépôt d'un avis
func NewReviewsHandler(service *spreviews.Service, captcha *spcaptchas.Captchas, requireCaptcha bool) *ReviewsHandler {
	return &ReviewsHandler{service: service, captcha: captcha, require: requireCaptcha && captcha != nil}
}

// Captcha délivre un nouveau défi
func (h *ReviewsHandler) Captcha(c *gin.Context) {
	if h.captcha == nil {
		respond.Error(c, sperr.NotFound("captcha"), "")
		return
	}
	ch, err := h.captcha.Generate()
	if err != nil {
		respond.Error(c, err, "Failed to generate captcha")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"captcha": ch, "required": h.require})
}

// Submit : formulaire public, multipart avec photo "image" optionnelle ou JSON
func (h *ReviewsHandler) Submit(c *gin.Context) {
	var form submitForm
	if err := c.ShouldBind(&form); err != nil {
		respond.Error(c, sperr.Invalid("invalid review form"), "Failed to submit review")
		return
	}

	if h.require {
		if err := h.captcha.Verify(form.CaptchaID, form.CaptchaAnswer); err != nil {
			respond.Error(c, err, "")
			return
		}
	}

	up, file, err := respond.FormFile(c, "image")
	if err != nil {
		respond.Error(c, err, "Failed to submit review")
		return
	}
	if file != nil {
		defer file.Close()
	}

	review, err := h.service.Submit(c.Request.Context(), spreviews.SubmitInput{
		Name:     form.Name,
		Email:    form.Email,
		Role:     form.Role,
		Location: form.Location,
		Content:  form.Content,
		Rating:   form.Rating,
		IP:       spgeo.ClientIP(c),
		Image:    up,
	})
	if err != nil {
		respond.Error(c, err, "Failed to submit review")
		return
	}

	respond.OK(c, http.StatusCreated, gin.H{
		"message": "Thank you! Your review has been submitted and is awaiting approval.",
		"review":  review.Public(),
	})
}

func (h *ReviewsHandler) Public(c *gin.Context) {
	reviews, err := h.service.Public(c.Request.Context(), respond.QueryInt(c, "limit", spreviews.DefaultPublicLimit))
	if err != nil {
		respond.Error(c, err, "Failed to fetch reviews")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"data": reviews})
}

func (h *ReviewsHandler) AdminList(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), spreviews.AdminQuery{
		Status:    c.Query("status"),
		Search:    c.Query("search"),
		Page:      respond.QueryInt(c, "page", 1),
		Limit:     respond.QueryInt(c, "limit", spreviews.DefaultAdminLimit),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	})
	if err != nil {
		respond.Error(c, err, "Failed to fetch reviews")
		return
	}

	respond.OK(c, http.StatusOK, gin.H{
		"data":       list.Reviews,
		"pagination": list.Pagination,
		"counts":     list.Counts,
	})
}

func (h *ReviewsHandler) Approve(c *gin.Context) {
	id, err := respond.ID(c)
	if err != nil {
		respond.Error(c, err, "")
		return
	}

	review, err := h.service.Approve(c.Request.Context(), id, spmiddleware.UserID(c))
	if err != nil {
		respond.Error(c, err, "Failed to approve review")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"message": "Review approved successfully", "review": review})
}

func (h *ReviewsHandler) SetVisibility(c *gin.Context) {
	id, err := respond.ID(c)
	if err != nil {
		respond.Error(c, err, "")
		return
	}

	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsVisible == nil {
		respond.Error(c, sperr.Invalid("isVisible must be a boolean"), "")
		return
	}

	review, err := h.service.SetVisibility(c.Request.Context(), id, *req.IsVisible)
	if err != nil {
		respond.Error(c, err, "Failed to update review visibility")
		return
	}

	message := "Review hidden successfully"
	if review.IsVisible {
		message = "Review shown successfully"
	}
	respond.OK(c, http.StatusOK, gin.H{"message": message, "review": review})
}

func (h *ReviewsHandler) Delete(c *gin.Context) {
	id, err := respond.ID(c)
	if err != nil {
		respond.Error(c, err, "")
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respond.Error(c, err, "Failed to delete review")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"message": "Review deleted successfully"})
}

func (h *ReviewsHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respond.Error(c, err, "Failed to fetch review statistics")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"data": stats})
}
