package handlers_auth

import (
	"errors"
	"net/http"
	"sparsh/internal/handlers/respond"
	"sparsh/internal/models/spauth"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/splog"
	"sparsh/internal/models/spusers"
	"sparsh/internal/spmiddleware"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var errBadCredentials = sperr.Unauthorized("Invalid credentials")

type AuthHandler struct {
	db     *gorm.DB
	tokens *spauth.Tokens
	logger zerolog.Logger
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func NewAuthHandler(db *gorm.DB, tokens *spauth.Tokens) *AuthHandler {
	return &AuthHandler{db: db, tokens: tokens, logger: splog.For("auth")}
}

// Login vérifie les identifiants, renvoie le jeton et le range dans la session
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		respond.Error(c, sperr.Invalid("invalid login request"), "Login failed")
		return
	}
	if req.Email == "" || req.Password == "" {
		respond.Error(c, sperr.Invalid("email and password are required"), "Login failed")
		return
	}

	user, err := spusers.Authenticate(c.Request.Context(), h.db, req.Email, req.Password)
	if errors.Is(err, spusers.ErrInvalidCredentials) {
		h.logger.Warn().Str("email", req.Email).Str("ip", c.ClientIP()).Msg("login refused")
		respond.Error(c, errBadCredentials, "Login failed")
		return
	}
	if err != nil {
		respond.Error(c, err, "Login failed")
		return
	}

	token, expires, err := h.tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		respond.Error(c, err, "Login failed")
		return
	}

	session := sessions.Default(c)
	session.Set(spmiddleware.SessionTokenKey, token)
	if err := session.Save(); err != nil {
		respond.Error(c, err, "Login failed")
		return
	}

	h.logger.Info().Uint("user_id", user.ID).Msg("admin logged in")
	respond.OK(c, http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expires,
		"user":      user,
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, err := spusers.FindByID(c.Request.Context(), h.db, spmiddleware.UserID(c))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respond.Error(c, sperr.Unauthorized("User no longer exists"), "")
		return
	}
	if err != nil {
		respond.Error(c, err, "Failed to load user")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"user": user})
}

// Logout vide la session ; le jeton porteur expire de lui même
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		respond.Error(c, err, "Logout failed")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"message": "Logged out successfully"})
}
