package spmiddleware

import (
	"net/http"
	"sparsh/internal/models/spauth"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	// SessionTokenKey : clé du jeton dans la session cookie
	SessionTokenKey = "token"

	ctxUserID   = "user_id"
	ctxUsername = "username"
	ctxRole     = "role"
)

// AuthRequired accepte un jeton "Authorization: Bearer" ou, à défaut, celui de la session
func AuthRequired(tokens *spauth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			raw = sessionToken(c)
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Access denied. No token provided.",
			})
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUsername, claims.Username)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func sessionToken(c *gin.Context) string {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return ""
	}
	tok, _ := sessions.Default(c).Get(SessionTokenKey).(string)
	return tok
}

// UserID : identifiant posé par AuthRequired, 0 hors route protégée
func UserID(c *gin.Context) uint {
	return c.GetUint(ctxUserID)
}

func Username(c *gin.Context) string {
	return c.GetString(ctxUsername)
}
