package respond

import (
	"errors"
	"mime/multipart"
	"net/http"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/spmedia"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var ErrBadID = sperr.Invalid("invalid id")

// Error écrit l'enveloppe d'échec ; les erreurs internes sont journalisées et masquées
func Error(c *gin.Context, err error, fallback string) {
	status := sperr.Status(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(fallback)
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"message": sperr.Message(err, fallback),
	})
}

func OK(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

// ID lit le paramètre :id de la route
func ID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrBadID
	}
	return uint(id), nil
}

// FormFile ouvre le fichier du champ field ; nil sans erreur si le champ est absent.
// L'appelant doit fermer le fichier renvoyé.
func FormFile(c *gin.Context, field string) (*spmedia.Upload, multipart.File, error) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, nil, nil
	}
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, sperr.Invalid("invalid multipart form: %v", err)
	}
	if header.Size > spmedia.MaxUploadSize {
		return nil, nil, spmedia.ErrTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	return &spmedia.Upload{Reader: file, Filename: header.Filename, Size: header.Size}, file, nil
}

// QueryInt : valeur entière du paramètre, def si absent ou invalide
func QueryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
