package spcaptchas

import (
	"fmt"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/splog"
	"strings"
	"time"

	"github.com/mojocn/base64Captcha"
	"github.com/rs/zerolog"
)

var (
	ErrMissing   = sperr.Invalid("captcha is required")
	ErrIncorrect = sperr.Invalid("captcha is incorrect")
)

// Challenge : l'image base64 et son identifiant ; la réponse n'est renvoyée qu'hors production
type Challenge struct {
	ID     string `json:"captchaId"`
	Image  string `json:"image"`
	Answer string `json:"answer,omitempty"`
}

type Captchas struct {
	store      base64Captcha.Store
	driver     base64Captcha.Driver
	production bool
	logger     zerolog.Logger
}

// New : store nil donne un stockage en mémoire
func New(store base64Captcha.Store, production bool) *Captchas {
	if store == nil {
		store = base64Captcha.NewMemoryStore(10240, 5*time.Minute)
	}

	driver := base64Captcha.NewDriverMath(
		80,  // hauteur
		240, // largeur
		6,   // lignes de bruit
		base64Captcha.OptionShowHollowLine,
		nil,
		nil,
		nil,
	)

	return &Captchas{
		store:      store,
		driver:     driver,
		production: production,
		logger:     splog.For("captcha"),
	}
}

func (cap *Captchas) Generate() (*Challenge, error) {
	captcha := base64Captcha.NewCaptcha(cap.driver, cap.store)

	id, b64s, answer, err := captcha.Generate()
	if err != nil {
		return nil, fmt.Errorf("génération captcha: %w", err)
	}

	ch := &Challenge{ID: id, Image: b64s}
	if !cap.production {
		cap.logger.Debug().Str("captcha_id", id).Str("answer", answer).Msg("captcha generated")
		ch.Answer = answer
	}
	return ch, nil
}

// Verify consomme le captcha : une réponse ne sert qu'une fois
func (cap *Captchas) Verify(captchaID, captchaAnswer string) error {
	captchaID = strings.TrimSpace(captchaID)
	captchaAnswer = strings.TrimSpace(captchaAnswer)

	if captchaID == "" || captchaAnswer == "" {
		return ErrMissing
	}
	if !cap.store.Verify(captchaID, captchaAnswer, true) {
		return ErrIncorrect
	}
	return nil
}
