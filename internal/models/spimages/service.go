package spimages

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/splog"
	"sparsh/internal/models/spmedia"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	EventUploaded = "imageUploaded"
	EventUpdated  = "imageUpdated"
	EventDeleted  = "imageDeleted"

	DefaultAdminLimit   = 20
	MaxAdminLimit       = 100
	DefaultGalleryLimit = 50
	MaxGalleryLimit     = 200
)

// Broadcaster diffuse les changements du catalogue aux clients connectés
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// UploadInput : champs du formulaire d'upload
type UploadInput struct {
	Title       string          `json:"title" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=500"`
	Sector      string          `json:"sector" validate:"required,oneof=Wedding Corporate Fashion Traditional Casual Festive Bridal Evening"`
	Template    string          `json:"template" validate:"required,oneof=Portrait Landscape Square Collage Minimalist Vintage Modern Classic"`
	Tags        string          `json:"tags"`
	UploadedBy  uint            `json:"-"`
	File        *spmedia.Upload `json:"-"`
}

// UpdateInput : seuls les champs non nuls sont modifiés
type UpdateInput struct {
	Title       *string `json:"title" validate:"omitnil,min=1,max=100"`
	Description *string `json:"description" validate:"omitnil,max=500"`
	Sector      *string `json:"sector" validate:"omitnil,oneof=Wedding Corporate Fashion Traditional Casual Festive Bridal Evening"`
	Template    *string `json:"template" validate:"omitnil,oneof=Portrait Landscape Square Collage Minimalist Vintage Modern Classic"`
	Tags        *string `json:"tags"`
	IsActive    *bool   `json:"isActive"`
}

// AdminQuery : filtres de la liste d'administration
type AdminQuery struct {
	Sector   string
	Template string
	Search   string
	Page     int
	Limit    int
}

// GalleryQuery : filtres de la galerie publique
type GalleryQuery struct {
	Sector   string
	Template string
	Limit    int
}

type Pagination struct {
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
	Total   int64 `json:"total"`
}

type AdminList struct {
	Images     []Image    `json:"images"`
	Pagination Pagination `json:"pagination"`
}

type Gallery struct {
	Images          []PublicImage            `json:"images"`
	GroupedBySector map[string][]PublicImage `json:"groupedBySector"`
	Total           int                      `json:"total"`
}

type Filters struct {
	Sectors   []string `json:"sectors"`
	Templates []string `json:"templates"`
}

type Service struct {
	db     *gorm.DB
	store  *spmedia.Store
	hub    Broadcaster
	logger zerolog.Logger
}

// NewService : hub peut être nil, aucun évènement n'est alors diffusé
func NewService(db *gorm.DB, store *spmedia.Store, hub Broadcaster) *Service {
	return &Service{
		db:     db,
		store:  store,
		hub:    hub,
		logger: splog.For("images"),
	}
}

func (s *Service) broadcast(event string, payload any) {
	if s.hub != nil {
		s.hub.Broadcast(event, payload)
	}
}

// Upload écrit le fichier puis insère l'enregistrement ; le fichier est supprimé si l'insertion échoue
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Image, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := sperr.Validate(in); err != nil {
		return nil, err
	}
	if in.File == nil {
		return nil, spmedia.ErrMissingFile
	}

	saved, err := s.store.Save(*in.File)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Title:       in.Title,
		Description: in.Description,
		ImageURL:    saved.URL,
		PublicID:    saved.Name,
		Sector:      in.Sector,
		Template:    in.Template,
		TagsList:    SplitTags(in.Tags),
		IsActive:    true,
		Metadata:    saved.Meta,
	}
	if in.UploadedBy != 0 {
		uploader := in.UploadedBy
		img.UploadedBy = &uploader
	}

	if err := s.db.WithContext(ctx).Create(img).Error; err != nil {
		if rerr := s.store.Remove(saved.Name); rerr != nil {
			s.logger.Error().Err(rerr).Str("file", saved.Name).Msg("failed to remove orphaned upload")
		} else {
			s.logger.Warn().Str("file", saved.Name).Msg("orphaned upload removed after insert failure")
		}
		return nil, fmt.Errorf("création image: %w", err)
	}

	created, err := s.Get(ctx, img.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Uint("image_id", created.ID).Str("sector", created.Sector).Int64("size", created.Metadata.Size).Msg("image uploaded")
	s.broadcast(EventUploaded, map[string]any{"image": created, "message": "New image uploaded"})
	return created, nil
}

// Get renvoie une image quel que soit son état
func (s *Service) Get(ctx context.Context, id uint) (*Image, error) {
	var img Image
	err := s.db.WithContext(ctx).Preload("Uploader").First(&img, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sperr.NotFound("image")
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// PublicGet ignore les images inactives
func (s *Service) PublicGet(ctx context.Context, id uint) (*PublicImage, error) {
	var img Image
	err := s.db.WithContext(ctx).Where("is_active = ?", true).First(&img, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sperr.NotFound("image")
	}
	if err != nil {
		return nil, err
	}
	public := img.Public()
	return &public, nil
}

func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*Image, error) {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		in.Title = &title
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		in.Description = &desc
	}
	if err := sperr.Validate(in); err != nil {
		return nil, err
	}

	img, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		img.Title = *in.Title
	}
	if in.Description != nil {
		img.Description = *in.Description
	}
	if in.Sector != nil {
		img.Sector = *in.Sector
	}
	if in.Template != nil {
		img.Template = *in.Template
	}
	if in.Tags != nil {
		img.TagsList = SplitTags(*in.Tags)
	}
	if in.IsActive != nil {
		img.IsActive = *in.IsActive
	}

	uploader := img.Uploader
	img.Uploader = nil
	if err := s.db.WithContext(ctx).Save(img).Error; err != nil {
		return nil, fmt.Errorf("mise à jour image: %w", err)
	}
	img.Uploader = uploader
	img.fillDerived()

	s.logger.Info().Uint("image_id", img.ID).Bool("active", img.IsActive).Msg("image updated")
	s.broadcast(EventUpdated, map[string]any{"image": img, "message": "Image updated"})
	return img, nil
}

// Delete supprime l'enregistrement puis le fichier ; un fichier restant sera repris par le nettoyage
func (s *Service) Delete(ctx context.Context, id uint) error {
	img, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&Image{}, img.ID).Error; err != nil {
		return fmt.Errorf("suppression image: %w", err)
	}
	if err := s.store.Remove(img.PublicID); err != nil {
		s.logger.Error().Err(err).Str("file", img.PublicID).Msg("failed to remove image file")
	}

	s.logger.Info().Uint("image_id", img.ID).Msg("image deleted")
	s.broadcast(EventDeleted, map[string]any{"imageId": img.ID, "message": "Image deleted"})
	return nil
}

func filtered(db *gorm.DB, sector, template string) *gorm.DB {
	if sector != "" {
		db = db.Where("sector = ?", sector)
	}
	if template != "" {
		db = db.Where("template = ?", template)
	}
	return db
}

// AdminList : toutes les images, actives ou non, les plus récentes d'abord
func (s *Service) AdminList(ctx context.Context, q AdminQuery) (*AdminList, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultAdminLimit
	}
	if q.Limit > MaxAdminLimit {
		q.Limit = MaxAdminLimit
	}

	base := func() *gorm.DB {
		db := filtered(s.db.WithContext(ctx).Model(&Image{}), q.Sector, q.Template)
		if search := strings.TrimSpace(q.Search); search != "" {
			like := "%" + strings.ToLower(search) + "%"
			db = db.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ?", like, like, like)
		}
		return db
	}

	out := &AdminList{Images: []Image{}}
	if err := base().Count(&out.Pagination.Total).Error; err != nil {
		return nil, fmt.Errorf("comptage images: %w", err)
	}
	err := base().
		Preload("Uploader").
		Order("created_at DESC, id DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&out.Images).Error
	if err != nil {
		return nil, fmt.Errorf("liste images: %w", err)
	}

	out.Pagination.Current = q.Page
	out.Pagination.Pages = int(math.Ceil(float64(out.Pagination.Total) / float64(q.Limit)))
	return out, nil
}

// Gallery : images actives uniquement, regroupées par secteur
func (s *Service) Gallery(ctx context.Context, q GalleryQuery) (*Gallery, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultGalleryLimit
	}
	if q.Limit > MaxGalleryLimit {
		q.Limit = MaxGalleryLimit
	}

	var images []Image
	err := filtered(s.db.WithContext(ctx).Model(&Image{}), q.Sector, q.Template).
		Where("is_active = ?", true).
		Order("created_at DESC, id DESC").
		Limit(q.Limit).
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("galerie: %w", err)
	}

	out := &Gallery{
		Images:          make([]PublicImage, 0, len(images)),
		GroupedBySector: make(map[string][]PublicImage),
	}
	for i := range images {
		p := images[i].Public()
		out.Images = append(out.Images, p)
		out.GroupedBySector[p.Sector] = append(out.GroupedBySector[p.Sector], p)
	}
	out.Total = len(out.Images)
	return out, nil
}

// Filters liste les secteurs et modèles présents parmi les images actives
func (s *Service) Filters(ctx context.Context) (*Filters, error) {
	var sectors, templates []string
	active := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&Image{}).Where("is_active = ?", true)
	}
	if err := active().Distinct().Pluck("sector", &sectors).Error; err != nil {
		return nil, fmt.Errorf("secteurs: %w", err)
	}
	if err := active().Distinct().Pluck("template", &templates).Error; err != nil {
		return nil, fmt.Errorf("modèles: %w", err)
	}
	return &Filters{
		Sectors:   ordered(Sectors, sectors),
		Templates: ordered(Templates, templates),
	}, nil
}

// ordered garde l'ordre de l'énumération
func ordered(all, present []string) []string {
	set := make(map[string]bool, len(present))
	for _, p := range present {
		set[p] = true
	}
	out := []string{}
	for _, v := range all {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

// ReferencedFiles liste les fichiers référencés par le catalogue
func (s *Service) ReferencedFiles(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&Image{}).Pluck("public_id", &names).Error
	return names, err
}
