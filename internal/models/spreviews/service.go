package spreviews

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/splog"
	"sparsh/internal/models/spmedia"
	"sparsh/internal/models/spusers"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	DefaultPublicLimit = 20
	MaxPublicLimit     = 100
	DefaultAdminLimit  = 10
	MaxAdminLimit      = 100

	profileWidth = 400
)

var ErrDuplicateReview = sperr.Conflict("a review has already been submitted with this email")

// SubmitInput : formulaire public de dépôt d'avis
type SubmitInput struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Email    string          `json:"email" validate:"required,email,max=255"`
	Role     string          `json:"role" validate:"max=100"`
	Location string          `json:"location" validate:"max=100"`
	Content  string          `json:"content" validate:"required,max=1000"`
	Rating   int             `json:"rating" validate:"min=1,max=5"`
	IP       string          `json:"-"`
	Image    *spmedia.Upload `json:"-"`
}

// AdminQuery : filtres de la liste de modération
type AdminQuery struct {
	Status    string `json:"status" validate:"omitempty,oneof=all pending approved hidden"`
	Search    string `json:"search"`
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
	SortBy    string `json:"sortBy" validate:"omitempty,oneof=createdAt rating name"`
	SortOrder string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"rating":    "rating",
	"name":      "name",
}

type Service struct {
	db     *gorm.DB
	store  *spmedia.Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewService : store peut être nil si les photos de profil ne sont pas acceptées
func NewService(db *gorm.DB, store *spmedia.Store) *Service {
	return &Service{
		db:     db,
		store:  store,
		now:    time.Now,
		logger: splog.For("reviews"),
	}
}

// Submit crée un avis en attente ; l'index unique sur l'email empêche les doublons
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Review, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = spusers.NormalizeEmail(in.Email)
	in.Role = strings.TrimSpace(in.Role)
	in.Location = strings.TrimSpace(in.Location)
	in.Content = strings.TrimSpace(in.Content)
	if err := sperr.Validate(in); err != nil {
		return nil, err
	}

	review := &Review{
		Name:       in.Name,
		Email:      in.Email,
		Role:       in.Role,
		Location:   in.Location,
		Content:    in.Content,
		Rating:     in.Rating,
		IsApproved: false,
		IsVisible:  true,
		IPAddress:  in.IP,
	}

	var imageName string
	if in.Image != nil && s.store != nil {
		saved, err := s.store.SaveResized(*in.Image, profileWidth)
		if err != nil {
			return nil, err
		}
		imageName = saved.Name
		review.Image = saved.URL
	}

	if err := s.db.WithContext(ctx).Create(review).Error; err != nil {
		if imageName != "" {
			s.removeImage(imageName)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateReview
		}
		return nil, fmt.Errorf("création avis: %w", err)
	}

	s.logger.Info().Uint("review_id", review.ID).Int("rating", review.Rating).Msg("review submitted")
	return review, nil
}

func (s *Service) find(ctx context.Context, id uint) (*Review, error) {
	var review Review
	err := s.db.WithContext(ctx).First(&review, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sperr.NotFound("review")
	}
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// Approve rend toujours l'avis approuvé et visible, y compris un avis masqué.
// approved_by et approved_at ne changent que si un autre administrateur approuve.
func (s *Service) Approve(ctx context.Context, id, approverID uint) (*Review, error) {
	review, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if !review.IsApproved || review.ApprovedBy == nil || *review.ApprovedBy != approverID || review.ApprovedAt == nil {
		updates["is_approved"] = true
		updates["approved_by"] = approverID
		updates["approved_at"] = s.now().UTC()
	}
	if !review.IsVisible {
		updates["is_visible"] = true
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(review).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("approbation avis: %w", err)
		}
		s.logger.Info().Uint("review_id", id).Uint("approver", approverID).Msg("review approved")
	}

	return s.loadWithApprover(ctx, id)
}

// SetVisibility ne touche pas à l'approbation
func (s *Service) SetVisibility(ctx context.Context, id uint, visible bool) (*Review, error) {
	review, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(review).Update("is_visible", visible).Error; err != nil {
		return nil, fmt.Errorf("visibilité avis: %w", err)
	}
	return s.loadWithApprover(ctx, id)
}

// Delete supprime l'avis puis sa photo ; l'échec sur la photo est seulement journalisé
func (s *Service) Delete(ctx context.Context, id uint) error {
	review, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(review).Error; err != nil {
		return fmt.Errorf("suppression avis: %w", err)
	}
	if review.Image != "" && s.store != nil {
		s.removeImage(s.store.NameFromURL(review.Image))
	}
	s.logger.Info().Uint("review_id", id).Msg("review deleted")
	return nil
}

func (s *Service) removeImage(name string) {
	if err := s.store.Remove(name); err != nil {
		s.logger.Error().Err(err).Str("file", name).Msg("failed to remove review image")
	}
}

func (s *Service) loadWithApprover(ctx context.Context, id uint) (*Review, error) {
	var review Review
	if err := s.db.WithContext(ctx).Preload("Approver").First(&review, id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

// Public renvoie les avis approuvés et visibles, les plus récents d'abord
func (s *Service) Public(ctx context.Context, limit int) ([]PublicReview, error) {
	if limit <= 0 {
		limit = DefaultPublicLimit
	}
	if limit > MaxPublicLimit {
		limit = MaxPublicLimit
	}

	reviews := []PublicReview{}
	err := s.db.WithContext(ctx).Model(&Review{}).
		Where("is_approved = ? AND is_visible = ?", true, true).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("avis publics: %w", err)
	}
	return reviews, nil
}

func withStatus(db *gorm.DB, status string) *gorm.DB {
	switch status {
	case StatusPending:
		return db.Where("is_approved = ?", false)
	case StatusApproved:
		return db.Where("is_approved = ? AND is_visible = ?", true, true)
	case StatusHidden:
		return db.Where("is_approved = ? AND is_visible = ?", true, false)
	default:
		return db
	}
}

func withSearch(db *gorm.DB, search string) *gorm.DB {
	search = strings.TrimSpace(search)
	if search == "" {
		return db
	}
	like := "%" + strings.ToLower(search) + "%"
	return db.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(content) LIKE ? OR LOWER(location) LIKE ?",
		like, like, like, like)
}

// List pagine la file de modération et compte les avis par état
func (s *Service) List(ctx context.Context, q AdminQuery) (*AdminList, error) {
	if err := sperr.Validate(q); err != nil {
		return nil, err
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultAdminLimit
	}
	if q.Limit > MaxAdminLimit {
		q.Limit = MaxAdminLimit
	}
	column := sortColumns[q.SortBy]
	if column == "" {
		column = "created_at"
	}
	order := "DESC"
	if q.SortOrder == "asc" {
		order = "ASC"
	}

	base := func() *gorm.DB {
		return withSearch(s.db.WithContext(ctx).Model(&Review{}), q.Search)
	}

	out := &AdminList{Reviews: []Review{}}
	if err := withStatus(base(), q.Status).Count(&out.Pagination.Total).Error; err != nil {
		return nil, fmt.Errorf("comptage avis: %w", err)
	}

	err := withStatus(base(), q.Status).
		Preload("Approver").
		Order(fmt.Sprintf("%s %s, id %s", column, order, order)).
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&out.Reviews).Error
	if err != nil {
		return nil, fmt.Errorf("liste avis: %w", err)
	}

	counts, err := s.counts(ctx, base)
	if err != nil {
		return nil, err
	}
	out.Counts = counts

	out.Pagination.Page = q.Page
	out.Pagination.Limit = q.Limit
	out.Pagination.Pages = int(math.Ceil(float64(out.Pagination.Total) / float64(q.Limit)))
	return out, nil
}

func (s *Service) counts(ctx context.Context, base func() *gorm.DB) (Counts, error) {
	var c Counts
	for status, dst := range map[string]*int64{
		StatusAll:      &c.All,
		StatusPending:  &c.Pending,
		StatusApproved: &c.Approved,
		StatusHidden:   &c.Hidden,
	} {
		if err := withStatus(base(), status).Count(dst).Error; err != nil {
			return c, fmt.Errorf("comptage %s: %w", status, err)
		}
	}
	return c, nil
}

// Stats : la note moyenne ne porte que sur les avis approuvés
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.counts(ctx, func() *gorm.DB { return s.db.WithContext(ctx).Model(&Review{}) })
	if err != nil {
		return nil, err
	}

	var avg struct{ Average float64 }
	err = s.db.WithContext(ctx).Model(&Review{}).
		Select("COALESCE(AVG(rating), 0) AS average").
		Where("is_approved = ?", true).
		Scan(&avg).Error
	if err != nil {
		return nil, fmt.Errorf("note moyenne: %w", err)
	}

	return &Stats{
		Total:         counts.All,
		Approved:      counts.Approved,
		Pending:       counts.Pending,
		Hidden:        counts.Hidden,
		AverageRating: math.Round(avg.Average*10) / 10,
	}, nil
}

// ReferencedFiles liste les photos de profil encore utilisées
func (s *Service) ReferencedFiles(ctx context.Context) ([]string, error) {
	var urls []string
	err := s.db.WithContext(ctx).Model(&Review{}).
		Where("image <> ''").
		Pluck("image", &urls).Error
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(urls))
	for _, u := range urls {
		names = append(names, path.Base(u))
	}
	return names, nil
}
