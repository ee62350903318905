package spreviews

import (
	"sparsh/internal/models/spusers"
	"time"
)

const (
	StatusAll      = "all"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusHidden   = "hidden"
)

// Review : un avis client, public seulement si approuvé et visible
type Review struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	Name       string        `gorm:"type:varchar(100);not null" json:"name"`
	Email      string        `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Role       string        `gorm:"type:varchar(100)" json:"role"`
	Location   string        `gorm:"type:varchar(100)" json:"location"`
	Content    string        `gorm:"type:text;not null" json:"content"`
	Rating     int           `gorm:"not null;index" json:"rating"`
	Image      string        `gorm:"type:varchar(512)" json:"image,omitempty"`
	IsApproved bool          `gorm:"not null;default:false;index" json:"isApproved"`
	IsVisible  bool          `gorm:"not null;default:true;index" json:"isVisible"`
	ApprovedBy *uint         `json:"approvedBy,omitempty"`
	Approver   *spusers.User `gorm:"foreignKey:ApprovedBy;constraint:OnDelete:SET NULL" json:"approver,omitempty"`
	ApprovedAt *time.Time    `json:"approvedAt,omitempty"`
	IPAddress  string        `gorm:"type:varchar(64)" json:"ipAddress,omitempty"`
	CreatedAt  time.Time     `gorm:"index" json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

func (Review) TableName() string {
	return "reviews"
}

// Status déduit l'état de modération des deux drapeaux
func (r *Review) Status() string {
	switch {
	case !r.IsApproved:
		return StatusPending
	case r.IsVisible:
		return StatusApproved
	default:
		return StatusHidden
	}
}

// PublicReview ne contient ni email, ni IP, ni approbateur
type PublicReview struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Location  string    `json:"location"`
	Content   string    `json:"content"`
	Rating    int       `json:"rating"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Counts struct {
	All      int64 `json:"all"`
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Hidden   int64 `json:"hidden"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type AdminList struct {
	Reviews    []Review   `json:"reviews"`
	Pagination Pagination `json:"pagination"`
	Counts     Counts     `json:"counts"`
}

type Stats struct {
	Total         int64   `json:"total"`
	Approved      int64   `json:"approved"`
	Pending       int64   `json:"pending"`
	Hidden        int64   `json:"hidden"`
	AverageRating float64 `json:"averageRating"`
}

func (r *Review) Public() PublicReview {
	return PublicReview{
		ID:        r.ID,
		Name:      r.Name,
		Role:      r.Role,
		Location:  r.Location,
		Content:   r.Content,
		Rating:    r.Rating,
		Image:     r.Image,
		CreatedAt: r.CreatedAt,
	}
}
