package spimages

import (
	"sparsh/internal/models/spmarkdown"
	"sparsh/internal/models/spmedia"
	"sparsh/internal/models/spusers"
	"strings"
	"time"

	"gorm.io/gorm"
)

var Sectors = []string{"Wedding", "Corporate", "Fashion", "Traditional", "Casual", "Festive", "Bridal", "Evening"}

var Templates = []string{"Portrait", "Landscape", "Square", "Collage", "Minimalist", "Vintage", "Modern", "Classic"}

const altTextLen = 125

// Image : une photo du catalogue, masquée du public quand IsActive est faux
type Image struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	Title           string        `gorm:"type:varchar(100);not null" json:"title"`
	Description     string        `gorm:"type:varchar(500)" json:"description"`
	DescriptionHTML string        `gorm:"-" json:"descriptionHtml,omitempty"`
	AltText         string        `gorm:"-" json:"altText"`
	ImageURL        string        `gorm:"type:varchar(512);not null" json:"imageUrl"`
	PublicID        string        `gorm:"type:varchar(255);not null;uniqueIndex" json:"publicId"`
	Sector          string        `gorm:"type:varchar(32);not null;index:idx_image_sector_template" json:"sector"`
	Template        string        `gorm:"type:varchar(32);not null;index:idx_image_sector_template" json:"template"`
	Tags            string        `gorm:"type:text" json:"-"`
	TagsList        []string      `gorm:"-" json:"tags"`
	IsActive        bool          `gorm:"not null;default:true;index" json:"isActive"`
	UploadedBy      *uint         `json:"uploadedBy,omitempty"`
	Uploader        *spusers.User `gorm:"foreignKey:UploadedBy;constraint:OnDelete:SET NULL" json:"uploader,omitempty"`
	Metadata        spmedia.Meta  `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`
	CreatedAt       time.Time     `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (Image) TableName() string {
	return "images"
}

// PublicImage : champs exposés par la galerie publique
type PublicImage struct {
	ID              uint      `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DescriptionHTML string    `json:"descriptionHtml,omitempty"`
	AltText         string    `json:"altText"`
	ImageURL        string    `json:"imageUrl"`
	Sector          string    `json:"sector"`
	Template        string    `json:"template"`
	Tags            []string  `json:"tags"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (img *Image) Public() PublicImage {
	return PublicImage{
		ID:              img.ID,
		Title:           img.Title,
		Description:     img.Description,
		DescriptionHTML: img.DescriptionHTML,
		AltText:         img.AltText,
		ImageURL:        img.ImageURL,
		Sector:          img.Sector,
		Template:        img.Template,
		Tags:            img.TagsList,
		CreatedAt:       img.CreatedAt,
	}
}

// Hooks GORM
func (img *Image) BeforeSave(tx *gorm.DB) error {
	img.Tags = strings.Join(img.TagsList, ",")
	return nil
}

func (img *Image) AfterFind(tx *gorm.DB) error {
	img.TagsList = SplitTags(img.Tags)
	img.fillDerived()
	return nil
}

func (img *Image) fillDerived() {
	img.DescriptionHTML = spmarkdown.ToHTML(img.Description)
	alt := img.Title
	if img.Description != "" {
		alt += ". " + img.Description
	}
	img.AltText = spmarkdown.PlainText(alt, altTextLen)
}

// SplitTags découpe une liste séparée par des virgules, sans entrées vides ni doublons
func SplitTags(raw string) []string {
	tags := []string{}
	seen := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		tags = append(tags, t)
	}
	return tags
}
