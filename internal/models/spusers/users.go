package spusers

import (
	"context"
	"errors"
	"fmt"
	"sparsh/internal/models/spconfig"
	"strings"
	"time"

	"github.com/andskur/argon2-hashing"
	"gorm.io/gorm"
)

const RoleAdmin = "admin"

var ErrInvalidCredentials = errors.New("invalid credentials")

// User est le seul rôle du back office : l'administrateur
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"not null"`
	Email        string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Role         string    `json:"role" gorm:"type:varchar(32);default:admin"`
	CreatedAt    time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Summary est la projection exposée avec les images et les avis
type Summary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = RoleAdmin
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EnsureAdmin crée ou met à jour l'administrateur décrit dans la configuration
func EnsureAdmin(ctx context.Context, db *gorm.DB, conf spconfig.UserConfig) (*User, error) {
	if conf.Hash == "" {
		return nil, fmt.Errorf("user.hash est vide, définir user.pass dans la configuration")
	}

	var user User
	err := db.WithContext(ctx).Where("email = ?", NormalizeEmail(conf.Email)).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = User{
			Username:     conf.Login,
			Email:        conf.Email,
			PasswordHash: conf.Hash,
			Role:         RoleAdmin,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("création administrateur: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		user.Username = conf.Login
		user.PasswordHash = conf.Hash
		if err := db.WithContext(ctx).Save(&user).Error; err != nil {
			return nil, fmt.Errorf("mise à jour administrateur: %w", err)
		}
	}
	return &user, nil
}

// Authenticate vérifie email + mot de passe
func Authenticate(ctx context.Context, db *gorm.DB, email, password string) (*User, error) {
	var user User
	err := db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := argon2.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func FindByID(ctx context.Context, db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *User) Summary() *Summary {
	if u == nil || u.ID == 0 {
		return nil
	}
	return &Summary{ID: u.ID, Username: u.Username, Email: u.Email}
}
