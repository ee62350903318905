package spgeo

import (
	"context"
	"fmt"
	"net"
	"sparsh/internal/models/splog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	SourceLoopback = "loopback"
	SourceCache    = "cache"
	SourceAPI      = "api"
	SourceMMDB     = "mmdb"
	SourceFallback = "fallback"

	Unknown = "Unknown"
)

// Location est le sous-document stocké avec chaque visite (colonnes location_*)
type Location struct {
	City        string   `json:"city" gorm:"type:varchar(128);default:Unknown;index"`
	Country     string   `json:"country" gorm:"type:varchar(128);default:Unknown;index"`
	CountryCode string   `json:"countryCode" gorm:"type:varchar(8);default:XX"`
	Region      string   `json:"region" gorm:"type:varchar(128);default:Unknown"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Timezone    string   `json:"timezone" gorm:"type:varchar(64);default:UTC"`
	ISP         string   `json:"isp" gorm:"type:varchar(255);default:Unknown"`
}

// DefaultLocation est utilisée quand rien n'a pu être résolu
func DefaultLocation() Location {
	return Location{
		City:        Unknown,
		Country:     Unknown,
		CountryCode: "XX",
		Region:      Unknown,
		Timezone:    "UTC",
		ISP:         Unknown,
	}
}

// Result distingue une vraie résolution d'un repli sur la valeur par défaut
type Result struct {
	Location Location `json:"location"`
	Resolved bool     `json:"resolved"`
	Source   string   `json:"source"`
	Reason   string   `json:"reason,omitempty"`
}

// Cache retrouve la localisation d'une visite récente de la même IP
type Cache interface {
	RecentLocation(ctx context.Context, ip string, since time.Time) (*Location, error)
}

// Provider interroge une source de géolocalisation
type Provider interface {
	Lookup(ctx context.Context, ip string) (Location, error)
	Name() string
}

type Resolver struct {
	cache    Cache
	provider Provider
	window   time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

func NewResolver(cache Cache, provider Provider, window time.Duration) *Resolver {
	return &Resolver{
		cache:    cache,
		provider: provider,
		window:   window,
		now:      time.Now,
		logger:   splog.For("geo"),
	}
}

// Resolve ne renvoie jamais d'erreur : les échecs donnent la localisation par défaut avec une raison
func (r *Resolver) Resolve(ctx context.Context, ip string) Result {
	if IsLoopback(ip) {
		return Result{Location: DefaultLocation(), Source: SourceLoopback, Reason: "loopback address"}
	}

	if r.cache != nil {
		cached, err := r.cache.RecentLocation(ctx, ip, r.now().Add(-r.window))
		if err != nil {
			r.logger.Warn().Err(err).Str("ip", ip).Msg("visitor cache lookup failed")
		} else if cached != nil {
			return Result{Location: *cached, Resolved: true, Source: SourceCache}
		}
	}

	if r.provider == nil {
		return Result{Location: DefaultLocation(), Source: SourceFallback, Reason: "no provider configured"}
	}

	loc, err := r.provider.Lookup(ctx, ip)
	if err != nil {
		r.logger.Warn().Err(err).Str("ip", ip).Str("provider", r.provider.Name()).Msg("geolocation failed, using default location")
		return Result{Location: DefaultLocation(), Source: SourceFallback, Reason: err.Error()}
	}
	return Result{Location: loc, Resolved: true, Source: r.provider.Name()}
}

// IsLoopback : adresses locales et IP vides ne sont jamais envoyées au service externe
func IsLoopback(ip string) bool {
	if ip == "" || ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

// ClientIP : X-Forwarded-For (premier saut), puis X-Real-IP, puis l'adresse de la socket
func ClientIP(c *gin.Context) string {
	ip := ""
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		ip = strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if ip == "" {
		ip = strings.TrimSpace(c.GetHeader("X-Real-IP"))
	}
	if ip == "" {
		ip = c.Request.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
	}
	if ip == "" {
		ip = "127.0.0.1"
	}
	return CleanIP(ip)
}

// CleanIP retire le préfixe IPv4 mappé en IPv6
func CleanIP(ip string) string {
	return strings.TrimPrefix(ip, "::ffff:")
}

func withDefaults(loc Location) Location {
	def := DefaultLocation()
	if loc.City == "" {
		loc.City = def.City
	}
	if loc.Country == "" {
		loc.Country = def.Country
	}
	if loc.CountryCode == "" {
		loc.CountryCode = def.CountryCode
	}
	if loc.Region == "" {
		loc.Region = def.Region
	}
	if loc.Timezone == "" {
		loc.Timezone = def.Timezone
	}
	if loc.ISP == "" {
		loc.ISP = def.ISP
	}
	return loc
}

func errStatus(status, message string) error {
	if message != "" {
		return fmt.Errorf("geolocation status %q: %s", status, message)
	}
	return fmt.Errorf("geolocation status %q", status)
}
