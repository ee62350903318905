package spanalytics

import (
	"context"
	"errors"
	"fmt"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/spgeo"
	"sparsh/internal/models/splog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	MaxVisitDuration = 24 * 60 * 60

	dailyLimit   = 100
	monthlyLimit = 12
	countryLimit = 50
	recentLimit  = 10
	topLimit     = 5

	counterTTL = 31 * 24 * time.Hour
)

// SUBSTR force une chaîne pour que sqlite et mysql renvoient le même format
const (
	dayExpr   = "SUBSTR(DATE(created_at), 1, 10)"
	monthExpr = "SUBSTR(DATE(created_at), 1, 7)"
)

var (
	ErrMissingSession   = sperr.Invalid("sessionId is required")
	ErrNegativeDuration = sperr.Invalid("duration must be a non-negative number of seconds")
)

// TrackInput décrit une page vue envoyée par le client
type TrackInput struct {
	SessionID    string
	Page         string
	Referrer     string
	UserAgent    string
	IsFirstVisit bool
	IP           string
}

type TrackResult struct {
	Visitor *Visitor
	Geo     spgeo.Result
}

// StatsQuery borne les agrégats ; une borne nulle n'est pas appliquée
type StatsQuery struct {
	From time.Time
	To   time.Time
}

func (q StatsQuery) apply(db *gorm.DB) *gorm.DB {
	if !q.From.IsZero() {
		db = db.Where("created_at >= ?", q.From.UTC())
	}
	if !q.To.IsZero() {
		db = db.Where("created_at <= ?", q.To.UTC())
	}
	return db
}

type Service struct {
	db       *gorm.DB
	redis    *redis.Client
	resolver *spgeo.Resolver
	loc      *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService : redisClient peut être nil, les compteurs temps réel sont alors calculés en base
func NewService(db *gorm.DB, redisClient *redis.Client, resolver *spgeo.Resolver) *Service {
	return &Service{
		db:       db,
		redis:    redisClient,
		resolver: resolver,
		loc:      time.Local,
		now:      time.Now,
		logger:   splog.For("analytics"),
	}
}

// Track géolocalise l'IP puis enregistre la visite
func (s *Service) Track(ctx context.Context, in TrackInput) (*TrackResult, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		return nil, ErrMissingSession
	}
	if in.Page == "" {
		in.Page = "/"
	}
	ip := spgeo.CleanIP(in.IP)

	geo := spgeo.Result{Location: spgeo.DefaultLocation(), Source: spgeo.SourceFallback, Reason: "no resolver"}
	if s.resolver != nil {
		geo = s.resolver.Resolve(ctx, ip)
	}

	now := s.now().UTC()
	visitor := &Visitor{
		IPAddress:    ip,
		SessionID:    in.SessionID,
		Location:     geo.Location,
		UserAgent:    in.UserAgent,
		Referrer:     in.Referrer,
		Page:         in.Page,
		IsFirstVisit: in.IsFirstVisit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(visitor).Error; err != nil {
		return nil, fmt.Errorf("enregistrement visite: %w", err)
	}

	s.bumpCounters(ctx, ip, now)

	s.logger.Debug().
		Str("ip", ip).
		Str("page", visitor.Page).
		Str("country", visitor.Location.Country).
		Str("geo_source", geo.Source).
		Msg("visit tracked")

	return &TrackResult{Visitor: visitor, Geo: geo}, nil
}

// bumpCounters alimente les compteurs redis du jour ; les erreurs sont seulement journalisées
func (s *Service) bumpCounters(ctx context.Context, ip string, now time.Time) {
	if s.redis == nil {
		return
	}
	day := now.In(s.loc).Format("2006-01-02")

	pipe := s.redis.Pipeline()
	cacheKey := "analytics:daily:" + day
	pipe.HIncrBy(ctx, cacheKey, "page_views", 1)
	pipe.Expire(ctx, cacheKey, counterTTL)
	visitorKey := "analytics:visitors:" + day
	pipe.SAdd(ctx, visitorKey, ip)
	pipe.Expire(ctx, visitorKey, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("redis counters update failed")
	}
}

// UpdateDuration écrit la durée sur la visite la plus récente de la session.
// Renvoie false si aucune visite ne correspond.
func (s *Service) UpdateDuration(ctx context.Context, sessionID string, seconds int) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, ErrMissingSession
	}
	if seconds < 0 {
		return false, ErrNegativeDuration
	}
	if seconds > MaxVisitDuration {
		seconds = MaxVisitDuration
	}

	var latest Visitor
	err := s.db.WithContext(ctx).
		Select("id").
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("recherche session: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&Visitor{}).
		Where("id = ?", latest.ID).
		Updates(map[string]interface{}{
			"visit_duration": seconds,
			"updated_at":     s.now().UTC(),
		}).Error
	if err != nil {
		return false, fmt.Errorf("mise à jour durée: %w", err)
	}
	return true, nil
}

// VisitorCache réutilise la localisation d'une visite récente de la même IP
type VisitorCache struct {
	db *gorm.DB
}

func NewVisitorCache(db *gorm.DB) *VisitorCache {
	return &VisitorCache{db: db}
}

func (c *VisitorCache) RecentLocation(ctx context.Context, ip string, since time.Time) (*spgeo.Location, error) {
	var v Visitor
	err := c.db.WithContext(ctx).
		Where("ip_address = ? AND created_at >= ?", ip, since.UTC()).
		Order("created_at DESC").
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v.Location, nil
}

// Daily regroupe par (jour, pays, ville), jours les plus récents d'abord
func (s *Service) Daily(ctx context.Context, q StatsQuery) ([]DailyStat, error) {
	stats := []DailyStat{}
	err := q.apply(s.db.WithContext(ctx).Model(&Visitor{})).
		Select(dayExpr + " AS date, location_country AS country, location_city AS city, " +
			"COUNT(*) AS count, COUNT(DISTINCT ip_address) AS unique_visitors, " +
			"SUM(CASE WHEN is_first_visit THEN 1 ELSE 0 END) AS first_visits").
		Group(dayExpr + ", location_country, location_city").
		Order("date DESC, count DESC").
		Limit(dailyLimit).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("error getting daily stats: %w", err)
	}
	return stats, nil
}

// Monthly regroupe par mois calendaire, mois les plus récents d'abord
func (s *Service) Monthly(ctx context.Context, q StatsQuery) ([]MonthlyStat, error) {
	stats := []MonthlyStat{}
	err := q.apply(s.db.WithContext(ctx).Model(&Visitor{})).
		Select(monthExpr + " AS month, COUNT(*) AS total_visits, " +
			"COUNT(DISTINCT ip_address) AS unique_visitors, " +
			"COUNT(DISTINCT location_country) AS unique_countries, " +
			"SUM(CASE WHEN is_first_visit THEN 1 ELSE 0 END) AS first_visits").
		Group(monthExpr).
		Order("month DESC").
		Limit(monthlyLimit).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("error getting monthly stats: %w", err)
	}
	return stats, nil
}

// Countries regroupe par pays, les plus visités d'abord
func (s *Service) Countries(ctx context.Context, q StatsQuery) ([]CountryStat, error) {
	stats := []CountryStat{}
	err := q.apply(s.db.WithContext(ctx).Model(&Visitor{})).
		Select("location_country AS country, location_country_code AS country_code, " +
			"COUNT(*) AS total_visits, COUNT(DISTINCT ip_address) AS unique_visitors, " +
			"COUNT(DISTINCT location_city) AS unique_cities, " +
			"SUM(CASE WHEN is_first_visit THEN 1 ELSE 0 END) AS first_visits").
		Group("location_country, location_country_code").
		Order("total_visits DESC, country ASC").
		Limit(countryLimit).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("error getting country stats: %w", err)
	}
	return stats, nil
}

// Overview calcule les périodes à partir de minuit heure locale ;
// le classement des pays porte sur tout l'historique
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	yesterday := today.AddDate(0, 0, -1)
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	lastMonth := thisMonth.AddDate(0, -1, 0)

	out := &Overview{}
	var err error

	if out.Today, err = s.period(ctx, today, time.Time{}); err != nil {
		return nil, err
	}
	if out.Yesterday, err = s.period(ctx, yesterday, today); err != nil {
		return nil, err
	}
	if out.ThisMonth, err = s.period(ctx, thisMonth, time.Time{}); err != nil {
		return nil, err
	}
	if out.LastMonth, err = s.period(ctx, lastMonth, thisMonth); err != nil {
		return nil, err
	}

	out.RecentVisitors = []RecentVisitor{}
	err = s.db.WithContext(ctx).Model(&Visitor{}).
		Order("created_at DESC, id DESC").
		Limit(recentLimit).
		Find(&out.RecentVisitors).Error
	if err != nil {
		return nil, fmt.Errorf("error getting recent visitors: %w", err)
	}

	out.TopCountries = []TopCountry{}
	err = s.db.WithContext(ctx).Model(&Visitor{}).
		Select("location_country AS country, COUNT(*) AS count, COUNT(DISTINCT ip_address) AS unique_visitors").
		Group("location_country").
		Order("count DESC, country ASC").
		Limit(topLimit).
		Scan(&out.TopCountries).Error
	if err != nil {
		return nil, fmt.Errorf("error getting top countries: %w", err)
	}

	return out, nil
}

// period compte les visites de [from, to) ; to nul signifie sans borne haute
func (s *Service) period(ctx context.Context, from, to time.Time) (PeriodStat, error) {
	var stat PeriodStat
	db := s.db.WithContext(ctx).Model(&Visitor{}).Where("created_at >= ?", from.UTC())
	if !to.IsZero() {
		db = db.Where("created_at < ?", to.UTC())
	}
	err := db.Select("COUNT(*) AS total_visits, COUNT(DISTINCT ip_address) AS unique_visitors, " +
		"COUNT(DISTINCT location_country) AS countries, " +
		"COALESCE(SUM(CASE WHEN is_first_visit THEN 1 ELSE 0 END), 0) AS first_visits").
		Scan(&stat).Error
	if err != nil {
		return stat, fmt.Errorf("error counting period: %w", err)
	}
	return stat, nil
}

// Realtime lit les compteurs redis du jour, ou la base sans redis
func (s *Service) Realtime(ctx context.Context) (*RealtimeStats, error) {
	now := s.now().In(s.loc)
	day := now.Format("2006-01-02")
	out := &RealtimeStats{Date: day}

	if s.redis != nil {
		pageViews, err := s.redis.HGet(ctx, "analytics:daily:"+day, "page_views").Int64()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		uniqueVisitors, err := s.redis.SCard(ctx, "analytics:visitors:"+day).Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		out.TodayPageViews = pageViews
		out.TodayUniqueVisitors = uniqueVisitors
		out.Source = "redis"
		return out, nil
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	stat, err := s.period(ctx, today, time.Time{})
	if err != nil {
		return nil, err
	}
	out.TodayPageViews = stat.TotalVisits
	out.TodayUniqueVisitors = stat.UniqueVisitors
	out.Source = "database"
	return out, nil
}
