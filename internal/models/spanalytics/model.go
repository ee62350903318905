package spanalytics

import (
	"sparsh/internal/models/spgeo"
	"time"
)

// Visitor représente une page vue ; il n'y a pas d'entité visiteur
type Visitor struct {
	ID            uint64         `gorm:"primaryKey" json:"id"`
	IPAddress     string         `gorm:"type:varchar(64);not null;index;index:idx_visitor_ip_session" json:"ipAddress"`
	SessionID     string         `gorm:"type:varchar(128);not null;index;index:idx_visitor_ip_session" json:"sessionId"`
	Location      spgeo.Location `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	UserAgent     string         `gorm:"type:text" json:"userAgent"`
	Referrer      string         `gorm:"type:text" json:"referrer"`
	Page          string         `gorm:"type:varchar(512);default:/" json:"page"`
	IsFirstVisit  bool           `json:"isFirstVisit"`
	VisitDuration int            `gorm:"default:0" json:"visitDuration"`
	CreatedAt     time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// TableName spécifie le nom de la table pour Visitor
func (Visitor) TableName() string {
	return "visitors"
}

// RecentVisitor est la projection affichée sur le tableau de bord
type RecentVisitor struct {
	ID            uint64         `json:"id"`
	Location      spgeo.Location `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	CreatedAt     time.Time      `json:"createdAt"`
	IPAddress     string         `json:"ipAddress"`
	Page          string         `json:"page"`
	UserAgent     string         `json:"userAgent"`
	VisitDuration int            `json:"visitDuration"`
}

type DailyStat struct {
	Date           string `json:"date"`
	Country        string `json:"country"`
	City           string `json:"city"`
	Count          int64  `json:"count"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
	FirstVisits    int64  `json:"firstVisits"`
}

type MonthlyStat struct {
	Month           string `json:"month"`
	TotalVisits     int64  `json:"totalVisits"`
	UniqueVisitors  int64  `json:"uniqueVisitors"`
	UniqueCountries int64  `json:"uniqueCountries"`
	FirstVisits     int64  `json:"firstVisits"`
}

type CountryStat struct {
	Country        string `json:"country"`
	CountryCode    string `json:"countryCode"`
	TotalVisits    int64  `json:"totalVisits"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
	UniqueCities   int64  `json:"uniqueCities"`
	FirstVisits    int64  `json:"firstVisits"`
}

// PeriodStat : compteurs d'une période du tableau de bord
type PeriodStat struct {
	TotalVisits    int64 `json:"totalVisits"`
	UniqueVisitors int64 `json:"uniqueVisitors"`
	Countries      int64 `json:"countries"`
	FirstVisits    int64 `json:"firstVisits"`
}

type TopCountry struct {
	Country        string `json:"country"`
	Count          int64  `json:"count"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
}

type Overview struct {
	Today          PeriodStat      `json:"today"`
	Yesterday      PeriodStat      `json:"yesterday"`
	ThisMonth      PeriodStat      `json:"thisMonth"`
	LastMonth      PeriodStat      `json:"lastMonth"`
	RecentVisitors []RecentVisitor `json:"recentVisitors"`
	TopCountries   []TopCountry    `json:"topCountries"`
}

type RealtimeStats struct {
	Date                string `json:"date"`
	TodayPageViews      int64  `json:"todayPageViews"`
	TodayUniqueVisitors int64  `json:"todayUniqueVisitors"`
	Source              string `json:"source"`
}
