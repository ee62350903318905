package handlers_analytics

import (
	"net/http"
	"sparsh/internal/handlers/respond"
	"sparsh/internal/models/spanalytics"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/spgeo"
	"time"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

type AnalyticsHandler struct {
	service *spanalytics.Service
	loc     *time.Location
}

type trackRequest struct {
	SessionID    string `json:"sessionId"`
	Page         string `json:"page"`
	Referrer     string `json:"referrer"`
	UserAgent    string `json:"userAgent"`
	IsFirstVisit bool   `json:"isFirstVisit"`
}

type durationRequest struct {
	Duration *int `json:"duration"`
}

func NewAnalyticsHandler(service *spanalytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		loc:     time.Local,
	}
}

// Track enregistre une page vue et renvoie la localisation résolue
func (ah *AnalyticsHandler) Track(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, sperr.Invalid("invalid tracking payload"), "")
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}
	if req.Referrer == "" {
		req.Referrer = c.Request.Referer()
	}

	res, err := ah.service.Track(c.Request.Context(), spanalytics.TrackInput{
		SessionID:    req.SessionID,
		Page:         req.Page,
		Referrer:     req.Referrer,
		UserAgent:    req.UserAgent,
		IsFirstVisit: req.IsFirstVisit,
		IP:           spgeo.ClientIP(c),
	})
	if err != nil {
		respond.Error(c, err, "Failed to track visitor")
		return
	}

	respond.OK(c, http.StatusOK, gin.H{
		"message":  "Visitor tracked successfully",
		"location": res.Visitor.Location,
		"resolved": res.Geo.Resolved,
		"source":   res.Geo.Source,
	})
}

// UpdateDuration : une session inconnue n'est pas une erreur
func (ah *AnalyticsHandler) UpdateDuration(c *gin.Context) {
	var req durationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Duration == nil {
		respond.Error(c, sperr.Invalid("duration must be a number of seconds"), "")
		return
	}

	updated, err := ah.service.UpdateDuration(c.Request.Context(), c.Param("sessionId"), *req.Duration)
	if err != nil {
		respond.Error(c, err, "Failed to update visit duration")
		return
	}

	respond.OK(c, http.StatusOK, gin.H{
		"message": "Visit duration updated",
		"updated": updated,
	})
}

// Stats : period=daily|monthly|countries, startDate et endDate optionnels
func (ah *AnalyticsHandler) Stats(c *gin.Context) {
	q, err := ah.statsQuery(c)
	if err != nil {
		respond.Error(c, err, "")
		return
	}

	ctx := c.Request.Context()
	period := c.DefaultQuery("period", "daily")

	var stats any
	switch period {
	case "daily":
		stats, err = ah.service.Daily(ctx, q)
	case "monthly":
		stats, err = ah.service.Monthly(ctx, q)
	case "countries":
		stats, err = ah.service.Countries(ctx, q)
	default:
		respond.Error(c, sperr.Invalid("period must be one of: daily, monthly, countries"), "")
		return
	}
	if err != nil {
		respond.Error(c, err, "Failed to fetch analytics")
		return
	}

	respond.OK(c, http.StatusOK, gin.H{"data": stats, "type": period})
}

func (ah *AnalyticsHandler) statsQuery(c *gin.Context) (spanalytics.StatsQuery, error) {
	var q spanalytics.StatsQuery
	var err error

	if raw := c.Query("startDate"); raw != "" {
		if q.From, _, err = ah.parseDate(raw); err != nil {
			return q, sperr.Invalid("startDate must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
		}
	}
	if raw := c.Query("endDate"); raw != "" {
		var dateOnly bool
		if q.To, dateOnly, err = ah.parseDate(raw); err != nil {
			return q, sperr.Invalid("endDate must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
		}
		// une date seule couvre toute la journée
		if dateOnly {
			q.To = q.To.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, sperr.Invalid("endDate must not be before startDate")
	}
	return q, nil
}

func (ah *AnalyticsHandler) parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(dateLayout, raw, ah.loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, false, err
}

func (ah *AnalyticsHandler) Overview(c *gin.Context) {
	overview, err := ah.service.Overview(c.Request.Context())
	if err != nil {
		respond.Error(c, err, "Failed to fetch analytics overview")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"data": overview})
}

// GetRealtimeStats retourne les compteurs du jour
func (ah *AnalyticsHandler) GetRealtimeStats(c *gin.Context) {
	stats, err := ah.service.Realtime(c.Request.Context())
	if err != nil {
		respond.Error(c, err, "Failed to retrieve realtime stats")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"data": stats})
}
