package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	handlers_analytics "sparsh/internal/handlers/analytics"
	handlers_auth "sparsh/internal/handlers/auth"
	handlers_gallery "sparsh/internal/handlers/gallery"
	handlers_images "sparsh/internal/handlers/images"
	handlers_reviews "sparsh/internal/handlers/reviews"
	"sparsh/internal/models/spanalytics"
	"sparsh/internal/models/spauth"
	"sparsh/internal/models/spcaptchas"
	"sparsh/internal/models/spconfig"
	"sparsh/internal/models/spdb"
	"sparsh/internal/models/spgeo"
	"sparsh/internal/models/spimages"
	"sparsh/internal/models/splive"
	"sparsh/internal/models/spmedia"
	"sparsh/internal/models/spredis"
	"sparsh/internal/models/spreviews"
	"sparsh/internal/models/spusers"
	"sparsh/internal/spmiddleware"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const uploadsPath = "/uploads"

// App regroupe les dépendances construites au démarrage et leur cycle de vie
type App struct {
	conf      *spconfig.Config
	db        *gorm.DB
	redis     *redis.Client
	mmdb      *spgeo.MMDBProvider
	store     *spmedia.Store
	hub       *splive.Hub
	tokens    *spauth.Tokens
	captcha   *spcaptchas.Captchas
	images    *spimages.Service
	reviews   *spreviews.Service
	analytics *spanalytics.Service
	sweeper   *spmedia.Sweeper
}

func newApp(ctx context.Context, conf *spconfig.Config) (*App, error) {
	a := &App{conf: conf}

	db, err := spdb.Open(conf)
	if err != nil {
		return nil, err
	}
	a.db = db

	if _, err := spusers.EnsureAdmin(ctx, db, conf.User); err != nil {
		return nil, fmt.Errorf("administrateur: %w", err)
	}

	// redis est optionnel : sans lui les compteurs et le limiter restent en mémoire
	a.redis, err = spredis.NewClient(ctx, conf.Database.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis indisponible, fonctionnement sans cache")
		a.redis = nil
	}

	var provider spgeo.Provider
	if conf.Geo.MMDB != "" {
		a.mmdb, err = spgeo.OpenMMDB(conf.Geo.MMDB)
		if err != nil {
			return nil, err
		}
		provider = a.mmdb
	} else {
		provider = spgeo.NewIPAPIProvider(conf.Geo.APIURL, conf.Geo.Timeout)
	}
	resolver := spgeo.NewResolver(spanalytics.NewVisitorCache(db), provider, conf.Geo.CacheWindow)

	a.store, err = spmedia.NewStore(conf.StaticPath, strings.TrimSuffix(conf.BaseURL, "/")+uploadsPath)
	if err != nil {
		return nil, err
	}

	a.tokens, err = spauth.New(conf.Auth.Secret, conf.Auth.TTL)
	if err != nil {
		return nil, err
	}

	var captchaStore base64Captcha.Store
	if a.redis != nil {
		captchaStore = spredis.NewCaptchaStore(a.redis)
	}
	a.captcha = spcaptchas.New(captchaStore, conf.Production)

	a.hub = splive.NewHub(conf.ClientOrigins)
	a.images = spimages.NewService(db, a.store, a.hub)
	a.reviews = spreviews.NewService(db, a.store)
	a.analytics = spanalytics.NewService(db, a.redis, resolver)
	a.sweeper = spmedia.NewSweeper(a.store, a.images.ReferencedFiles, a.reviews.ReferencedFiles)

	return a, nil
}

// Start lance le hub temps réel et le nettoyage des fichiers orphelins
func (a *App) Start(ctx context.Context) error {
	go a.hub.Run(ctx)

	removed, err := a.sweeper.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("nettoyage initial impossible")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("fichiers orphelins supprimés au démarrage")
	}

	return a.sweeper.Start(a.conf.Cleanup.Schedule)
}

func (a *App) Close() {
	a.sweeper.Stop()
	a.hub.Close()
	if a.mmdb != nil {
		_ = a.mmdb.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *App) newServer() *gin.Engine {
	if a.conf.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	if a.conf.TrustedProxies != nil {
		if err := r.SetTrustedProxies(a.conf.TrustedProxies); err != nil {
			log.Warn().Err(err).Msg("trustedproxies invalide")
		}
	}
	if a.conf.TrustedPlatform != "" {
		switch a.conf.TrustedPlatform {
		case "cloudflare":
			r.TrustedPlatform = gin.PlatformCloudflare
		case "google":
			r.TrustedPlatform = gin.PlatformGoogleAppEngine
		case "flyio":
			r.TrustedPlatform = gin.PlatformFlyIO
		default:
			r.TrustedPlatform = a.conf.TrustedPlatform
		}
	}

	// 32 Mo en mémoire, le reste sur disque ; la taille des images est bornée par spmedia
	r.MaxMultipartMemory = 32 << 20
	return r
}

func (a *App) setRoutes(r *gin.Engine) error {
	globalStore, err := spmiddleware.NewLimiterStore(a.redis, "global")
	if err != nil {
		return err
	}
	loginStore, err := spmiddleware.NewLimiterStore(a.redis, "login")
	if err != nil {
		return err
	}
	apiLimiter := spmiddleware.NewLimiter(globalStore, a.conf.RateLimit.Window, a.conf.RateLimit.Max)
	loginLimiter := spmiddleware.NewLimiter(loginStore, time.Minute, a.conf.RateLimit.Login)
	authRequired := spmiddleware.AuthRequired(a.tokens)

	authHandler := handlers_auth.NewAuthHandler(a.db, a.tokens)
	imagesHandler := handlers_images.NewImagesHandler(a.images)
	galleryHandler := handlers_gallery.NewGalleryHandler(a.images)
	reviewsHandler := handlers_reviews.NewReviewsHandler(a.reviews, a.captcha, a.conf.Reviews.Captcha)
	analyticsHandler := handlers_analytics.NewAnalyticsHandler(a.analytics)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Route not found"})
	})

	r.Static(uploadsPath, a.conf.StaticPath)
	r.GET("/ws", a.hub.ServeWS)

	api := r.Group("/api")
	api.Use(apiLimiter)

	api.GET("/health", a.health)
	api.GET("/captcha", reviewsHandler.Captcha)

	auth := api.Group("/auth")
	{
		auth.POST("/login", loginLimiter, authHandler.Login)
		auth.GET("/me", authRequired, authHandler.Me)
		auth.POST("/logout", authHandler.Logout)
	}

	images := api.Group("/images")
	images.Use(authRequired)
	{
		images.POST("/upload", imagesHandler.Upload)
		images.GET("/admin", imagesHandler.AdminList)
		images.PUT("/:id", imagesHandler.Update)
		images.DELETE("/:id", imagesHandler.Delete)
	}

	gallery := api.Group("/gallery")
	{
		gallery.GET("", galleryHandler.List)
		gallery.GET("/filters", galleryHandler.Filters)
		gallery.GET("/:id", galleryHandler.Get)
	}

	reviews := api.Group("/reviews")
	{
		reviews.POST("/submit", reviewsHandler.Submit)
		reviews.GET("/public", reviewsHandler.Public)
	}
	reviewsAdmin := reviews.Group("/admin")
	reviewsAdmin.Use(authRequired)
	{
		reviewsAdmin.GET("", reviewsHandler.AdminList)
		reviewsAdmin.GET("/stats", reviewsHandler.Stats)
		reviewsAdmin.PUT("/:id/approve", reviewsHandler.Approve)
		reviewsAdmin.PUT("/:id/visibility", reviewsHandler.SetVisibility)
		reviewsAdmin.DELETE("/:id", reviewsHandler.Delete)
	}

	analytics := api.Group("/analytics")
	{
		analytics.POST("/track", analyticsHandler.Track)
		analytics.PUT("/track/:sessionId/duration", analyticsHandler.UpdateDuration)
		analytics.GET("/stats", authRequired, analyticsHandler.Stats)
		analytics.GET("/overview", authRequired, analyticsHandler.Overview)
		analytics.GET("/realtime", authRequired, analyticsHandler.GetRealtimeStats)
	}

	return nil
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"status":      "ok",
		"version":     BuildID,
		"liveClients": a.hub.ClientCount(),
		"timestamp":   time.Now().UTC(),
	})
}

// Handler construit le moteur gin complet
func (a *App) Handler() (*gin.Engine, error) {
	r := a.newServer()
	spmiddleware.InitMiddleware(r, a.conf, "/ws")
	if err := a.setRoutes(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Serve écoute jusqu'à l'annulation du contexte puis arrête proprement le serveur
func (a *App) Serve(ctx context.Context) error {
	r, err := a.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.conf.Listen.Website,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API démarrée sur http://%s", a.conf.Listen.Website)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("arrêt du serveur")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
