package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"linemon-backend/config"
	"linemon-backend/internal/mw"
	"linemon-backend/internal/report"
	"linemon-backend/internal/store"
)

// RouterOptions carries what the router wires into its handlers.
type RouterOptions struct {
	Server   config.ServerConfig
	Store    store.Store
	Reports  *report.Service
	WebPush  *webpush.Options
	Registry *prometheus.Registry
	Now      func() time.Time
}

// NewRouter creates and configures a new Gin router.
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}
	r.Use(gin.Recovery(), mw.RequestID(), mw.Metrics(reg))

	handler := NewHandler(opts.Store, opts.Reports, opts.WebPush)
	if opts.Now != nil {
		handler.now = opts.Now
	}

	rateLimiter := mw.RateLimiter(rate.Limit(opts.Server.RateLimitPerSec), opts.Server.RateLimitBurst)

	ttl := time.Duration(opts.Server.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 10*time.Minute), ttl)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/health", GetHealth)

		api.GET("/summary", caching, handler.GetSummary)
		api.GET("/metrics", caching, handler.GetSeries)
		api.GET("/metrics/recent", caching, handler.GetRecentMetrics)
		api.GET("/alerts", caching, handler.GetAlerts)
		api.GET("/maintenance", caching, handler.GetMaintenance)

		api.GET("/equipment", handler.ListEquipment)
		api.POST("/equipment", handler.CreateEquipment)
		api.PUT("/equipment/:id", handler.UpdateEquipment)
		api.DELETE("/equipment/:id", handler.DeleteEquipment)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
