package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusattend/internal/auth"
	"campusattend/internal/httpmiddleware"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Options configure the router.
type Options struct {
	Issuer              *auth.Issuer
	RequireTerminalAuth bool
	ProvisioningKey     string
	RateLimitPerSec     float64
	RateBurst           int
	CacheTTL            time.Duration
	CORSOrigins         []string // empty allows any origin
	Checks              map[string]HealthCheck
}

// NewRouter creates and configures a new Gin router.
func NewRouter(svc Attendance, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())

	h := NewHandler(svc, opts)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	if opts.RateLimitPerSec > 0 {
		v1.Use(httpmiddleware.NewIPRateLimiter(opts.RateLimitPerSec, opts.RateBurst).GinMiddleware())
	}
	{
		v1.POST("/terminals/register", h.RegisterTerminal)

		// every write to the ledger needs a terminal token when auth is on
		writes := v1.Group("/attendance")
		if opts.RequireTerminalAuth && opts.Issuer != nil {
			writes.Use(auth.TerminalAuth(opts.Issuer))
		}
		writes.POST("/check-in", h.CheckIn)
		writes.POST("/check-out", h.CheckOut)
		writes.POST("/exception", h.SetException)

		// reads tolerate staleness, so summaries are cached briefly
		caching := httpmiddleware.Cache(httpmiddleware.NewCacheStore(opts.CacheTTL), opts.CacheTTL)
		reports := v1.Group("/attendance")
		reports.GET("/summary", caching, h.ClassSummary)
		reports.GET("/monthly", caching, h.Monthly)
		reports.GET("/semester", caching, h.Semester)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
