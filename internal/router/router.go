package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/fieldserve/sms-engine/internal/handler"
	"github.com/fieldserve/sms-engine/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit     rate.Limit
	RateBurst     int
	CORSConfig    middleware.CORSConfig
	MetricsPrefix string
}

type Router struct {
	engine    *gin.Engine
	auth      *middleware.AuthMiddleware
	webhookH  Handler
	templateH Handler
	settingsH Handler
	convH     Handler
	messageH  Handler
	healthH   *handler.HealthHandler
	config    Config
	metrics   *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	webhookH Handler,
	templateH Handler,
	settingsH Handler,
	convH Handler,
	messageH Handler,
	healthH *handler.HealthHandler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	return &Router{
		engine:    gin.New(),
		auth:      auth,
		webhookH:  webhookH,
		templateH: templateH,
		settingsH: settingsH,
		convH:     convH,
		messageH:  messageH,
		healthH:   healthH,
		config:    config,
		metrics:   initRouterMetrics(config.MetricsPrefix),
	}
}

func initRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "path"}),
		requestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "HTTP requests by status",
		}, []string{"method", "path", "status"}),
		errorTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_http_errors_total",
			Help: "HTTP 5xx responses",
		}, []string{"method", "path"}),
	}
}

func (r *Router) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		if c.Writer.Status() >= 500 {
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path).Inc()
		}
	}
}

func (r *Router) Setup() *gin.Engine {
	r.engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.CORS(r.config.CORSConfig),
		r.instrument(),
	)

	r.engine.GET("/health", r.healthH.Health)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")

	// Webhook surface: shared service key plus a rate limit so a
	// runaway emitter throttles here, not in the engine.
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  r.config.RateLimit,
		Burst: r.config.RateBurst,
	})
	webhooks := api.Group("")
	webhooks.Use(r.auth.ServiceAuth(), limiter.RateLimit())
	r.webhookH.RegisterRoutes(webhooks)

	// Admin surface: tenant-scoped JWT.
	admin := api.Group("")
	admin.Use(r.auth.AdminAuth())
	r.templateH.RegisterRoutes(admin)
	r.settingsH.RegisterRoutes(admin)
	r.convH.RegisterRoutes(admin)
	r.messageH.RegisterRoutes(admin)

	return r.engine
}
