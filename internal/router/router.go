package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/uniboxhq/inbox-sync/internal/handler/connection"
	"github.com/uniboxhq/inbox-sync/internal/handler/health"
	"github.com/uniboxhq/inbox-sync/internal/handler/notification"
	"github.com/uniboxhq/inbox-sync/internal/handler/prometheus"
	synchandler "github.com/uniboxhq/inbox-sync/internal/handler/sync"
	"github.com/uniboxhq/inbox-sync/internal/handler/task"
	"github.com/uniboxhq/inbox-sync/internal/handler/webhook"
	"github.com/uniboxhq/inbox-sync/internal/middleware"
)

type Config struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	MetricsEnabled   bool
	MetricsPath      string
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	notificationH *notification.Handler
	taskH         *task.Handler
	connectionH   *connection.Handler
	syncH         *synchandler.Handler
	webhookH      *webhook.Handler
	healthH       *health.Handler
	promH         *prometheus.Handler
	config        Config
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	notificationH *notification.Handler,
	taskH *task.Handler,
	connectionH *connection.Handler,
	syncH *synchandler.Handler,
	webhookH *webhook.Handler,
	healthH *health.Handler,
	promH *prometheus.Handler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)
	if config.MetricsEnabled {
		engine.Use(promH.Middleware())
	}
	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return &Router{
		engine:        engine,
		auth:          auth,
		notificationH: notificationH,
		taskH:         taskH,
		connectionH:   connectionH,
		syncH:         syncH,
		webhookH:      webhookH,
		healthH:       healthH,
		promH:         promH,
		config:        config,
	}
}

func (r *Router) Setup() {
	r.engine.GET("/health", r.healthH.Check)
	if r.config.MetricsEnabled {
		r.engine.GET(r.config.MetricsPath, r.promH.Handler())
	}

	// Webhooks authenticate by signature, not bearer token.
	r.engine.POST("/webhooks/:source/:user_id", r.webhookH.Receive)

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate())
	{
		api.GET("/notifications", r.notificationH.List)
		api.PATCH("/notifications/:id", r.notificationH.Patch)
		api.POST("/notifications/:id/snooze", r.notificationH.Snooze)

		api.GET("/tasks", r.taskH.List)
		api.POST("/tasks", r.taskH.Create)
		api.PATCH("/tasks/:id", r.taskH.Patch)

		api.GET("/connections", r.connectionH.List)
		api.POST("/connections/:source/enable", r.connectionH.Enable)
		api.POST("/connections/:source/disable", r.connectionH.Disable)

		api.POST("/sync/:source", r.syncH.Trigger)
		api.GET("/sync/jobs/:id", r.syncH.GetJob)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
