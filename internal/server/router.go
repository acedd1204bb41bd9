package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/zapgestor/zapgestor/internal/api/handler"
	"github.com/zapgestor/zapgestor/internal/api/middleware"
)

type Options struct {
	Env             string
	WebhookHandler  *handler.WebhookHandler
	InstanceHandler *handler.InstanceHandler
	MatchingHandler *handler.MatchingHandler
	HealthHandler   *handler.HealthHandler
	IPRateLimit     middleware.IPRateLimitOption
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		MaxAge:       12 * time.Hour,
	}))

	api := router.Group("/api")

	opts.HealthHandler.Register(api)

	// O webhook é a única rota exposta à internet; o rate limit por IP
	// protege contra floods sem atrapalhar o gateway legítimo.
	public := api.Group("")
	public.Use(middleware.IPRateLimit(opts.IPRateLimit))
	opts.WebhookHandler.Register(public)

	opts.InstanceHandler.Register(api)
	opts.MatchingHandler.Register(api)

	return router
}
