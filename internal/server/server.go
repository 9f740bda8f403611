package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	"github.com/smallbiznis/guildpass/internal/config"
	"github.com/smallbiznis/guildpass/internal/entitlement"
	"github.com/smallbiznis/guildpass/internal/observability"
	obslogger "github.com/smallbiznis/guildpass/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/guildpass/internal/observability/metrics"
	obstracing "github.com/smallbiznis/guildpass/internal/observability/tracing"
	"github.com/smallbiznis/guildpass/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"github.com/smallbiznis/guildpass/internal/sweeper"
	"github.com/smallbiznis/guildpass/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	orchestrator    *webhook.Orchestrator
	subscriptionSvc subscriptiondomain.Service
	activitySvc     activitydomain.Service
	entitlements    *entitlement.Synchronizer
	sweeper         *sweeper.Sweeper
	triggerLimiter  *ratelimit.TriggerLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Orchestrator    *webhook.Orchestrator
	SubscriptionSvc subscriptiondomain.Service
	ActivitySvc     activitydomain.Service
	Entitlements    *entitlement.Synchronizer
	Sweeper         *sweeper.Sweeper          `optional:"true"`
	TriggerLimiter  *ratelimit.TriggerLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		orchestrator:    p.Orchestrator,
		subscriptionSvc: p.SubscriptionSvc,
		activitySvc:     p.ActivitySvc,
		entitlements:    p.Entitlements,
		sweeper:         p.Sweeper,
		triggerLimiter:  p.TriggerLimiter,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	hooks := s.engine.Group("/webhooks")
	hooks.POST("/payment", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.POST("/checkout", s.Checkout)
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal", BearerTokenRequired(s.cfg.SweeperTriggerToken))

	// -------- Sweeps --------
	internal.POST("/sweeps/run", s.RunSweep)

	// -------- Subscriptions --------
	internal.POST("/subscriptions/:id/resync", s.ResyncSubscription)
	internal.GET("/subscriptions/:id/activity", s.ListSubscriptionActivity)
}
