package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vylinhq/vylin/internal/audit"
	"github.com/vylinhq/vylin/internal/chat"
	chatdomain "github.com/vylinhq/vylin/internal/chat/domain"
	"github.com/vylinhq/vylin/internal/config"
	"github.com/vylinhq/vylin/internal/identity"
	"github.com/vylinhq/vylin/internal/observability"
	obsmiddleware "github.com/vylinhq/vylin/internal/observability/logger"
	obsmetrics "github.com/vylinhq/vylin/internal/observability/metrics"
	obstracing "github.com/vylinhq/vylin/internal/observability/tracing"
	"github.com/vylinhq/vylin/internal/providers"
	"github.com/vylinhq/vylin/internal/quota"
	"github.com/vylinhq/vylin/internal/ratelimit"
	"github.com/vylinhq/vylin/internal/usagemetrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	usagemetrics.Module,
	fx.Provide(registerGin),
	audit.Module,
	identity.Module,
	providers.Module,
	quota.Module,
	ratelimit.Module,
	chat.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, limiter *ratelimit.PerimeterLimiter, metrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ratelimit.Middleware(limiter, metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type engineParams struct {
	fx.In

	ObsCfg  observability.Config
	Limiter *ratelimit.PerimeterLimiter `optional:"true"`
	Metrics *obsmetrics.Metrics         `optional:"true"`
}

func registerGin(p engineParams) *gin.Engine {
	return NewEngine(p.ObsCfg, p.Limiter, p.Metrics)
}

type Server struct {
	engine   *gin.Engine
	log      *zap.Logger
	chatSvc  chatdomain.Service
	resolver *identity.Resolver
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Log      *zap.Logger
	ChatSvc  chatdomain.Service
	Resolver *identity.Resolver
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:   p.Gin,
		log:      p.Log.Named("server"),
		chatSvc:  p.ChatSvc,
		resolver: p.Resolver,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.POST("/chat", s.handleChat)
}

type runParams struct {
	fx.In

	LC  fx.Lifecycle
	Cfg config.Config
	Gin *gin.Engine
	Log *zap.Logger
}

func run(p runParams) {
	srv := &http.Server{
		Addr:    p.Cfg.ListenAddr,
		Handler: p.Gin,
	}

	p.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Log.Info("http server listening", zap.String("addr", p.Cfg.ListenAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
