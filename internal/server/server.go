package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerforgelabs/ledgerforge/internal/config"
	"github.com/ledgerforgelabs/ledgerforge/internal/connector"
	"github.com/ledgerforgelabs/ledgerforge/internal/ingest"
	"github.com/ledgerforgelabs/ledgerforge/internal/reconciliation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Engine   *gin.Engine
	Log      *zap.Logger
	Cfg      config.Config
	Registry *connector.Registry
	Ingest   *ingest.Service
	Recon    *reconciliation.Service
	Metrics  *prometheus.Registry
}

type Server struct {
	engine   *gin.Engine
	log      *zap.Logger
	cfg      config.Config
	registry *connector.Registry
	ingest   *ingest.Service
	recon    *reconciliation.Service
	metrics  *prometheus.Registry
}

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))
	return engine
}

func NewServer(p Params) *Server {
	return &Server{
		engine:   p.Engine,
		log:      p.Log.Named("server"),
		cfg:      p.Cfg,
		registry: p.Registry,
		ingest:   p.Ingest,
		recon:    p.Recon,
		metrics:  p.Metrics,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))

	s.engine.POST("/webhooks/:provider/:org", s.HandleWebhook)

	api := s.engine.Group("/api")
	api.GET("/connectors", s.ListConnectors)
	api.GET("/reconciliation/pending", s.ListPendingTransactions)
	api.GET("/reconciliation/:transaction_id/candidates", s.ListMatchCandidates)
	api.POST("/reconciliation/:transaction_id/confirm", s.ConfirmMatch)
	api.POST("/reconciliation/:transaction_id/ignore", s.IgnoreTransaction)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func RunHTTP(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
)
