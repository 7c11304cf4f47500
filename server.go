package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/bootstrap"
	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger := config.NewLogger(cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	app, err := bootstrap.Build(sigCtx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.WithError(err).Fatal("startup")
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.WithError(err).Warn("close connections")
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("listening")
		serverErrCh <- srv.ListenAndServe()
	}()

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("server shutdown")
		}
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func newRouter(app *bootstrap.App) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.Cors(app.Config.IsProduction(), app.Config.CorsAllowedOrigins))
	r.Use(middlewares.RequestLogger(app.Logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	app.Handlers.Register(api.Group("/sync"))
	api.POST("/sync/trigger", triggerSyncHandler(app))
	r.POST("/pubsub/sync", app.Handlers.PubSubPushHandler())

	h := newAPIHandlers(app)
	imports := api.Group("/import")
	imports.POST("/preview", h.previewImport)
	imports.GET("/history", h.importHistory)
	imports.POST("/:type", h.runImport)

	finance := api.Group("/finance")
	finance.GET("/overview", h.financeOverview)
	finance.GET("/suppliers", h.financeSuppliers)
	finance.GET("/export", h.financeExport)

	api.GET("/metrics/daily", h.dailyMetrics)
	api.GET("/cache/stats", h.cacheStats)
	api.POST("/cache/invalidate", h.invalidateCache)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

// triggerSyncHandler queues a sync on Pub/Sub so a push subscriber runs it.
func triggerSyncHandler(app *bootstrap.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if app.Publisher == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pubsub is not configured"})
			return
		}
		var req struct {
			Force bool `json:"force"`
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		id, err := app.Publisher.PublishSyncRequest(c.Request.Context(), req.Force)
		if err != nil {
			config.LogError(app.Logger, "server.go", "triggerSyncHandler", "PublishSyncRequest", req, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not queue sync"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "message_id": id})
	}
}
