package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"psyeval-server/config"
	"psyeval-server/db"
	"psyeval-server/handlers"
	"psyeval-server/ingestion"
	"psyeval-server/middleware"
	"psyeval-server/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// Initialize database connection pool
	pool, err := db.InitDB(context.Background(), cfg.DatabaseURL, cfg.DB.PingTimeout)
	if err != nil {
		logger.Fatal("Unable to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.CreateSchema(context.Background(), pool); err != nil {
		logger.Fatal("Error creating database schema", zap.Error(err))
	}
	store := db.NewStore(pool)

	if cfg.Import.Path != "" {
		summary, err := ingestion.ImportDir(context.Background(), store, cfg.Import.Path)
		if err != nil {
			logger.Error("Startup questionnaire import failed", zap.Error(err))
		} else {
			logger.Info("Startup questionnaire import finished",
				zap.Int("imported", len(summary.Imported)),
				zap.Int("skipped", len(summary.Skipped)),
				zap.Int("failed", len(summary.Failed)))
		}
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewHTTPMetrics(reg)

	router.Use(middleware.Stack(logger, metrics)...)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	handlers.RegisterRoutes(router, store, cfg.Import.Path)

	srv := &http.Server{
		Addr:    utils.ListenAddr(cfg.ServerPort),
		Handler: router,
	}

	// Goroutine to gracefully shut down the server
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
	}()

	logger.Info("Server starting", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server startup error", zap.Error(err))
	}
	logger.Info("Server exited gracefully.")
}

// newLogger builds a development logger in gin debug mode and a JSON
// production logger otherwise, at the configured level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.GinMode == gin.DebugMode {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}
