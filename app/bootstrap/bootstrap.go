package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/beego/beego/v2/server/web"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/studybuddy/tutor-backend/app/middleware"
	"github.com/studybuddy/tutor-backend/app/router"
	"github.com/studybuddy/tutor-backend/internal/config"
	"github.com/studybuddy/tutor-backend/internal/di"
	"github.com/studybuddy/tutor-backend/internal/logger"
	"github.com/studybuddy/tutor-backend/internal/worksheet"
)

const shutdownTimeout = 15 * time.Second

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Config     *config.Config
	Components *di.Components
	Server     *web.HttpServer
	Routes     *router.RouteGroup

	loader       *config.Loader
	httpServer   *http.Server
	cancel       context.CancelFunc
	cleanupTasks []func() error
}

// Init bootstraps configuration, logger and the service graph.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if err := logger.InitLogger(cfg.Log.Level, cfg.App.Env); err != nil {
		return nil, err
	}

	if err := worksheet.SetLicense(cfg.Unidoc.LicenseKey); err != nil {
		logger.Warn("Failed to apply UniDoc license, file export may fail", zap.Error(err))
	}

	comps, err := di.Build(cfg, logger.GetLogger())
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		Components: comps,
		loader:     loader,
	}
	app.cleanupTasks = append(app.cleanupTasks, comps.Infra.Close)

	loader.OnChange(func(oldConfig, newConfig *config.Config) error {
		if oldConfig.Log.Level != newConfig.Log.Level {
			if err := logger.SetLevel(newConfig.Log.Level); err != nil {
				return err
			}
			logger.Info("Log level updated", zap.String("level", newConfig.Log.Level))
		}
		if oldConfig.Tutor.TokenLimit != newConfig.Tutor.TokenLimit {
			comps.Meter.SetDefaultLimit(newConfig.Tutor.TokenLimit)
			logger.Info("Default token limit updated", zap.Int("limit", newConfig.Tutor.TokenLimit))
		}
		return nil
	})
	if err := loader.Watch(func(err error) {
		logger.Warn("Config reload rejected", zap.Error(err))
	}); err != nil {
		logger.Debug("Config hot reload disabled", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	comps.Sweeper.Start(ctx)
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		comps.Sweeper.Stop()
		return nil
	})

	app.Server, app.Routes = NewServer(comps)
	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.Server.Handlers,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

// NewServer 创建beego服务器并注册中间件与路由
func NewServer(comps *di.Components) (*web.HttpServer, *router.RouteGroup) {
	cfg := comps.Config
	mm := middleware.NewMiddlewareManager(comps.Logger, comps.ErrorHandler, middleware.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		Metrics:     cfg.Metrics.Enabled,
	})

	webCfg := *web.BConfig
	webCfg.AppName = cfg.App.Name
	webCfg.CopyRequestBody = true
	webCfg.RecoverPanic = true
	webCfg.RecoverFunc = mm.RecoverFunc
	webCfg.WebConfig.AutoRender = false
	webCfg.Listen.HTTPPort = cfg.Server.Port
	if cfg.App.Env == "production" {
		webCfg.RunMode = web.PROD
	}

	srv := web.NewHttpServerWithCfg(&webCfg)
	mm.Apply(srv)
	routes := router.Register(srv, comps)
	return srv, routes
}

// Run 启动HTTP服务，阻塞直到服务关闭
func (a *App) Run() error {
	logger.Info("Starting tutor backend",
		zap.Int("port", a.Config.Server.Port),
		zap.String("env", a.Config.App.Env),
		zap.Bool("generator_configured", a.Components.Generator.Configured()),
		zap.Int("routes", len(a.Routes.GetAllRoutes())),
	)
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener, drains pending events and closes resources.
func (a *App) Shutdown() {
	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logger.Warn("HTTP server shutdown error", zap.Error(err))
		}
		cancel()
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.Components.Orchestrator.Drain()
	a.Components.Meter.Drain()

	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			logger.Warn("Cleanup error", zap.Error(err))
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
