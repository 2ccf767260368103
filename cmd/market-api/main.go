package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/internal/app"
	"carbon-scribe/credit-market/internal/auth"
	"carbon-scribe/credit-market/internal/config"
	"carbon-scribe/credit-market/internal/logger"
	"carbon-scribe/credit-market/internal/market"
	"carbon-scribe/credit-market/internal/notifications/websocket"
	"carbon-scribe/credit-market/internal/reports"
	"carbon-scribe/credit-market/internal/reports/scheduler"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	log, err := logger.New(logger.Config{
		Debug:       cfg.Logging.Debug,
		Level:       cfg.Logging.Level,
		SentryDSN:   cfg.Logging.SentryDSN,
		Environment: cfg.Logging.Environment,
		Tags:        map[string]string{"service": "market-api"},
	})
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer log.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	policy, err := market.NewRecipientPolicy(cfg.Market.RecipientPolicy, cfg.Market.Recipients)
	if err != nil {
		log.Fatal("Invalid recipient policy", zap.Error(err))
	}
	marketService, err := market.NewService(application.Repository, nil, policy, application.Dispatcher, market.Config{
		OwnerID:        cfg.Market.OwnerID,
		MinVintageYear: cfg.Market.MinVintageYear,
		MaxVintageYear: cfg.Market.MaxVintageYear,
	}, log.Named("market"))
	if err != nil {
		log.Fatal("Failed to create market service", zap.Error(err))
	}

	var wsManager *websocket.Manager
	if cfg.Events.WebSocket {
		wsManager = websocket.NewManager(log.Named("websocket"), cfg.Server.AllowedOrigins)
		if err := application.Dispatcher.Register(wsManager); err != nil {
			log.Fatal("Failed to register websocket sink", zap.Error(err))
		}
	}

	var audits *scheduler.ScheduleManager
	if cfg.Reports.AuditEnabled {
		audits = scheduler.NewScheduleManager(log.Named("scheduler"), scheduler.DefaultScheduleManagerConfig())
		if err := audits.AddJob("conservation-audit", cfg.Reports.AuditCron, func(ctx context.Context) error {
			_, err := application.Reports.RunConservationAudit(ctx)
			return err
		}); err != nil {
			log.Fatal("Failed to schedule conservation audit", zap.Error(err))
		}
		if err := audits.Start(); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	router := newRouter(cfg, log.Logger, marketService, application, wsManager)

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("addr", srv.Addr),
		zap.String("store", cfg.Market.Store),
		zap.Strings("sinks", application.Dispatcher.Sinks()))

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if audits != nil {
		if err := audits.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if wsManager != nil {
		wsManager.Close()
	}
	application.Close(shutdownCtx)

	log.Info("Server exiting")
}

func newRouter(
	cfg *config.Config,
	log *zap.Logger,
	marketService market.Service,
	application *app.App,
	wsManager *websocket.Manager,
) *gin.Engine {
	if !cfg.Logging.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(log.Named("http")))

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowHeaders("Authorization", auth.HeaderUserID)
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		status := gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"sinks":     application.Dispatcher.Sinks(),
		}
		if wsManager != nil {
			status["websocket_connections"] = wsManager.GetConnectionCount()
		}
		c.JSON(http.StatusOK, status)
	})

	authenticator := auth.NewAuthenticator(auth.Config{
		JWTSecret:           cfg.Security.JWTSecret,
		Issuer:              cfg.Security.JWTIssuer,
		APIKeys:             cfg.Security.APIKeys,
		AllowHeaderIdentity: cfg.Security.AllowHeaderIdentity,
	}, log.Named("auth"))

	api := router.Group("/api/v1")
	api.Use(authenticator.Middleware())
	{
		auth.RegisterRoutes(api, auth.NewHandler(authenticator, cfg.Security.TokenTTL, log.Named("auth")))
		market.NewHandler(marketService, application.Journal, log.Named("market")).RegisterRoutes(api)
		reports.NewHandler(application.Reports, log.Named("reports")).RegisterRoutes(api)

		if wsManager != nil {
			api.GET("/ws", func(c *gin.Context) {
				caller, _ := auth.CallerFromContext(c)
				if _, err := wsManager.HandleConnection(c.Writer, c.Request, caller); err != nil {
					log.Warn("WebSocket upgrade failed", zap.Error(err))
				}
			})
		}
	}

	return router
}
