package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-autoresponder/internal/api"
	"whatsapp-autoresponder/internal/automation"
	"whatsapp-autoresponder/internal/config"
	"whatsapp-autoresponder/internal/database"
	"whatsapp-autoresponder/internal/logging"
	"whatsapp-autoresponder/internal/metrics"
	"whatsapp-autoresponder/internal/middleware"
	"whatsapp-autoresponder/internal/observability"
	"whatsapp-autoresponder/internal/store"
	"whatsapp-autoresponder/internal/transport"
	"whatsapp-autoresponder/internal/webhook"
	"whatsapp-autoresponder/internal/whatsapp"
	"whatsapp-autoresponder/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.MustLoad()
	logger := logging.Setup(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	backend, db, err := openBackend(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open storage")
	}
	st, err := store.Open(ctx, backend, logger.With().Str("component", "store").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	var (
		out     transport.Transport
		session *whatsapp.Session
	)
	switch cfg.Transport {
	case config.TransportWhatsmeow:
		session, err = whatsapp.NewSession(ctx, cfg.SessionDBPath, hub, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open whatsapp session")
		}
		out = session
	default:
		out = whatsapp.NewClient(cfg.GraphAPIURL, cfg.WhatsAppToken, cfg.PhoneNumberID, logger)
	}
	out = transport.NewRateLimited(out, cfg.SendRPS, cfg.SendBurst)

	composer := automation.NewComposer(cfg.MediaRoot)
	engine := automation.NewEngine(st, out, composer, hub, logger)
	scheduler := automation.NewScheduler(st, out, composer, cfg.SchedulerInterval, logger)
	go scheduler.Run(ctx)

	if session != nil {
		session.OnMessage(func(ctx context.Context, in transport.Inbound) {
			if err := engine.ProcessIncomingMessage(ctx, in); err != nil {
				logger.Error().Err(err).Str("from", in.From).Msg("process message")
			}
		})
		if err := session.Connect(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect whatsapp session")
		}
	}

	webhookHandler := webhook.NewHandler(ctx, cfg.VerifyToken, engine, logger)
	r := newRouter(cfg, logger, hub)

	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleMessage)
	r.POST("/webhook/generic", webhookHandler.HandleGeneric)

	api.Register(r.Group("/api"), api.Deps{
		Store:     st,
		Sender:    engine,
		Notifier:  hub,
		MediaRoot: cfg.MediaRoot,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.Port).Str("transport", cfg.Transport).Str("backend", cfg.StoreBackend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to run server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	webhookHandler.Wait()
	if session != nil {
		session.Close()
	}
	st.Close()
	if db != nil {
		if err := database.Close(db); err != nil {
			logger.Error().Err(err).Msg("close database")
		}
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("otel shutdown")
	}
}

// openBackend returns the document backend selected by STORE_BACKEND. db is
// nil for the file backend.
func openBackend(cfg config.Config) (store.Backend, *gorm.DB, error) {
	if cfg.StoreBackend == config.BackendFile {
		return store.NewFileBackend(cfg.DataFile), nil, nil
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store.NewGormBackend(db), db, nil
}

func newRouter(cfg config.Config, logger zerolog.Logger, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	if cfg.OTEL.Enabled {
		r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	}
	r.Use(middleware.RequestID(), middleware.Logger(logger), middleware.Recovery())
	r.Use(metrics.Middleware())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSAllowedOrigins) == 0 || cfg.CORSAllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSAllowedOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})
	return r
}
