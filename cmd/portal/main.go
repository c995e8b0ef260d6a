package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gin-gonic/gin"
	"github.com/uma-arai/casa25-portal/internal/app"
	"github.com/uma-arai/casa25-portal/internal/common/config"
	"github.com/uma-arai/casa25-portal/internal/common/logger"
	"github.com/uma-arai/casa25-portal/internal/handler"
	"github.com/uma-arai/casa25-portal/internal/service/auth"
	"github.com/uma-arai/casa25-portal/internal/service/turnover"
)

const (
	projectName     = "casa25-portal"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		panic(err)
	}

	zl := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer zl.Sync()
	log := logger.For(zl, logger.ComponentPortal)

	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000",
			ServiceVersion: cfg.Cache.Version,
		}); err != nil {
			log.Warnw("Failed to configure X-Ray, using defaults", "error", err)
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatalw("Failed to configure default X-Ray settings", "error", configErr)
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ENV=LOCALまたはステートマシン未設定の場合は清掃連携を行わない
	var sfnClient turnover.SFNClient
	if !config.IsLocal() && cfg.SFN.StateMachineARN != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalw("Failed to load AWS config", "error", err)
		}
		sfnClient = sfn.NewFromConfig(awsCfg)
	}
	notifier := turnover.NewNotifier(sfnClient, cfg.SFN.StateMachineARN, logger.For(zl, logger.ComponentTurnover))

	components, err := app.Build(ctx, cfg, zl, notifier)
	if err != nil {
		log.Fatalw("Failed to build portal", "error", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Errorw("Failed to close resources", "error", err)
		}
	}()

	if err := components.State.Load(ctx); err != nil {
		log.Warnw("Starting with fallback reservation", "error", err)
	}

	gate := auth.NewGate(cfg.AdminPINs, components.State, components.Remote, components.Codec, logger.For(zl, logger.ComponentAuth))
	h := handler.NewHandler(components.State, gate, components.Notices, components.Weather, components.Codec, logger.For(zl, logger.ComponentHTTP))

	if !config.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(h, zl, cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := components.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("Scheduler stopped", "error", err)
		}
	}()

	go func() {
		log.Infow("Starting portal", "project", projectName, "addr", cfg.HTTPAddr, "cache", cfg.Cache.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infow("Shutting down portal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Failed to shut down HTTP server", "error", err)
	}
}
