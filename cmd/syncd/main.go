package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/scribemarket/scribemarket/internal/api/http"
	"github.com/scribemarket/scribemarket/internal/application/chat"
	"github.com/scribemarket/scribemarket/internal/application/connection"
	"github.com/scribemarket/scribemarket/internal/application/negotiation"
	"github.com/scribemarket/scribemarket/internal/application/payment"
	"github.com/scribemarket/scribemarket/internal/application/syncer"
	"github.com/scribemarket/scribemarket/internal/config"
	"github.com/scribemarket/scribemarket/internal/events"
	"github.com/scribemarket/scribemarket/internal/infrastructure/ws"
	"github.com/scribemarket/scribemarket/internal/restapi"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// infrastructure
	api := restapi.NewHTTPClient(cfg.APIBaseURL, cfg.BearerToken, logger)
	router := events.NewRouter(logger)
	dialer := ws.NewDialer(cfg.SocketURL, cfg.BearerToken, cfg.DialTimeout, logger)

	mgr := connection.NewManager(dialer, router, connection.Options{
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
		MaxRetries:  cfg.MaxRetries,
	}, logger)

	// services
	chatSvc := chat.NewService(api, logger)
	chatSvc.SetIdentity(cfg.IdentityID)
	negotiationSvc := negotiation.NewService(api, logger)
	paymentSvc := payment.NewService(api, negotiationSvc, nil, logger)
	syncSvc := syncer.NewService(api, negotiationSvc, chatSvc, mgr, logger)
	syncSvc.OnAuthExpired = func() {
		logger.Warn().Msg("session expired, disconnecting")
		mgr.Disconnect()
	}

	chatSvc.Bind(router)
	negotiationSvc.Bind(router)

	// payment callback server
	apiServer := httpapi.NewServer(paymentSvc, logger)
	httpServer := &http.Server{
		Addr:         cfg.CallbackAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	go syncSvc.Run(runCtx)

	go func() {
		logger.Info().Str("addr", cfg.CallbackAddr).Msg("callback server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("callback server failed")
		}
	}()

	if err := mgr.Connect(ctx, cfg.IdentityID); err != nil {
		logger.Error().Err(err).Msg("initial connect failed")
	}

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopRun()
	mgr.Disconnect()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
