package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/svyatogor/spreadup/internal/config"
	"github.com/svyatogor/spreadup/internal/engine"
	"github.com/svyatogor/spreadup/internal/httpapi"
	"github.com/svyatogor/spreadup/internal/notify"
	"github.com/svyatogor/spreadup/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logging.SetGlobalLogger(logging.InitLogger(logging.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}))
	defer logging.L().Sync()

	sink := notify.NewLogSink()
	eng := engine.New(cfg.Engine, sink)

	ctx, cancel := context.WithCancel(context.Background())

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      httpapi.NewRouter(eng),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.L().Info("starting status server", logging.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("status server failed", logging.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.L().Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.L().Error("status server forced to shutdown", logging.Err(err))
	}

	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		logging.L().Warn("engine did not stop before shutdown deadline")
	}

	logging.L().Info("exited")
}
