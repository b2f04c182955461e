// Command crdtcollab runs the room server: a websocket-facing CRDT
// collaboration core with presence, cursors, live-state, and a
// file-backed durability hook.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Polqt/crdtcollab/config"
	"github.com/Polqt/crdtcollab/internal/logging"
	"github.com/Polqt/crdtcollab/room"
	"github.com/Polqt/crdtcollab/session"
	"github.com/Polqt/crdtcollab/transport"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logger := logging.New(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	hook, err := room.NewFileHook(cfg.DurabilityDir)
	if err != nil {
		logger.Error("failed to initialize durability hook", "err", err)
		os.Exit(1)
	}

	manager := session.NewManager(hook, session.Config{
		HistoryCap:    cfg.HistoryCap,
		FlushDebounce: cfg.FlushDebounce(),
	}, logger)

	mux := http.NewServeMux()
	mux.Handle(cfg.RoomPathPrefix+"/", transport.NewHandler(cfg.RoomPathPrefix, manager, logger))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", cfg.Listen, "room_path_prefix", cfg.RoomPathPrefix)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}
