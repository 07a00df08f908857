package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"camrelay/internal/config"
	"camrelay/internal/logging"
	"camrelay/internal/server"
	"camrelay/internal/storage"
	"camrelay/internal/store"
	ws "camrelay/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level)

	st, err := store.New(cfg.Store.UploadDir, logger)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		os.Exit(1)
	}

	db, err := storage.InitDB(cfg.Store.JournalPath)
	if err != nil {
		logger.Error("failed to initialize upload journal", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	hub := ws.NewHub()
	go hub.Run()

	srv := server.New(cfg, st, db, hub, logger)
	httpSrv := srv.HTTPServer(cfg.Addr())

	go func() {
		logger.Info("camera relay listening", "addr", cfg.Addr(), "uploads", st.Dir())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
