package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"floodwatch/internal/capture"
	"floodwatch/internal/config"
	"floodwatch/internal/detection"
	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/routes"
	"floodwatch/internal/services/websocket"
	"floodwatch/internal/store"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	metrics    *metrics.Metrics
	store      *store.Store
	hub        *websocket.HubService
	capture    *capture.Manager
	dispatcher *detection.Dispatcher
}

func NewApp() *App {
	cfg := config.Load()
	log := logger.NewLogger(cfg)
	m := metrics.New()
	st := store.New()
	hub := websocket.NewHubService(log)

	client := detection.NewClient(cfg)
	dispatcher := detection.NewDispatcher(client, st, m, cfg, log)
	manager := capture.NewManager(cfg, st, hub, m, log)

	return &App{
		config:     cfg,
		logger:     log,
		metrics:    m,
		store:      st,
		hub:        hub,
		capture:    manager,
		dispatcher: dispatcher,
	}
}

// Run starts the capture loop, the inference dispatcher, the viewer hub
// and the HTTP server, and joins all of them on shutdown.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pressing q in the local viewer window shuts the whole process down,
	// same as an interrupt.
	a.capture.OnQuit(stop)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.capture.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.dispatcher.Run(ctx)
	}()

	router := routes.SetupRoutes(a.store, a.hub, a.metrics, a.config, a.logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	a.logger.Info("🚀 Flood watch server")
	a.logger.Info("📍 URL: http://localhost:%d", a.config.Port)
	a.logger.Info("📹 Model: %s", a.config.ModelID)

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	// Cancel the loops too when the server failed to start.
	stop()
	wg.Wait()
	a.store.Close()
	a.logger.Info("🛑 Shutdown complete")

	return err
}
