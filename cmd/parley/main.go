package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ngabriel/parley/internal/agent"
	"github.com/ngabriel/parley/internal/archive"
	"github.com/ngabriel/parley/internal/capture"
	"github.com/ngabriel/parley/internal/catalog"
	"github.com/ngabriel/parley/internal/config"
	"github.com/ngabriel/parley/internal/controller"
	"github.com/ngabriel/parley/internal/gateway"
	"github.com/ngabriel/parley/internal/httpapi"
	"github.com/ngabriel/parley/internal/observability"
	"github.com/ngabriel/parley/internal/playback"
	"github.com/ngabriel/parley/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	archiveStore, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("archive store init failed: %v", err)
	}
	defer archiveStore.Close()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("catalog load failed: %v", err)
	}

	var (
		captureDevice capture.Device
		player        playback.Player
	)

	tryDevice := func(fatal bool) bool {
		dev, err := capture.NewMalgoDevice(cfg.CaptureSampleRate)
		if err != nil {
			if fatal {
				log.Fatalf("audio device init failed: %v", err)
			}
			log.Printf("audio device unavailable: %v", err)
			return false
		}
		captureDevice = dev
		player = playback.NewOtoPlayer()
		log.Printf("audio backend: device")
		return true
	}

	switch cfg.AudioBackend {
	case "device":
		_ = tryDevice(true)
	case "mock":
		captureDevice = capture.NewMockDevice()
		player = playback.NewMockPlayer()
		log.Printf("audio backend: mock")
	case "auto":
		if !tryDevice(false) {
			captureDevice = capture.NewMockDevice()
			player = playback.NewMockPlayer()
			log.Printf("audio backend: mock (no usable audio device)")
		}
	}

	captureSvc := capture.NewService(captureDevice)
	defer captureSvc.Close()
	playbackSvc := playback.NewService(player, cfg.CacheDir)
	defer playbackSvc.Close()

	backend := gateway.NewHTTPClient(cfg.BackendBaseURL, cfg.BackendRequestTimeout)
	store := session.NewStore()
	ctrl := controller.New(store, captureSvc, playbackSvc, backend, archiveStore, metrics)

	if cfg.AgentWSURL != "" {
		agentClient, err := agent.NewClient(cfg.AgentWSURL, agent.Handlers{
			OnStatus: func(status agent.Status) {
				metrics.SessionEvents.WithLabelValues("agent_" + string(status)).Inc()
			},
			OnError: func(evt agent.ErrorEvent) {
				log.Printf("voice agent error %s: %s", evt.Code, evt.Detail)
			},
		})
		if err != nil {
			log.Fatalf("agent client init failed: %v", err)
		}
		if err := agentClient.Connect(ctx); err != nil {
			log.Printf("voice agent unreachable, realtime mode disabled: %v", err)
		} else {
			defer agentClient.Close()
		}
	}

	api := httpapi.New(cfg, ctrl, store, cat, archiveStore, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	if st := ctrl.State(); st != controller.StateIdle && st != controller.StateEnded {
		if err := ctrl.End(ctx); err != nil {
			log.Printf("end active session: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
