// Package main runs the dispatch driver core as a local daemon: durable
// store, outbox, connectivity-triggered sync, and the websocket event feed
// consumed by the driver UI shell.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/routeleaf/dispatch/backend/internal/cache"
	"github.com/routeleaf/dispatch/backend/internal/config"
	"github.com/routeleaf/dispatch/backend/internal/connectivity"
	"github.com/routeleaf/dispatch/backend/internal/db"
	"github.com/routeleaf/dispatch/backend/internal/logging"
	"github.com/routeleaf/dispatch/backend/internal/media"
	"github.com/routeleaf/dispatch/backend/internal/outbox"
	"github.com/routeleaf/dispatch/backend/internal/pod"
	"github.com/routeleaf/dispatch/backend/internal/remote"
	syncpkg "github.com/routeleaf/dispatch/backend/internal/sync"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	logging.Init(os.Stdout, logging.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to open durable store: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database.DB); err != nil {
		log.Fatalf("failed to migrate durable store: %v", err)
	}

	repo := db.NewRepository(database.DB)
	queue := outbox.New(repo)

	remoteCfg := &remote.Config{BaseURL: cfg.APIBaseURL, Token: cfg.APIToken}
	jobs := remote.NewJobClient(remoteCfg, cfg.DriverID)
	files := remote.NewFileClient(remoteCfg)
	notifier := remote.NewNotifyClient(remoteCfg)

	monitor := connectivity.NewMonitor(connectivity.NewHTTPProber(cfg.ProbeURL), cfg.ProbeInterval)
	engine := syncpkg.NewEngine(queue, files, jobs, notifier, monitor)
	refresher := cache.NewRefresher(repo, jobs, monitor)
	service := pod.NewService(media.NewCompressor(), queue, repo, monitor, files, jobs, notifier)

	hub := NewWSHub()
	engine.SetEventHandler(hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connectivity returning is the primary drain trigger; each
	// offline-to-online transition fires exactly one pass.
	monitor.OnOnline(func() {
		if _, err := engine.SyncPendingUploads(ctx); err != nil {
			logging.Error("connectivity-triggered sync failed", err)
		}
		if err := refresher.Refresh(ctx); err != nil {
			logging.Error("cache refresh failed", err)
		} else {
			n, _ := repo.CountJobs()
			hub.Broadcast(EventCacheRefreshed, map[string]interface{}{"jobs": n})
		}
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	// Periodic opportunity: the single-flight guard makes overlapping
	// triggers safe.
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := engine.SyncPendingUploads(ctx); err != nil {
					logging.Error("periodic sync failed", err)
				}
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"driverd","version":"` + Version + `"}`))
	})
	mux.HandleFunc("/ws", HandleWebSocket(hub))
	NewAPI(service, repo, refresher, hub).Register(mux)

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logging.Info("driverd started", map[string]interface{}{
		"version": Version,
		"listen":  cfg.ListenAddr,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
