// main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ShawnEdgell/gfn-availability-go/internal/cache"
	"github.com/ShawnEdgell/gfn-availability-go/internal/config"
	"github.com/ShawnEdgell/gfn-availability-go/internal/curator"
	"github.com/ShawnEdgell/gfn-availability-go/internal/database"
	"github.com/ShawnEdgell/gfn-availability-go/internal/repository"
	"github.com/ShawnEdgell/gfn-availability-go/internal/scheduler"
	"github.com/ShawnEdgell/gfn-availability-go/internal/server"
	"github.com/ShawnEdgell/gfn-availability-go/internal/service"
	"github.com/ShawnEdgell/gfn-availability-go/internal/settings"
	"github.com/ShawnEdgell/gfn-availability-go/internal/telemetry"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	// Docker Compose sets the environment in production; .env is for local runs.
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found or error loading, relying on system environment variables or defaults.")
	}

	appConfig, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	level.Set(appConfig.SlogLevel())

	if err := run(appConfig, logger); err != nil {
		slog.Error("Exiting due to error.", "error", err)
		os.Exit(1)
	}
	slog.Info("Application shut down gracefully.")
}

func run(appConfig *config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	var (
		gameRepo *repository.GameRepository
		pinger   server.Pinger
		seeder   service.Seeder
	)
	schedOpts := []scheduler.Option{
		scheduler.WithSources(appConfig.Sources()),
		scheduler.WithMaxAge(appConfig.DatabaseMaxAge),
		scheduler.WithInterval(appConfig.RefreshInterval),
		scheduler.WithMetrics(metrics),
	}
	if appConfig.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     appConfig.RedisAddr,
			Password: appConfig.RedisPassword,
			DB:       appConfig.RedisDB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Warn("Failed to close Redis client", "error", err)
			}
		}()
		gameRepo = repository.NewGameRepository(rdb)
		pinger, seeder = gameRepo, gameRepo
		schedOpts = append(schedOpts, scheduler.WithMirror(gameRepo))
		slog.Info("Redis mirror enabled", "addr", appConfig.RedisAddr, "db", appConfig.RedisDB)
	}

	curatorClient := curator.NewClient(appConfig.CuratorBaseURL, curator.WithMetrics(metrics))
	store := database.NewStore(appConfig.PluginDir)
	availability := cache.New(store, appConfig.CacheTTL, cache.WithMetrics(metrics))
	dataScheduler := scheduler.NewScheduler(curatorClient, store, availability, schedOpts...)

	svc := service.New(service.Deps{
		Store:     store,
		Cache:     availability,
		Scheduler: dataScheduler,
		Settings:  settings.NewStore(appConfig.SettingsDir),
		Seeder:    seeder,
		Metrics:   metrics,
	})
	svc.Start(ctx)

	router := server.NewRouter(svc, pinger, registry, logger)

	ln, err := net.Listen("tcp", ":"+appConfig.ServerPort)
	if err != nil {
		svc.Close()
		return fmt.Errorf("could not listen on :%s: %w", appConfig.ServerPort, err)
	}
	slog.Info("Starting HTTP server for GeForce NOW availability...", "port", appConfig.ServerPort)
	return serve(ctx, ln, router, svc.Close)
}

// serve runs the HTTP server until ctx is done or the server fails, then
// calls shutdown to stop periodic and in-flight background refreshes.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, shutdown func()) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, ln, handler)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received. Cleaning up...")
		shutdown()
		return nil
	})
	return g.Wait()
}
