package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/kvstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

// run owns every deferred cleanup so main can exit with its code afterwards.
func run() int {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return 1
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": cfg.App.Addr,
	})

	store, closer, err := kvstore.Open(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to open durable store", err)
		return 1
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logg.Error(context.Background(), "error closing durable store", err)
		}
	}()

	client, err := storefrontapi.NewClient(cfg.API.BaseURL,
		storefrontapi.WithTimeout(cfg.API.Timeout),
		storefrontapi.WithBreaker(cfg.API.BreakerFailures, cfg.API.BreakerOpenTimeout),
	)
	if err != nil {
		logg.Error(ctx, "failed to create api client", err)
		return 1
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sess, err := session.New(session.Deps{
		Config:   cfg,
		Store:    store,
		API:      client,
		Registry: registry,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to assemble session", err)
		return 1
	}

	current, err := sess.Start(ctx)
	if err != nil {
		logg.Error(ctx, "failed to resolve identity", err)
		return 1
	}
	logg.Info(logg.WithField(ctx, "identity_state", current.State.String()), "session started")

	// The sql and redis backends can be pinged; the in-memory store cannot.
	var pinger controllers.Pinger
	if p, ok := closer.(controllers.Pinger); ok {
		pinger = p
	}

	server := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           routes.NewRouter(cfg, logg, sess, pinger, registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(ctx, "starting session server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		sess.Refresh(groupCtx)
		return nil
	})
	if cfg.Vendor.ReportLocation {
		group.Go(func() error {
			if err := sess.Reporter.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logg.Debug(ctx, "vendor location reporting disabled")
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "storefront stopped unexpectedly", err)
		return 1
	}

	logg.Info(ctx, "storefront shutting down gracefully")
	return 0
}
