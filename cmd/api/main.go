package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"globalbangla.org/internal/app"
	"globalbangla.org/internal/config"
	"globalbangla.org/internal/httpapi"
	"globalbangla.org/internal/migrate"
	"globalbangla.org/internal/obs"
	"globalbangla.org/internal/stream"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		obs.Error("startup_failed", map[string]any{"error": err})
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	if cfg.Version == "" || cfg.Version == "dev" {
		cfg.Version = version
	}

	obs.Init()
	obs.InitBuildInfo(cfg.Version, commit, cfg.Env)
	host, _ := os.Hostname()
	reporter := obs.NewReporter(obs.ReporterConfig{
		Token:       cfg.RollbarToken,
		Environment: cfg.Env,
		Version:     cfg.Version,
		Host:        host,
	})
	obs.SetReporter(reporter)
	defer reporter.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := stream.New()
	a, err := app.New(ctx, cfg, app.WithNotifier(httpapi.PaymentFeed(st)))
	if err != nil {
		return err
	}
	defer a.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	err = migrate.New(a.Store.DB()).Up(migrateCtx)
	cancel()
	if err != nil {
		return err
	}

	probe := httpapi.ReadyProbe{DB: a.Store.DB(), Redis: a.Redis}
	api := httpapi.New(a.Mechanism, httpapi.Services{
		Accounts:     a.Accounts,
		Competitions: a.Competitions,
		Submissions:  a.Submissions,
		Winners:      a.Winners,
		Settings:     a.Settings,
		Payments:     a.Payments,
		Blobs:        a.Blobs,
	}, st, probe, httpapi.Options{
		Env:            cfg.Env,
		Version:        cfg.Version,
		UploadsDir:     a.Blobs.Root(),
		UploadsPrefix:  cfg.Uploads.PublicPrefix,
		CookieSecure:   cfg.Auth.CookieSecure,
		AllowedOrigins: []string{cfg.AppBaseURL},
		RateBurst:      cfg.RateBurst,
		RatePerSecond:  cfg.RatePerSecond,
		TrustedProxies: cfg.TrustedProxies,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewHealthServer(probe)
	grpcSrv := httpapi.NewGRPCServer(health)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go health.Run(healthCtx, 10*time.Second)

	errs := make(chan error, 2)
	go func() {
		obs.Info("grpc_listening", map[string]any{"addr": cfg.GRPCAddr})
		if err := grpcSrv.Serve(lis); err != nil {
			errs <- err
		}
	}()
	go func() {
		obs.Info("http_listening", map[string]any{
			"addr":      cfg.HTTPAddr,
			"version":   cfg.Version,
			"env":       cfg.Env,
			"mechanism": cfg.Auth.Mechanism,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		obs.Error("server_failed", map[string]any{"error": err})
	}
	obs.Info("shutting_down", nil)

	stopHealth()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	obs.Info("stopped", nil)
	return nil
}
