package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poyrazK/tourpass/internal/adapters/api"
	"github.com/poyrazK/tourpass/internal/adapters/notify"
	"github.com/poyrazK/tourpass/internal/adapters/repository"
	"github.com/poyrazK/tourpass/internal/core/ports"
	"github.com/poyrazK/tourpass/internal/core/services"
	"github.com/poyrazK/tourpass/internal/infrastructure/config"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default $TOURPASS_CONFIG)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, os.Stdout, nil); err != nil {
		fmt.Fprintf(os.Stderr, "tourpass: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. ready, when non-nil, receives the bound
// listen address once the server accepts connections.
func run(ctx context.Context, configPath string, out io.Writer, ready chan<- string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, out)
	slog.SetDefault(logger)

	openCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
	store, err := repository.Open(openCtx, repository.Options{
		Driver:        cfg.Store.Driver,
		DSN:           cfg.Store.DSN,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Migrate:       true,
	})
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	matcher, err := cfg.Matcher(catalog)
	if err != nil {
		return err
	}

	svc := services.NewAccessService(
		repository.NewInstrumentedRepository(store, cfg.Store.Timeout),
		catalog,
		matcher,
		newNotifier(cfg.SMTP, logger),
		services.AccessConfig{BaseURL: cfg.BaseURL, DefaultPolicy: cfg.Policy},
		logger,
	)

	apiHandler := api.NewAPIHandler(svc, logger, api.Options{
		AdminKey:       cfg.Admin.Key,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	srv := &http.Server{
		Handler:           apiHandler.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	defer close(done)
	go apiHandler.CleanupLoop(done, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Info("tourpass listening", "addr", ln.Addr().String(), "store", cfg.Store.Driver, "resources", catalog.Len())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newNotifier(cfg config.SMTPConfig, logger *slog.Logger) ports.Notifier {
	if cfg.Host == "" {
		logger.Warn("smtp.host not set, access links will only be logged")
		return notify.NewLogNotifier(logger)
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, logger)
}
