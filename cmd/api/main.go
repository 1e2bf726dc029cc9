package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/gestao-escolar/internal/auth"
	"github.com/gestaozabele/gestao-escolar/internal/cache"
	"github.com/gestaozabele/gestao-escolar/internal/config"
	"github.com/gestaozabele/gestao-escolar/internal/db"
	internalhttp "github.com/gestaozabele/gestao-escolar/internal/http"
	"github.com/gestaozabele/gestao-escolar/internal/metrics"
	"github.com/gestaozabele/gestao-escolar/internal/sed"
	"github.com/gestaozabele/gestao-escolar/internal/tenant"
)

const accessTokenTTL = 15 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.SED.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	caches, err := cache.OpenSED(ctx, cfg.SED, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer caches.Close()

	tenantService := tenant.NewService(tenant.NewRepository(pool))
	resolver := sed.NewTenantResolver(tenantService, sed.DefaultsFromConfig(cfg.SED))

	sedClient, err := sed.New(sed.ConfigFromSED(cfg.SED), resolver, caches.Responses, caches.Tokens,
		sed.WithLogger(log.Logger),
		sed.WithMetrics(metrics.NewPrometheus()),
	)
	if err != nil {
		return fmt.Errorf("sed: %w", err)
	}

	if cfg.SED.TokenRefreshInterval > 0 {
		refresher := sed.NewRefresher(sedClient.Tokens(), cfg.SED.TokenRefreshInterval, 0, log.Logger)
		refresher.Start(ctx)
		defer refresher.Stop()
	}

	checks := map[string]internalhttp.HealthCheck{
		"db": pool.Ping,
	}
	if caches.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return caches.Redis.Ping(ctx).Err() }
	}

	handler := internalhttp.NewRouter(cfg, internalhttp.Deps{
		SED:     sedClient,
		Tenants: tenantService,
		JWT:     auth.NewJWTManager(cfg.JWTSecret, accessTokenTTL),
		Checks:  checks,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("sed_base_url", cfg.SED.BaseURL).Str("cache_store", cfg.SED.CacheStore).Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("encerrando...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
