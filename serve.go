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

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crypticpy/Grantscope-2-sub004/api"
	"github.com/crypticpy/Grantscope-2-sub004/config"
	"github.com/crypticpy/Grantscope-2-sub004/storage"
)

const jobResultTTL = 24 * time.Hour

type serveOptions struct {
	seedFile string
	seedUser string
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference board service",
		Long: `Run the board service backed by Redis.

Configuration is read from the environment: REDIS_CONNECTION_STRING,
LISTEN_ADDR, DEDUPER_TTL, AUTH0_DOMAIN and AUTH0_AUDIENCE, or
AUTH0_TEST_MODE=1 with TEST_JWT_SECRET for local development.

Example:
  AUTH0_TEST_MODE=1 TEST_JWT_SECRET=dev REDIS_CONNECTION_STRING=redis://localhost:6379 \
    grantscope serve --seed board.seed.yaml --seed-user local-user`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.seedFile, "seed", "", "YAML file of items to load before serving")
	cmd.Flags().StringVar(&opts.seedUser, "seed-user", "local-user", "user whose board receives the seed items")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	logger := log.New()
	logger.SetLevel(log.GetLevel())

	rc := redis.NewClient(config.RedisOptions(cfg.RedisConn))
	defer rc.Close()
	store := storage.New(rc, jobResultTTL)
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if opts.seedFile != "" {
		items, err := loadSeed(opts.seedFile)
		if err != nil {
			return err
		}
		if err := store.SeedItems(ctx, opts.seedUser, items); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.WithFields(log.Fields{"user": opts.seedUser, "items": len(items)}).Info("board seeded")
	}

	auth, err := newAuth(cfg)
	if err != nil {
		return err
	}

	pool := api.NewPool(store, logger, api.PoolConfig{
		Workers: cfg.JobWorkers,
		Buffer:  cfg.JobBuffer,
		Step:    cfg.JobStep,
	})
	defer pool.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(api.GzipRequestMiddleware(1 << 20))
	api.Register(e, api.Deps{
		Store:   store,
		Auth:    auth,
		Deduper: api.NewRedisDeduper(rc, cfg.DeduperTTL),
		Jobs:    pool,
		Logger:  logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 1)
	go func() { errc <- e.Start(cfg.ListenAddr) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newAuth(cfg config.Server) (*api.Auth, error) {
	if cfg.AuthTestMode {
		return api.NewTestAuth([]byte(cfg.TestJWTSecret))
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/"), nil
}
