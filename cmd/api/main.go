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
	"github.com/rs/zerolog"

	"shipquote/internal/carrier"
	"shipquote/internal/config"
	"shipquote/internal/db"
	"shipquote/internal/events"
	"shipquote/internal/logger"
	"shipquote/internal/metrics"
	"shipquote/internal/quote"
	"shipquote/internal/server"
	"shipquote/internal/status"
	"shipquote/internal/store"
)

func main() {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Options{ServiceName: "shipquote-api", Level: zerolog.InfoLevel})
		bootLog.Error(context.Background(), "config.load_failed", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "shipquote-api",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "server.exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logg *logger.Logger) error {
	engines, err := carrier.LoadFile(cfg.CarriersFile)
	if err != nil {
		return err
	}
	engines, err = carrier.Filter(engines, cfg.Carriers)
	if err != nil {
		return err
	}

	repo, closeRepo, err := openRepository(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer closeRepo()

	var publisher quote.Publisher = events.Noop{}
	if cfg.KafkaEnabled() {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logg)
		if err != nil {
			return err
		}
		defer kp.Close()
		publisher = kp
	}

	providers := make([]server.Provider, len(engines))
	monitored := make([]status.Provider, len(engines))
	for i, e := range engines {
		c := e.Config()
		providers[i] = server.Provider{ID: c.ID, Name: c.Name, TransportMode: c.TransportMode, Currency: c.Currency}
		monitored[i] = status.Provider{ID: c.ID, Name: c.Name}
	}
	monitor := status.NewMonitor(monitored, cfg.StatusDegradedLatency)
	m := metrics.New()

	svc := quote.NewService(repo, carrier.Engines(engines),
		quote.WithPublisher(publisher),
		quote.WithObserver(monitor),
		quote.WithObserver(m),
		quote.WithLogger(logg),
	)

	handler := server.New(server.Options{
		Service:            svc,
		Validator:          quote.NewValidator(),
		Monitor:            monitor,
		Metrics:            m,
		Logger:             logg,
		Providers:          providers,
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequestTimeout:     cfg.RequestTimeout,
		Production:         !cfg.IsDev(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"port":     cfg.Port,
			"store":    cfg.Store,
			"carriers": len(engines),
			"kafka":    cfg.KafkaEnabled(),
		}), "server.listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(context.Background(), "server.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openRepository builds the quote store selected by QUOTES_STORE.
func openRepository(ctx context.Context, cfg config.Config, logg *logger.Logger) (quote.Repository, func(), error) {
	ttl := store.WithTTL(cfg.CacheTTL)
	switch cfg.Store {
	case config.StorePostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := db.NewPool(connectCtx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, nil, err
		}
		if cfg.DBAutoMigrate {
			logg.Info(ctx, "running goose migrations")
			if err := db.Migrate(connectCtx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return store.NewPostgresRepository(pool, ttl), pool.Close, nil
	case config.StoreRedis:
		client, err := store.NewRedisClient(ctx, store.RedisOptions{
			URL:      cfg.RedisURL,
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisRepository(client, ttl), func() { _ = client.Close() }, nil
	default:
		return store.NewMemoryRepository(ttl), func() {}, nil
	}
}
