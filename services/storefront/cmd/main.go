package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/config"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/handler"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/payload"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/repository"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/usecase"
	"github.com/vasapolrittideah/storefront/shared/auth"
	"github.com/vasapolrittideah/storefront/shared/database"
	"github.com/vasapolrittideah/storefront/shared/discovery"
	"github.com/vasapolrittideah/storefront/shared/logger"
	"github.com/vasapolrittideah/storefront/shared/mailer"
	"github.com/vasapolrittideah/storefront/shared/notifier"
	"github.com/vasapolrittideah/storefront/shared/security"
	"github.com/vasapolrittideah/storefront/shared/utilities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Service:     cfg.ServiceName,
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("storefront stopped with error")
	}
}

func run(cfg *config.StorefrontConfig, log *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, db, err := database.NewMongoDatabase(ctx, database.MongoConfig{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to disconnect from mongodb")
		}
	}()

	accountRepo := repository.NewAccountMongoRepository(ctx, log, db)
	sessionRepo := repository.NewSessionMongoRepository(ctx, log, db)

	mailerCfg, err := mailer.ParseMailerConfig()
	if err != nil {
		return err
	}
	m, err := mailer.NewMailer(mailerCfg)
	if err != nil {
		return fmt.Errorf("failed to create mailer: %w", err)
	}

	dispatcher, stopDispatcher, err := startDispatcher(log, cfg, m)
	if err != nil {
		return err
	}

	hasher := security.NewHasher(security.HasherConfig{
		TimeCost:    cfg.Password.TimeCost,
		MemoryCost:  cfg.Password.MemoryCost,
		Parallelism: cfg.Password.Parallelism,
	})

	authUsecase := usecase.NewAuthUsecase(log, accountRepo, sessionRepo, hasher, dispatcher, cfg)
	passwordResetUsecase := usecase.NewPasswordResetUsecase(log, accountRepo, hasher, dispatcher, cfg)

	validator, err := payload.NewValidator()
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimit.Rate,
			Burst:    cfg.RateLimit.Burst,
			Interval: cfg.RateLimit.Interval,
		})
		defer limiter.Close()
	}

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: handler.NewRouter(handler.Dependencies{
			Logger:               log,
			AuthUsecase:          authUsecase,
			PasswordResetUsecase: passwordResetUsecase,
			SessionRepo:          sessionRepo,
			JWTAuth:              auth.NewJWTAuthenticator(cfg.ServiceName, cfg.Token.Issuer, cfg.Session.Secret),
			Validator:            validator,
			Limiter:              limiter,
			Config:               cfg,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	grpcServer := grpc.NewServer()
	healthServer := utilities.RegisterHealthServer(grpcServer, cfg.ServiceName)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr(), err)
	}

	errCh := make(chan error, 2)

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		log.Info().Str("addr", cfg.GRPCAddr()).Msg("grpc health server listening")
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var registrar *discovery.ConsulRegistrar
	if cfg.Consul.Enabled {
		registrar, err = registerService(log, cfg)
		if err != nil {
			log.Error().Err(err).Msg("failed to register with consul")
		}
	}

	go runTokenJanitor(ctx, log, passwordResetUsecase, cfg.Token.PurgeInterval)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	healthServer.Shutdown()

	if registrar != nil {
		if err := registrar.Deregister(); err != nil {
			log.Error().Err(err).Msg("failed to deregister from consul")
		}
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down http server")
	}
	grpcServer.GracefulStop()

	stopDispatcher(shutdownCtx)

	return runErr
}

// startDispatcher builds the configured notification backend and returns a function that drains it.
func startDispatcher(
	log *zerolog.Logger,
	cfg *config.StorefrontConfig,
	sender notifier.Sender,
) (notifier.Dispatcher, func(context.Context), error) {
	switch cfg.Notify.Backend {
	case config.NotifyBackendAMQP:
		conn, err := notifier.NewConnection(log, cfg.Notify.AMQPURL)
		if err != nil {
			return nil, nil, err
		}

		consumer := notifier.NewConsumer(log, conn, sender, notifier.ConsumerConfig{
			Workers: cfg.Notify.Workers,
			Retry:   notifier.DefaultRetryConfig(),
		})
		if err := consumer.Start(context.Background()); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}

		return notifier.NewPublisher(conn), func(context.Context) {
			consumer.Stop()
			if err := conn.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close rabbitmq connection")
			}
		}, nil

	default:
		pool := notifier.NewPool(log, sender, notifier.PoolConfig{
			Workers:   cfg.Notify.Workers,
			QueueSize: cfg.Notify.QueueSize,
			Retry:     notifier.DefaultRetryConfig(),
		})
		pool.Start(context.Background())

		return pool, func(ctx context.Context) {
			if err := pool.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("notification queue not fully drained")
			}
		}, nil
	}
}

func registerService(log *zerolog.Logger, cfg *config.StorefrontConfig) (*discovery.ConsulRegistrar, error) {
	registrar, err := discovery.NewConsulRegistrar(log, cfg.Consul.Address)
	if err != nil {
		return nil, err
	}

	host, err := os.Hostname()
	if err != nil {
		host = cfg.HTTP.Host
	}

	err = registrar.Register(discovery.Service{
		Name:           cfg.ServiceName,
		Address:        host,
		Port:           cfg.HTTP.Port,
		Tags:           []string{"http"},
		HealthCheckURL: fmt.Sprintf("http://%s:%d/healthz", host, cfg.HTTP.Port),
	})
	if err != nil {
		return nil, err
	}

	return registrar, nil
}

func runTokenJanitor(
	ctx context.Context,
	log *zerolog.Logger,
	passwordResetUsecase usecase.PasswordResetUsecase,
	interval time.Duration,
) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := passwordResetUsecase.PurgeExpiredTokens(ctx)
			if err != nil {
				log.Error().Err(err).Msg("failed to purge expired reset tokens")
				continue
			}
			if n > 0 {
				log.Info().Int64("count", n).Msg("purged expired reset tokens")
			}
		}
	}
}
