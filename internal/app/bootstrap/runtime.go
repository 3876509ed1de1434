package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/plateforge/auth-service/internal/adapters/cache"
	emailadapter "github.com/plateforge/auth-service/internal/adapters/email"
	grpcadapter "github.com/plateforge/auth-service/internal/adapters/grpc"
	httpadapter "github.com/plateforge/auth-service/internal/adapters/http"
	jobsadapter "github.com/plateforge/auth-service/internal/adapters/jobs"
	"github.com/plateforge/auth-service/internal/adapters/postgres"
	"github.com/plateforge/auth-service/internal/adapters/security"
	"github.com/plateforge/auth-service/internal/application"
	"github.com/plateforge/auth-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	worker     *jobsadapter.Worker
	sweeper    *jobsadapter.Sweeper
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	logger.Info("bootstrapping auth service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	repos := postgres.NewRepositories(pool)
	tokenSigner, err := security.NewJWTSigner(cfg.JWTSecret)
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init jwt signer: %w", err)
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			SessionTTL:       cfg.SessionTTL,
			MaxLoginAttempts: cfg.MaxLoginAttempts,
			LockoutDuration:  cfg.LockoutDuration,
			ResetTokenTTL:    cfg.ResetTokenTTL,
		},
		Logger:      logger,
		Users:       repos.Users,
		Sessions:    repos.Sessions,
		Audit:       repos.Audit,
		Jobs:        repos.Jobs,
		Revocations: cacheadapter.NewRedisSessionRevocationStore(redisClient),
		Hasher:      security.NewBcryptHasher(cfg.BcryptCost),
		TokenSigner: tokenSigner,
		OAuth:       security.NewDisabledOAuthVerifier(),
	})
	limiter := application.NewRateLimiter(repos.Audit, logger, cfg.RateLimitOverrides)

	handler := httpadapter.NewHandler(svc, limiter)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(svc, limiter))

	var mailer ports.Mailer
	if cfg.SMTPHost != "" {
		mailer = emailadapter.NewSMTPMailer(emailadapter.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		mailer = emailadapter.NewLogMailer(logger)
	}

	worker := jobsadapter.NewWorker(logger, repos.Jobs, mailer, jobsadapter.WorkerConfig{
		ResetURL:   cfg.ResetURL,
		Interval:   cfg.JobsPollInterval,
		BatchSize:  cfg.JobsBatchSize,
		ClaimTTL:   cfg.JobsClaimTTL,
		MaxRetries: cfg.JobsMaxRetries,
	})
	sweeper := jobsadapter.NewSweeper(logger, repos.Sessions, cfg.SweepInterval, cfg.SweepRetention)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		worker:     worker,
		sweeper:    sweeper,
		cleanupFn: func(ctx context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

// RunAPI serves HTTP and gRPC until a shutdown signal arrives. The gRPC
// listener is bound here rather than in NewRuntime, so worker mode never
// holds the port.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.cleanupFn(cleanupCtx)
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

// RunWorker runs the job dispatcher and the session sweeper until a
// shutdown signal arrives.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("job worker started")
		errCh <- r.worker.Run(ctx)
	}()
	go func() {
		r.logger.Info("session sweeper started")
		errCh <- r.sweeper.Run(ctx)
	}()

	err := <-errCh
	stop()
	<-errCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
