package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lmoretti/bookpulse/internal/alerts"
	"github.com/lmoretti/bookpulse/internal/api"
	"github.com/lmoretti/bookpulse/internal/circuitbreaker"
	"github.com/lmoretti/bookpulse/internal/config"
	"github.com/lmoretti/bookpulse/internal/db"
	"github.com/lmoretti/bookpulse/internal/events"
	"github.com/lmoretti/bookpulse/internal/mailer"
	"github.com/lmoretti/bookpulse/internal/metrics"
	"github.com/lmoretti/bookpulse/internal/notify"
	"github.com/lmoretti/bookpulse/internal/observ"
	"github.com/lmoretti/bookpulse/internal/redis"
	"github.com/lmoretti/bookpulse/internal/sweep"
	"github.com/lmoretti/bookpulse/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting bookpulse",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repositories
	templates := db.NewTemplateRepository(database, logger)
	bookings := db.NewBookingRepository(database, logger)
	tenants := db.NewTenantRepository(database, logger)
	deliveries := db.NewDeliveryRepository(database, logger)
	jobs := db.NewJobRepository(database, logger)

	// Initialize Redis for the sweep run lock and rate limiting
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, sweep lock and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var sweepLock *redis.SweepLock
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		sweepLock = redis.NewSweepLock(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimit,
			Window: cfg.RateLimitWindow,
		})
		defer redisClient.Close()
	}

	// Mail transport, wrapped in a circuit breaker
	var mail mailer.Mailer
	if cfg.MockEmail {
		logger.Info("mock email mode, messages are logged not sent")
		mail = mailer.NewLogMailer(logger)
	} else {
		sesMailer, err := mailer.NewSESMailer(ctx, mailer.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SES mailer: %w", err)
		}
		mail = sesMailer
	}

	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("ses"), logger)
	mail = circuitbreaker.NewProtectedMailer(mail, breaker, logger)

	// Optional delivery outcome fan-out to SQS
	var producer *events.Producer
	if cfg.SQSQueueURL != "" {
		producer, err = events.NewProducer(ctx, events.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("sqs producer unavailable, delivery outcomes will not be published",
				zap.Error(err),
			)
		} else {
			defer producer.Close()
		}
	}

	// Optional ops alerts over SNS
	var alerter *alerts.Publisher
	if cfg.SNSTopicARN != "" {
		alerter, err = alerts.NewPublisher(ctx, alerts.Config{
			Region:   cfg.SNSRegion,
			TopicARN: cfg.SNSTopicARN,
		}, logger)
		if err != nil {
			logger.Warn("sns publisher unavailable, sweep alerts disabled",
				zap.Error(err),
			)
		}
	}

	// Dispatcher and sweep engine
	dispatcher := notify.NewDispatcher(templates, tenants, deliveries, mail, logger, cfg.SendTimeout)
	if producer != nil {
		dispatcher = dispatcher.WithEvents(producer)
	}

	engineOpts := []sweep.Option{sweep.WithWindowRadius(cfg.WindowRadius)}
	if sweepLock != nil {
		engineOpts = append(engineOpts, sweep.WithLocker(sweepLock))
	}
	engine := sweep.NewEngine(templates, bookings, deliveries, dispatcher, logger, engineOpts...)

	// Background worker for immediate-trigger dispatch jobs
	w := worker.New(jobs, bookings, dispatcher, worker.Config{
		PollInterval: cfg.WorkerPollInterval,
		BatchSize:    cfg.WorkerBatchSize,
		MaxRetries:   cfg.WorkerMaxRetries,
	}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go w.Start(workerCtx)

	logger.Info("background dispatch worker started")

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	handler := api.NewHandler(logger, &alertingSweeper{engine: engine, alerter: alerter, logger: logger}, bookings, jobs, deliveries)

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.TenantKeyFunc))

		r.Post("/sweep/run", handler.RunSweep)
		r.Post("/bookings/{id}/notifications", handler.TriggerNotifications)
		r.Get("/bookings/{id}/deliveries", handler.ListBookingDeliveries)
		r.Get("/deliveries", handler.ListDeliveries)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("DB DOWN"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// alertingSweeper raises an SNS alert after any sweep that recorded
// failures. Alerting problems are logged and never fail the sweep.
type alertingSweeper struct {
	engine  *sweep.Engine
	alerter *alerts.Publisher
	logger  *zap.Logger
}

func (s *alertingSweeper) Run(ctx context.Context) (*sweep.Report, error) {
	report, err := s.engine.Run(ctx)
	if err != nil {
		return nil, err
	}

	if s.alerter != nil && report.Summary.Failed > 0 {
		alertErr := s.alerter.PublishSweepAlert(ctx, alerts.SweepAlert{
			Processed: report.Processed,
			Sent:      report.Summary.Sent,
			Skipped:   report.Summary.Skipped,
			Failed:    report.Summary.Failed,
		})
		if alertErr != nil {
			s.logger.Warn("failed to publish sweep alert", zap.Error(alertErr))
		}
	}

	return report, nil
}
