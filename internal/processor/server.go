package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agrodata.dev/farm-pipeline/internal/notify"
	"agrodata.dev/farm-pipeline/internal/pipeline"
	"agrodata.dev/farm-pipeline/internal/store"
	"agrodata.dev/farm-pipeline/internal/warehouse"
	"agrodata.dev/farm-pipeline/pkg/metrics"
	"agrodata.dev/farm-pipeline/pkg/mq"

	"gorm.io/gorm"
)

// Server represents the processor service: queue consumer, validation
// pipeline, object store, alert notifier and warehouse staging.
type Server struct {
	logger     *slog.Logger
	db         *gorm.DB
	consumer   *Consumer
	metricsSrv *http.Server
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int

	// RabbitMQ configuration
	RabbitMQURL string
	QueueName   string
	AlertQueue  string

	// Object store configuration
	StoreEndpoint  string
	StoreAccessKey string
	StoreSecretKey string
	StoreBucket    string
	StoreUseSSL    bool

	// Batch tuning; defaults apply when zero.
	BatchSize     int
	FlushInterval time.Duration

	// Catalog overrides the production range table when set.
	Catalog *pipeline.RangeCatalog

	// MetricsPort exposes Prometheus metrics when positive.
	MetricsPort int
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.StoreEndpoint == "" {
		return nil, errors.New("object store endpoint cannot be empty")
	}

	if cfg.StoreBucket == "" {
		return nil, errors.New("object store bucket cannot be empty")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the processor server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting processor server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	dbCfg := &warehouse.DBConfig{
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
		Logger:   s.logger,
	}

	db, err := warehouse.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	s.logger.Info("database initialized successfully")

	objStore, err := store.NewS3Store(ctx, &store.S3Config{
		Logger:    s.logger,
		Endpoint:  s.config.StoreEndpoint,
		AccessKey: s.config.StoreAccessKey,
		SecretKey: s.config.StoreSecretKey,
		Bucket:    s.config.StoreBucket,
		UseSSL:    s.config.StoreUseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	// An empty alert queue downgrades notifications to log entries.
	var notifier notify.Notifier
	var alertClient *mq.Client
	if s.config.AlertQueue != "" {
		alertClient = mq.New(s.config.AlertQueue, s.config.RabbitMQURL, s.logger)
		notifier, err = notify.NewAMQPNotifier(alertClient, s.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize notifier: %w", err)
		}
	} else {
		s.logger.Warn("no alert queue configured, alerts will only be logged")
		notifier = notify.NewLogNotifier(s.logger)
	}

	stager, err := warehouse.NewStagingRepo(db, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize staging repository: %w", err)
	}

	catalog := s.config.Catalog
	if catalog == nil {
		catalog = pipeline.DefaultCatalog()
	}

	batchProcessor, err := pipeline.NewBatchProcessor(&pipeline.ProcessorConfig{
		Logger:   s.logger,
		Catalog:  catalog,
		Store:    objStore,
		Notifier: notifier,
		Stager:   stager,
		Metrics:  metrics.NewPipelineMetrics("farm_pipeline"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize batch processor: %w", err)
	}

	readingsClient := mq.New(s.config.QueueName, s.config.RabbitMQURL, s.logger)

	consumer, err := NewConsumer(&ConsumerConfig{
		Logger:        s.logger,
		MQClient:      readingsClient,
		Processor:     batchProcessor,
		BatchSize:     s.config.BatchSize,
		FlushInterval: s.config.FlushInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	s.consumer = consumer

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	metricsErr := make(chan error, 1)
	if s.config.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		s.metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", s.config.MetricsPort),
			Handler: mux,
		}

		s.logger.Info("starting metrics server", "address", s.metricsSrv.Addr)
		go func() {
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- fmt.Errorf("metrics server error: %w", err)
			}
			close(metricsErr)
		}()
	}

	s.logger.Info("processor server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-metricsErr:
		if err != nil {
			s.logger.Error("metrics server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown(alertClient)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(alertClient *mq.Client) error {
	s.logger.Info("shutting down processor server")

	var shutdownErr error

	if s.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to stop metrics server", "error", err)
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
		}
	}

	if s.consumer != nil {
		s.logger.Info("stopping consumer")
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; consumer shutdown error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("consumer shutdown error: %w", err)
			}
		}
	}

	if alertClient != nil {
		if err := alertClient.Close(); err != nil {
			s.logger.Error("failed to close alert client", "error", err)
		}
	}

	if s.db != nil {
		s.logger.Info("closing database connection")
		if err := warehouse.CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; database close error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("database close error: %w", err)
			}
		}
	}

	if shutdownErr != nil {
		s.logger.Error("processor server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("processor server shutdown completed")
	return nil
}
