package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agrodata.dev/farm-pipeline/internal/pipeline"
	"agrodata.dev/farm-pipeline/internal/processor"
)

var processorCmd = &cobra.Command{
	Use:   "processor",
	Short: "Run the processor server",
	Long: `Run the processor server that:
- Consumes raw sensor readings from RabbitMQ
- Validates readings against per-location expected ranges
- Raises and throttles condition alerts
- Archives every reading to the object store
- Stages validated readings for warehouse loading`,
	RunE: runProcessor,
}

func init() {
	rootCmd.AddCommand(processorCmd)

	// Processor-specific flags
	processorCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	processorCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	processorCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	processorCmd.Flags().String("db-password", "", "PostgreSQL password")
	processorCmd.Flags().String("db-name", "farm", "PostgreSQL database name")
	processorCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	processorCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	processorCmd.Flags().String("queue-name", "farm-data", "RabbitMQ queue name for sensor readings")
	processorCmd.Flags().String("alert-queue-name", "farm-alerts", "RabbitMQ queue name for alert notifications")
	processorCmd.Flags().String("store-endpoint", "localhost:9000", "Object store endpoint")
	processorCmd.Flags().String("store-access-key", "", "Object store access key")
	processorCmd.Flags().String("store-secret-key", "", "Object store secret key")
	processorCmd.Flags().String("store-bucket", "farm-readings", "Object store bucket")
	processorCmd.Flags().Bool("store-use-ssl", false, "Use TLS for the object store")
	processorCmd.Flags().Int("batch-size", processor.DefaultBatchSize, "Max records per processing batch")
	processorCmd.Flags().Duration("flush-interval", processor.DefaultFlushInterval, "Max wait before a partial batch is processed")
	processorCmd.Flags().Int("metrics-port", 9091, "Prometheus metrics port (0 disables)")

	// Bind flags to viper
	_ = viper.BindPFlag("processor.db.host", processorCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("processor.db.port", processorCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("processor.db.user", processorCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("processor.db.password", processorCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("processor.db.name", processorCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("processor.db.sslmode", processorCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("processor.rabbitmq.url", processorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("processor.rabbitmq.queue_name", processorCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("processor.rabbitmq.alert_queue_name", processorCmd.Flags().Lookup("alert-queue-name"))
	_ = viper.BindPFlag("processor.store.endpoint", processorCmd.Flags().Lookup("store-endpoint"))
	_ = viper.BindPFlag("processor.store.access_key", processorCmd.Flags().Lookup("store-access-key"))
	_ = viper.BindPFlag("processor.store.secret_key", processorCmd.Flags().Lookup("store-secret-key"))
	_ = viper.BindPFlag("processor.store.bucket", processorCmd.Flags().Lookup("store-bucket"))
	_ = viper.BindPFlag("processor.store.use_ssl", processorCmd.Flags().Lookup("store-use-ssl"))
	_ = viper.BindPFlag("processor.batch_size", processorCmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("processor.flush_interval", processorCmd.Flags().Lookup("flush-interval"))
	_ = viper.BindPFlag("processor.metrics.port", processorCmd.Flags().Lookup("metrics-port"))
}

func runProcessor(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting processor service")

	// Create processor configuration from viper
	config := &processor.ServerConfig{
		Logger:         logger,
		DBHost:         viper.GetString("processor.db.host"),
		DBPort:         viper.GetInt("processor.db.port"),
		DBUser:         viper.GetString("processor.db.user"),
		DBPassword:     viper.GetString("processor.db.password"),
		DBName:         viper.GetString("processor.db.name"),
		DBSSLMode:      viper.GetString("processor.db.sslmode"),
		RabbitMQURL:    viper.GetString("processor.rabbitmq.url"),
		QueueName:      viper.GetString("processor.rabbitmq.queue_name"),
		AlertQueue:     viper.GetString("processor.rabbitmq.alert_queue_name"),
		StoreEndpoint:  viper.GetString("processor.store.endpoint"),
		StoreAccessKey: viper.GetString("processor.store.access_key"),
		StoreSecretKey: viper.GetString("processor.store.secret_key"),
		StoreBucket:    viper.GetString("processor.store.bucket"),
		StoreUseSSL:    viper.GetBool("processor.store.use_ssl"),
		BatchSize:      viper.GetInt("processor.batch_size"),
		FlushInterval:  viper.GetDuration("processor.flush_interval"),
		MetricsPort:    viper.GetInt("processor.metrics.port"),
	}

	// Expected ranges can be replaced wholesale from the config file.
	if viper.IsSet("ranges") {
		var ranges map[string]map[string]pipeline.Range
		if err := viper.UnmarshalKey("ranges", &ranges); err != nil {
			logger.Error("failed to parse range configuration", "error", err)
			return err
		}
		config.Catalog = pipeline.NewCatalog(ranges)
		logger.Info("using range table from configuration", "locations", len(ranges))
	}

	// Create and run server
	server, err := processor.NewServer(config)
	if err != nil {
		logger.Error("failed to create processor server", "error", err)
		return err
	}

	logger.Info("processor server configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"rabbitmq_url", config.RabbitMQURL,
		"readings_queue", config.QueueName,
		"alert_queue", config.AlertQueue,
		"store_endpoint", config.StoreEndpoint,
		"store_bucket", config.StoreBucket,
		"metrics_port", config.MetricsPort,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("processor server error", "error", err)
		return err
	}

	logger.Info("processor server stopped")
	return nil
}
