package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agrodata.dev/farm-pipeline/internal/producer"
	"agrodata.dev/farm-pipeline/pkg/metrics"
)

var generatorCmd = &cobra.Command{
	Use:   "generator",
	Short: "Run the data generator",
	Long: `Run the data generator that:
- Generates synthetic farm sensor readings for every monitored site
- Injects realistic sensor faults and alert conditions
- Publishes readings to RabbitMQ`,
	RunE: runGenerator,
}

func init() {
	rootCmd.AddCommand(generatorCmd)

	// Generator-specific flags
	generatorCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	generatorCmd.Flags().String("queue-name", "farm-data", "RabbitMQ queue name for sensor readings")
	generatorCmd.Flags().Duration("interval", 5*time.Second, "Interval between readings per site")
	generatorCmd.Flags().Int64("seed", 0, "Random seed (0 uses the current time)")

	// Bind flags to viper
	_ = viper.BindPFlag("generator.rabbitmq.url", generatorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("generator.rabbitmq.queue_name", generatorCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("generator.interval", generatorCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("generator.seed", generatorCmd.Flags().Lookup("seed"))
}

func runGenerator(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting generator service")

	// Create producer configuration from viper
	config := &producer.ServerConfig{
		Logger:      logger,
		RabbitMQURL: viper.GetString("generator.rabbitmq.url"),
		QueueName:   viper.GetString("generator.rabbitmq.queue_name"),
		Interval:    viper.GetDuration("generator.interval"),
		Seed:        viper.GetInt64("generator.seed"),
		Metrics:     metrics.NewGeneratorMetrics("farm_pipeline"),
		MQMetrics:   metrics.NewMQMetrics("farm_pipeline"),
	}

	// Create and run server
	server, err := producer.NewServer(config)
	if err != nil {
		logger.Error("failed to create generator server", "error", err)
		return err
	}

	logger.Info("generator server configuration",
		"rabbitmq_url", config.RabbitMQURL,
		"readings_queue", config.QueueName,
		"interval", config.Interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("generator server error", "error", err)
		return err
	}

	logger.Info("generator server stopped")
	return nil
}
