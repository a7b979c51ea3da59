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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agrodata.dev/farm-pipeline/internal/warehouse"
	"agrodata.dev/farm-pipeline/pkg/metrics"
)

var loaderCmd = &cobra.Command{
	Use:   "loader",
	Short: "Run the warehouse loader",
	Long: `Run the warehouse loader that:
- Reads the fact table's high watermark
- Extracts staged readings newer than the watermark
- Upserts the location, time, soil and weather dimensions
- Inserts fact rows joined against the dimensions`,
	RunE: runLoader,
}

func init() {
	rootCmd.AddCommand(loaderCmd)

	// Loader-specific flags
	loaderCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	loaderCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	loaderCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	loaderCmd.Flags().String("db-password", "", "PostgreSQL password")
	loaderCmd.Flags().String("db-name", "farm", "PostgreSQL database name")
	loaderCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	loaderCmd.Flags().Duration("interval", 5*time.Minute, "Interval between load cycles")
	loaderCmd.Flags().Bool("run-once", false, "Run a single load cycle and exit")
	loaderCmd.Flags().Int("metrics-port", 9092, "Prometheus metrics port (0 disables)")

	// Bind flags to viper
	_ = viper.BindPFlag("loader.db.host", loaderCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("loader.db.port", loaderCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("loader.db.user", loaderCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("loader.db.password", loaderCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("loader.db.name", loaderCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("loader.db.sslmode", loaderCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("loader.interval", loaderCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("loader.run_once", loaderCmd.Flags().Lookup("run-once"))
	_ = viper.BindPFlag("loader.metrics.port", loaderCmd.Flags().Lookup("metrics-port"))
}

func runLoader(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting loader service")

	db, err := warehouse.NewDB(&warehouse.DBConfig{
		Host:     viper.GetString("loader.db.host"),
		Port:     viper.GetInt("loader.db.port"),
		User:     viper.GetString("loader.db.user"),
		Password: viper.GetString("loader.db.password"),
		DBName:   viper.GetString("loader.db.name"),
		SSLMode:  viper.GetString("loader.db.sslmode"),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		return err
	}
	defer func() {
		if err := warehouse.CloseDB(db, logger); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	loader, err := warehouse.NewLoader(db, logger, metrics.NewLoaderMetrics("farm_pipeline"))
	if err != nil {
		logger.Error("failed to create loader", "error", err)
		return err
	}

	ctx := context.Background()

	if viper.GetBool("loader.run_once") {
		report, err := loader.RunCycle(ctx)
		if err != nil {
			logger.Error("load cycle failed", "error", err)
			return err
		}
		logger.Info("single load cycle complete",
			"extracted", report.Extracted,
			"fact_rows", report.FactRows,
		)
		return nil
	}

	if port := viper.GetInt("loader.metrics.port"); port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			addr := fmt.Sprintf(":%d", port)
			logger.Info("starting metrics server", "address", addr)
			if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	scheduler, err := warehouse.NewScheduler(loader, viper.GetDuration("loader.interval"), logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		return err
	}

	scheduler.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.Info("received shutdown signal", "signal", sig.String())

	scheduler.Stop()
	logger.Info("loader service stopped")
	return nil
}
