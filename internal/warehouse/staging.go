package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agrodata.dev/farm-pipeline/internal/pipeline"
)

// StagingRepo appends validated readings to the staging table. It is the
// warehouse-facing half of the batch processor: VALID and WARNING
// readings staged here are what the loader later moves into the star
// schema.
type StagingRepo struct {
	logger *slog.Logger
	db     *gorm.DB
}

// NewStagingRepo creates a StagingRepo.
func NewStagingRepo(db *gorm.DB, logger *slog.Logger) (*StagingRepo, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &StagingRepo{logger: logger, db: db}, nil
}

// Stage flattens one validated reading into the staging table. Staging
// is idempotent on event_id so transport redeliveries cannot duplicate
// rows.
func (s *StagingRepo) Stage(ctx context.Context, r *pipeline.Reading) error {
	if r.ValidationStatus == pipeline.StatusInvalid {
		return fmt.Errorf("reading %s is INVALID and cannot be staged", r.EventID)
	}

	ts, err := r.EventTime()
	if err != nil {
		return fmt.Errorf("cannot stage reading without event time: %w", err)
	}

	row := ValidReading{
		EventID:          r.EventID,
		Timestamp:        ts.UTC(),
		LocID:            r.LocID,
		ValidationStatus: string(r.ValidationStatus),
	}
	if r.Location != nil {
		row.Latitude = r.Location.Latitude
		row.Longitude = r.Location.Longitude
	}

	// Validation guarantees every catalog quantity is numeric on VALID
	// and WARNING readings.
	row.Temperature, _ = r.SensorNumber("temperature")
	row.Humidity, _ = r.SensorNumber("humidity")
	row.WaterLevel, _ = r.SensorNumber("water_level")
	row.Nitrogen, _ = r.SensorNumber("nitrogen")
	row.Phosphorus, _ = r.SensorNumber("phosphorus")
	row.Potassium, _ = r.SensorNumber("potassium")
	row.Ph, _ = r.SensorNumber("ph")

	row.WeatherTemperature2m = weatherValue(r, "temperature_2m")
	row.WeatherRelativeHumidity2m = weatherValue(r, "relative_humidity_2m")
	row.WeatherWindSpeed10m = weatherValue(r, "wind_speed_10m")
	row.WeatherWindDirection10m = weatherValue(r, "wind_direction_10m")
	row.WeatherRain = weatherValue(r, "rain")
	row.WeatherSurfacePressure = weatherValue(r, "surface_pressure")

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to stage reading %s: %w", r.EventID, err)
	}

	s.logger.Debug("reading staged", "event_id", r.EventID, "loc_id", r.LocID)
	return nil
}

func weatherValue(r *pipeline.Reading, key string) *float64 {
	v, ok := r.WeatherData[key]
	if !ok {
		return nil
	}
	return &v
}

var _ pipeline.RecordStager = (*StagingRepo)(nil)
