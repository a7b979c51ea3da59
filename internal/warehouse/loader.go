package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"agrodata.dev/farm-pipeline/pkg/metrics"
)

// ErrCycleInProgress is returned when RunCycle is called while another
// cycle is still running.
var ErrCycleInProgress = errors.New("load cycle already in progress")

// EpochStart is the watermark used when the fact table is empty: every
// staged reading is newer than it, so the first cycle loads everything.
var EpochStart = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// LoadReport summarizes one load cycle.
type LoadReport struct {
	Watermark    time.Time
	Extracted    int64
	LocationRows int64
	TimeRows     int64
	SoilRows     int64
	WeatherRows  int64
	FactRows     int64
	Duration     time.Duration
}

// Loader moves staged readings into the star schema incrementally. Each
// cycle loads only rows newer than the fact table's high watermark, and
// every insert is idempotent on the target's natural key, so re-running
// a cycle over the same rows is a no-op.
type Loader struct {
	logger  *slog.Logger
	db      *gorm.DB
	metrics *metrics.LoaderMetrics

	mu sync.Mutex
}

// NewLoader creates a Loader.
func NewLoader(db *gorm.DB, logger *slog.Logger, m *metrics.LoaderMetrics) (*Loader, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if m == nil {
		return nil, errors.New("metrics cannot be nil")
	}
	return &Loader{logger: logger, db: db, metrics: m}, nil
}

// RunCycle executes one incremental load: read the watermark, count the
// new staged rows, upsert the four dimensions, then insert facts. All
// stages run in a single transaction so a failed cycle leaves the
// schema untouched and the next cycle retries the same window.
func (l *Loader) RunCycle(ctx context.Context) (*LoadReport, error) {
	if !l.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer l.mu.Unlock()

	start := time.Now()
	l.metrics.CyclesTotal.Inc()

	report := &LoadReport{}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		watermark, err := l.readWatermark(tx)
		if err != nil {
			return err
		}
		report.Watermark = watermark

		if err := tx.Model(&ValidReading{}).
			Where("timestamp > ?", watermark).
			Count(&report.Extracted).Error; err != nil {
			return fmt.Errorf("failed to count new readings: %w", err)
		}
		if report.Extracted == 0 {
			return nil
		}

		if report.LocationRows, err = l.loadLocations(tx, watermark); err != nil {
			return err
		}
		if report.TimeRows, err = l.loadTimes(tx, watermark); err != nil {
			return err
		}
		if report.SoilRows, err = l.loadSoil(tx, watermark); err != nil {
			return err
		}
		if report.WeatherRows, err = l.loadWeather(tx, watermark); err != nil {
			return err
		}
		if report.FactRows, err = l.loadFacts(tx, watermark); err != nil {
			return err
		}
		return nil
	})
	report.Duration = time.Since(start)
	l.metrics.CycleDuration.Observe(report.Duration.Seconds())

	if err != nil {
		l.metrics.CycleFailures.Inc()
		return nil, err
	}

	l.metrics.RowsExtracted.Add(float64(report.Extracted))
	l.metrics.DimensionsAdded.WithLabelValues("location").Add(float64(report.LocationRows))
	l.metrics.DimensionsAdded.WithLabelValues("time").Add(float64(report.TimeRows))
	l.metrics.DimensionsAdded.WithLabelValues("soil").Add(float64(report.SoilRows))
	l.metrics.DimensionsAdded.WithLabelValues("weather").Add(float64(report.WeatherRows))
	l.metrics.FactsInserted.Add(float64(report.FactRows))

	l.logger.Info("load cycle complete",
		"watermark", report.Watermark,
		"extracted", report.Extracted,
		"location_rows", report.LocationRows,
		"time_rows", report.TimeRows,
		"soil_rows", report.SoilRows,
		"weather_rows", report.WeatherRows,
		"fact_rows", report.FactRows,
		"duration", report.Duration)
	return report, nil
}

func (l *Loader) readWatermark(tx *gorm.DB) (time.Time, error) {
	var ts sql.NullTime
	row := tx.Raw("SELECT MAX(full_date) FROM fact_sensor_readings").Row()
	if err := row.Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("failed to read watermark: %w", err)
	}
	if !ts.Valid {
		l.logger.Info("fact table is empty, loading from epoch")
		return EpochStart, nil
	}
	return ts.Time, nil
}

func (l *Loader) loadLocations(tx *gorm.DB, watermark time.Time) (int64, error) {
	res := tx.Exec(`
		INSERT INTO dim_location (loc_id, latitude, longitude)
		SELECT DISTINCT vr.loc_id, vr.latitude, vr.longitude
		FROM valid_readings vr
		WHERE vr.timestamp > ?
		ON CONFLICT (loc_id, latitude, longitude) DO NOTHING`, watermark)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to load location dimension: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (l *Loader) loadTimes(tx *gorm.DB, watermark time.Time) (int64, error) {
	res := tx.Exec(`
		INSERT INTO dim_time (full_date, year, month, day, hour, minute)
		SELECT DISTINCT vr.timestamp,
			EXTRACT(YEAR FROM vr.timestamp)::int,
			EXTRACT(MONTH FROM vr.timestamp)::int,
			EXTRACT(DAY FROM vr.timestamp)::int,
			EXTRACT(HOUR FROM vr.timestamp)::int,
			EXTRACT(MINUTE FROM vr.timestamp)::int
		FROM valid_readings vr
		WHERE vr.timestamp > ?
		ON CONFLICT (full_date) DO NOTHING`, watermark)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to load time dimension: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (l *Loader) loadSoil(tx *gorm.DB, watermark time.Time) (int64, error) {
	res := tx.Exec(`
		INSERT INTO dim_soil (ph, nitrogen, phosphorus, potassium)
		SELECT DISTINCT vr.ph, vr.nitrogen, vr.phosphorus, vr.potassium
		FROM valid_readings vr
		WHERE vr.timestamp > ?
		ON CONFLICT (ph, nitrogen, phosphorus, potassium) DO NOTHING`, watermark)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to load soil dimension: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// loadWeather requires the full weather tuple: a reading missing any
// weather quantity produces no dimension row, and later no fact row.
func (l *Loader) loadWeather(tx *gorm.DB, watermark time.Time) (int64, error) {
	res := tx.Exec(`
		INSERT INTO dim_weather (weather_temperature, weather_humidity, wind_speed, wind_direction, rain, surface_pressure)
		SELECT DISTINCT vr.weather_temperature_2m, vr.weather_relative_humidity_2m,
			vr.weather_wind_speed_10m, vr.weather_wind_direction_10m,
			vr.weather_rain, vr.weather_surface_pressure
		FROM valid_readings vr
		WHERE vr.timestamp > ?
			AND vr.weather_temperature_2m IS NOT NULL
			AND vr.weather_relative_humidity_2m IS NOT NULL
			AND vr.weather_wind_speed_10m IS NOT NULL
			AND vr.weather_wind_direction_10m IS NOT NULL
			AND vr.weather_rain IS NOT NULL
			AND vr.weather_surface_pressure IS NOT NULL
		ON CONFLICT (weather_temperature, weather_humidity, wind_speed, wind_direction, rain, surface_pressure) DO NOTHING`, watermark)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to load weather dimension: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (l *Loader) loadFacts(tx *gorm.DB, watermark time.Time) (int64, error) {
	res := tx.Exec(`
		INSERT INTO fact_sensor_readings
			(evt_id, location_key, weather_key, soil_key, full_date,
			 soil_temperature, soil_humidity, water_level, validation_status)
		SELECT vr.event_id, dl.location_key, dw.weather_key, ds.soil_key, dt.full_date,
			vr.temperature, vr.humidity, vr.water_level, vr.validation_status
		FROM valid_readings vr
		JOIN dim_location dl
			ON dl.loc_id = vr.loc_id
			AND dl.latitude = vr.latitude
			AND dl.longitude = vr.longitude
		JOIN dim_time dt
			ON dt.full_date = vr.timestamp
		JOIN dim_soil ds
			ON ds.ph = vr.ph
			AND ds.nitrogen = vr.nitrogen
			AND ds.phosphorus = vr.phosphorus
			AND ds.potassium = vr.potassium
		JOIN dim_weather dw
			ON dw.weather_temperature = vr.weather_temperature_2m
			AND dw.weather_humidity = vr.weather_relative_humidity_2m
			AND dw.wind_speed = vr.weather_wind_speed_10m
			AND dw.wind_direction = vr.weather_wind_direction_10m
			AND dw.rain = vr.weather_rain
			AND dw.surface_pressure = vr.weather_surface_pressure
		WHERE vr.timestamp > ?
		ON CONFLICT (evt_id) DO NOTHING`, watermark)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to load fact table: %w", res.Error)
	}
	return res.RowsAffected, nil
}
