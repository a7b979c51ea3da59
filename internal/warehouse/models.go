// Package warehouse implements the dimensional warehouse: the staging
// table fed by the processor and the star schema populated by the
// incremental loader.
package warehouse

import (
	"time"
)

// ValidReading is one flattened validated reading in the staging table.
// It is the loader's extraction source; rows are appended by the
// processor and never mutated.
type ValidReading struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"column:event_id;uniqueIndex;not null"`
	Timestamp time.Time `gorm:"index;not null"`
	LocID     string    `gorm:"column:loc_id;not null"`
	Latitude  float64   `gorm:"not null"`
	Longitude float64   `gorm:"not null"`

	Temperature float64 `gorm:"not null"`
	Humidity    float64 `gorm:"not null"`
	WaterLevel  float64 `gorm:"column:water_level;not null"`
	Nitrogen    float64 `gorm:"not null"`
	Phosphorus  float64 `gorm:"not null"`
	Potassium   float64 `gorm:"not null"`
	Ph          float64 `gorm:"column:ph;not null"`

	// Weather block is best-effort; absent quantities stay NULL and the
	// reading is excluded from the weather dimension and the fact table.
	WeatherTemperature2m       *float64 `gorm:"column:weather_temperature_2m"`
	WeatherRelativeHumidity2m  *float64 `gorm:"column:weather_relative_humidity_2m"`
	WeatherWindSpeed10m        *float64 `gorm:"column:weather_wind_speed_10m"`
	WeatherWindDirection10m    *float64 `gorm:"column:weather_wind_direction_10m"`
	WeatherRain                *float64 `gorm:"column:weather_rain"`
	WeatherSurfacePressure     *float64 `gorm:"column:weather_surface_pressure"`

	ValidationStatus string    `gorm:"not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for ValidReading.
func (ValidReading) TableName() string {
	return "valid_readings"
}

// DimLocation is the location dimension. Natural key: (loc_id, latitude,
// longitude).
type DimLocation struct {
	LocationKey uint    `gorm:"primaryKey;column:location_key"`
	LocID       string  `gorm:"column:loc_id;uniqueIndex:uq_dim_location;not null"`
	Latitude    float64 `gorm:"uniqueIndex:uq_dim_location;not null"`
	Longitude   float64 `gorm:"uniqueIndex:uq_dim_location;not null"`
}

// TableName specifies the table name for DimLocation.
func (DimLocation) TableName() string {
	return "dim_location"
}

// DimTime is the time dimension. Natural key: full_date, the reading
// timestamp; it also serves as the fact table's watermark column.
type DimTime struct {
	TimeKey  uint      `gorm:"primaryKey;column:time_key"`
	FullDate time.Time `gorm:"column:full_date;uniqueIndex;not null"`
	Year     int       `gorm:"not null"`
	Month    int       `gorm:"not null"`
	Day      int       `gorm:"not null"`
	Hour     int       `gorm:"not null"`
	Minute   int       `gorm:"not null"`
}

// TableName specifies the table name for DimTime.
func (DimTime) TableName() string {
	return "dim_time"
}

// DimSoil is the soil chemistry dimension. Natural key: the full
// (ph, nitrogen, phosphorus, potassium) tuple.
type DimSoil struct {
	SoilKey    uint    `gorm:"primaryKey;column:soil_key"`
	Ph         float64 `gorm:"column:ph;uniqueIndex:uq_dim_soil;not null"`
	Nitrogen   float64 `gorm:"uniqueIndex:uq_dim_soil;not null"`
	Phosphorus float64 `gorm:"uniqueIndex:uq_dim_soil;not null"`
	Potassium  float64 `gorm:"uniqueIndex:uq_dim_soil;not null"`
}

// TableName specifies the table name for DimSoil.
func (DimSoil) TableName() string {
	return "dim_soil"
}

// DimWeather is the weather dimension. Natural key: the full attribute
// tuple.
type DimWeather struct {
	WeatherKey         uint    `gorm:"primaryKey;column:weather_key"`
	WeatherTemperature float64 `gorm:"column:weather_temperature;uniqueIndex:uq_dim_weather;not null"`
	WeatherHumidity    float64 `gorm:"column:weather_humidity;uniqueIndex:uq_dim_weather;not null"`
	WindSpeed          float64 `gorm:"column:wind_speed;uniqueIndex:uq_dim_weather;not null"`
	WindDirection      float64 `gorm:"column:wind_direction;uniqueIndex:uq_dim_weather;not null"`
	Rain               float64 `gorm:"column:rain;uniqueIndex:uq_dim_weather;not null"`
	SurfacePressure    float64 `gorm:"column:surface_pressure;uniqueIndex:uq_dim_weather;not null"`
}

// TableName specifies the table name for DimWeather.
func (DimWeather) TableName() string {
	return "dim_weather"
}

// FactSensorReading is one loaded reading: foreign keys into all four
// dimensions plus the measured quantities. A fact row exists only when
// matching rows exist in every dimension, enforced by the loading join.
type FactSensorReading struct {
	FactKey          uint      `gorm:"primaryKey;column:fact_key"`
	EvtID            string    `gorm:"column:evt_id;uniqueIndex;not null"`
	LocationKey      uint      `gorm:"column:location_key;not null"`
	WeatherKey       uint      `gorm:"column:weather_key;not null"`
	SoilKey          uint      `gorm:"column:soil_key;not null"`
	FullDate         time.Time `gorm:"column:full_date;index;not null"`
	SoilTemperature  float64   `gorm:"column:soil_temperature;not null"`
	SoilHumidity     float64   `gorm:"column:soil_humidity;not null"`
	WaterLevel       float64   `gorm:"column:water_level;not null"`
	ValidationStatus string    `gorm:"not null"`
}

// TableName specifies the table name for FactSensorReading.
func (FactSensorReading) TableName() string {
	return "fact_sensor_readings"
}
