// Package generator produces synthetic farm sensor readings: smooth
// optimal-band walks for healthy sites, with fault injection that
// escalates as the simulated equipment ages.
package generator

import (
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// FarmSite identifies one monitored location.
type FarmSite struct {
	LocID     string
	Name      string
	Latitude  float64
	Longitude float64
}

// Sites returns the monitored farm locations.
func Sites() []FarmSite {
	return []FarmSite{
		{LocID: "loc_1", Name: "Toshka_project", Latitude: 23.4219, Longitude: 30.5978},
		{LocID: "loc_2", Name: "Sharq_El_Owainat_project", Latitude: 22.4214, Longitude: 28.5306},
		{LocID: "loc_3", Name: "Dina_Farms", Latitude: 30.6558, Longitude: 30.5401},
	}
}

// SensorBand defines the physical and optimal operating range of one
// quantity at one site.
type SensorBand struct {
	Min        float64
	Max        float64
	OptimalMin float64
	OptimalMax float64
}

var siteBands = map[string]map[string]SensorBand{
	"loc_1": {
		"temperature": {10.0, 50.0, 18.0, 28.0},
		"humidity":    {30.0, 90.0, 45.0, 75.0},
		"water_level": {0.5, 3.0, 1.2, 2.2},
		"nitrogen":    {80.0, 150.0, 100.0, 130.0},
		"phosphorus":  {40.0, 80.0, 50.0, 70.0},
		"potassium":   {40.0, 80.0, 50.0, 70.0},
		"ph":          {6.0, 8.0, 6.5, 7.2},
	},
	"loc_2": {
		"temperature": {15.0, 55.0, 22.0, 32.0},
		"humidity":    {25.0, 80.0, 40.0, 65.0},
		"water_level": {0.3, 2.5, 1.0, 2.0},
		"nitrogen":    {70.0, 140.0, 90.0, 120.0},
		"phosphorus":  {30.0, 70.0, 40.0, 60.0},
		"potassium":   {30.0, 70.0, 40.0, 60.0},
		"ph":          {6.5, 8.5, 7.0, 7.8},
	},
	"loc_3": {
		"temperature": {12.0, 52.0, 20.0, 30.0},
		"humidity":    {28.0, 85.0, 42.0, 70.0},
		"water_level": {0.4, 2.8, 1.1, 2.3},
		"nitrogen":    {75.0, 145.0, 95.0, 125.0},
		"phosphorus":  {35.0, 75.0, 45.0, 65.0},
		"potassium":   {35.0, 75.0, 45.0, 65.0},
		"ph":          {6.2, 8.2, 6.8, 7.5},
	},
}

// quantities fixes generation order so runs with the same seed are
// reproducible.
var quantities = []string{
	"temperature", "humidity", "water_level",
	"nitrogen", "phosphorus", "potassium", "ph",
}

// Fault kinds reported by Reading.Fault.
const (
	FaultNone             = ""
	FaultSensorFreeze     = "sensor_freeze"
	FaultPowerFluctuation = "power_fluctuation"
	FaultSensorFailure    = "sensor_failure"
	FaultCommGlitch       = "communication_glitch"
	FaultSensorDrift      = "sensor_drift"
	FaultHeatStress       = "heat_stress"
	FaultColdStress       = "cold_stress"
	FaultDrought          = "drought"
	FaultPHImbalance      = "ph_imbalance"
	FaultNutrientDepleted = "nutrient_depletion"
)

// Reading is one generated wire record. SensorData is mixed-type on
// purpose: injected faults produce the sentinel strings and nulls real
// failing sensors emit.
type Reading struct {
	EventID     string             `json:"event_id"`
	Timestamp   string             `json:"timestamp"`
	LocID       string             `json:"loc_id"`
	Location    map[string]float64 `json:"location"`
	SensorData  map[string]any     `json:"sensor_data"`
	WeatherData map[string]float64 `json:"weather_data"`

	// Fault names the injected fault kind, or FaultNone. Not part of
	// the wire payload.
	Fault string `json:"-"`
}

// Marshal renders the wire payload.
func (r *Reading) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Lifecycle thresholds controlling fault escalation.
const (
	degradationStartRecords = 800
	stablePeriodRecords     = 1000
	faultEscalationRate     = 0.1
)

// FarmGenerator produces readings for one site. Healthy values walk
// smoothly inside the optimal band; fault probabilities escalate with
// the number of records produced.
type FarmGenerator struct {
	site    FarmSite
	bands   map[string]SensorBand
	rng     *rand.Rand
	last    map[string]float64
	records int
}

// NewFarmGenerator creates a generator for one site. The seed makes
// runs reproducible; pass time.Now().UnixNano() for variety.
func NewFarmGenerator(site FarmSite, seed int64) *FarmGenerator {
	return &FarmGenerator{
		site:  site,
		bands: siteBands[site.LocID],
		rng:   rand.New(rand.NewSource(seed)),
		last:  make(map[string]float64),
	}
}

// Site returns the generator's site.
func (g *FarmGenerator) Site() FarmSite {
	return g.site
}

// Next produces the next reading.
func (g *FarmGenerator) Next(now time.Time) *Reading {
	g.records++

	r := &Reading{
		EventID:   "evt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.999999") + "Z",
		LocID:     g.site.LocID,
		Location: map[string]float64{
			"latitude":  g.site.Latitude,
			"longitude": g.site.Longitude,
		},
		SensorData:  g.healthySensorData(),
		WeatherData: g.weatherData(),
	}

	invalidProb, alertProb := g.faultProbabilities()
	switch {
	case g.rng.Float64() < invalidProb:
		g.injectMajorFault(r)
	case g.rng.Float64() < alertProb:
		g.injectAlertFault(r, now)
	default:
		// Only healthy readings advance the walk, so faults do not
		// drag the baseline out of band.
		for q, v := range r.SensorData {
			g.last[q] = v.(float64)
		}
	}

	return r
}

// healthySensorData walks each quantity inside its optimal band, with
// occasional drift into the wider valid range.
func (g *FarmGenerator) healthySensorData() map[string]any {
	data := make(map[string]any, len(quantities))
	for _, q := range quantities {
		band := g.bands[q]

		var val float64
		if last, ok := g.last[q]; ok {
			variation := (band.OptimalMax - band.OptimalMin) * 0.02
			val = last + (g.rng.Float64()*2-1)*variation
			if g.rng.Float64() < 0.9 {
				val = clamp(val, band.OptimalMin, band.OptimalMax)
			} else {
				val = clamp(val, band.Min, band.Max)
			}
		} else {
			val = band.OptimalMin + g.rng.Float64()*(band.OptimalMax-band.OptimalMin)
		}

		data[q] = round2(val)
	}
	return data
}

// weatherData synthesizes the ambient weather block a forecast API
// would report for the site.
func (g *FarmGenerator) weatherData() map[string]float64 {
	return map[string]float64{
		"temperature_2m":       gofakeit.Float64Range(20, 35),
		"relative_humidity_2m": gofakeit.Float64Range(40, 80),
		"is_day":               1,
		"wind_speed_10m":       gofakeit.Float64Range(0, 15),
		"wind_direction_10m":   gofakeit.Float64Range(0, 360),
		"wind_gusts_10m":       gofakeit.Float64Range(0, 20),
		"rain":                 0,
		"precipitation":        0,
		"surface_pressure":     gofakeit.Float64Range(1000, 1020),
		"apparent_temperature": gofakeit.Float64Range(18, 38),
	}
}

// faultProbabilities escalates fault rates as the simulated equipment
// ages: near zero while new, then an escalating curve capped at 15%
// invalid and 25% alert-triggering.
func (g *FarmGenerator) faultProbabilities() (invalid, alert float64) {
	switch {
	case g.records < degradationStartRecords:
		return 0.001, 0.002
	case g.records < stablePeriodRecords:
		return 0.005, 0.01
	default:
		excess := float64(g.records - stablePeriodRecords)
		factor := min(1.0+excess*faultEscalationRate/100, 3.0)
		return min(0.02*factor, 0.15), min(0.03*factor, 0.25)
	}
}

// injectMajorFault corrupts the reading the way failing hardware does:
// sentinel values, nulls, missing blocks or drifted measurements.
func (g *FarmGenerator) injectMajorFault(r *Reading) {
	kind := []string{
		FaultSensorFreeze,
		FaultPowerFluctuation,
		FaultSensorFailure,
		FaultCommGlitch,
		FaultSensorDrift,
	}[g.rng.Intn(5)]
	r.Fault = kind

	switch kind {
	case FaultSensorFreeze:
		freeze := []any{0.0, 9999.0}[g.rng.Intn(2)]
		for _, q := range g.sampleQuantities(1 + g.rng.Intn(2)) {
			r.SensorData[q] = freeze
		}

	case FaultPowerFluctuation:
		options := []any{0.0, -9999.0, "NULL", nil}
		for _, q := range quantities {
			if g.rng.Float64() < 0.3 {
				r.SensorData[q] = options[g.rng.Intn(len(options))]
			}
		}

	case FaultSensorFailure:
		options := []any{9999.0, -9999.0, "FAIL", nil}
		for _, q := range g.sampleQuantities(1 + g.rng.Intn(3)) {
			r.SensorData[q] = options[g.rng.Intn(len(options))]
		}

	case FaultCommGlitch:
		if g.rng.Float64() < 0.7 {
			r.SensorData = map[string]any{}
		} else {
			r.WeatherData = nil
		}

	case FaultSensorDrift:
		for _, q := range g.sampleQuantities(1 + g.rng.Intn(2)) {
			band := g.bands[q]
			if g.rng.Intn(2) == 0 {
				r.SensorData[q] = round2(band.Max * (1.1 + g.rng.Float64()*0.2))
			} else {
				r.SensorData[q] = round2(band.Min * (0.7 + g.rng.Float64()*0.2))
			}
		}
	}
}

// injectAlertFault pushes valid measurements into alert territory. The
// scenario choice follows the hour: heat and drought in the afternoon,
// cold and pH problems at night.
func (g *FarmGenerator) injectAlertFault(r *Reading, now time.Time) {
	var scenarios []string
	switch hour := now.Hour(); {
	case hour >= 12 && hour <= 16:
		scenarios = []string{FaultHeatStress, FaultDrought}
	case hour <= 6:
		scenarios = []string{FaultColdStress, FaultPHImbalance}
	default:
		scenarios = []string{FaultNutrientDepleted, FaultPHImbalance, FaultDrought}
	}
	kind := scenarios[g.rng.Intn(len(scenarios))]
	r.Fault = kind

	data := r.SensorData
	switch kind {
	case FaultHeatStress:
		data["temperature"] = round2(36.0 + g.rng.Float64()*6.0)
		data["humidity"] = round2(max(25.0, data["humidity"].(float64)*0.8))
		data["water_level"] = round2(max(0.5, data["water_level"].(float64)*0.9))

	case FaultColdStress:
		data["temperature"] = round2(2.0 + g.rng.Float64()*6.0)
		data["nitrogen"] = round2(data["nitrogen"].(float64) * 0.9)

	case FaultDrought:
		data["water_level"] = round2(0.3 + g.rng.Float64()*0.5)
		for _, nutrient := range []string{"nitrogen", "phosphorus", "potassium"} {
			band := g.bands[nutrient]
			data[nutrient] = round2(min(band.Max, data[nutrient].(float64)*1.2))
		}

	case FaultPHImbalance:
		if g.rng.Intn(2) == 0 {
			data["ph"] = round2(5.0 + g.rng.Float64()*0.8)
		} else {
			data["ph"] = round2(7.8 + g.rng.Float64()*0.7)
		}

	case FaultNutrientDepleted:
		nutrient := []string{"nitrogen", "phosphorus", "potassium"}[g.rng.Intn(3)]
		band := g.bands[nutrient]
		data[nutrient] = round2(band.Min * (0.6 + g.rng.Float64()*0.25))
	}
}

func (g *FarmGenerator) sampleQuantities(n int) []string {
	idx := g.rng.Perm(len(quantities))
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = quantities[idx[i]]
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
