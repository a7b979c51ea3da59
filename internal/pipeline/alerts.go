package pipeline

import (
	"fmt"
)

// Priority is the operator-facing severity of an alert.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
)

// Alert categories.
const (
	AlertSensorFailure   = "Sensor Failure"
	AlertHighTemperature = "High Temperature"
	AlertLowTemperature  = "Low Temperature"
	AlertLowWaterLevel   = "Low Water Level"
	AlertHighWaterLevel  = "High Water Level"
	AlertSoilPH          = "Soil pH Warning"
	AlertLowNutrient     = "Low Nutrient"
)

// Alert is one candidate notification derived from a reading.
type Alert struct {
	Type        string   `json:"type"`
	Priority    Priority `json:"priority"`
	Description string   `json:"description"`
}

// SentAlert records an alert that passed throttling and was published.
type SentAlert struct {
	Type          string   `json:"type"`
	Priority      Priority `json:"priority"`
	SentTimestamp string   `json:"sent_timestamp"`
}

// FailureClass groups quantity-level validation errors into the hardware
// condition they indicate.
type FailureClass string

const (
	FailureSensorFailure      FailureClass = "sensor_failure"
	FailureSensorDisconnected FailureClass = "sensor_disconnected"
	FailureSensorMalfunction  FailureClass = "sensor_malfunction"
)

// failureClassFor maps a validation finding to its hardware condition.
// Only quantity-level findings classify; everything else returns false.
func failureClassFor(c Code) (FailureClass, bool) {
	switch c.Kind {
	case KindSentinelValue:
		return FailureSensorFailure, true
	case KindQuantityMissing:
		return FailureSensorDisconnected, true
	case KindOutOfRange:
		return FailureSensorMalfunction, true
	default:
		return "", false
	}
}

// Operational thresholds. Temperature and water level are absolute; pH
// carries a tighter escalation band; nutrients compare against 80% of the
// per-location minimum.
const (
	highTempThreshold   = 35.0
	lowTempThreshold    = 5.0
	lowWaterThreshold   = 1.0
	highWaterThreshold  = 2.5
	phOptimalLow        = 6.0
	phOptimalHigh       = 7.5
	phCriticalLow       = 5.5
	phCriticalHigh      = 8.0
	nutrientDeficitFrac = 0.8
)

var nutrients = []string{"nitrogen", "phosphorus", "potassium"}

// RuleEngine derives candidate alerts from classified readings.
type RuleEngine struct {
	catalog *RangeCatalog
}

// NewRuleEngine creates a RuleEngine over the given catalog.
func NewRuleEngine(catalog *RangeCatalog) *RuleEngine {
	return &RuleEngine{catalog: catalog}
}

// DeriveAlerts produces zero or more candidate alerts for a classified
// reading, in rule evaluation order. No rule fires twice per reading.
func (e *RuleEngine) DeriveAlerts(r *Reading, res Result) []Alert {
	if res.Status == StatusInvalid {
		return e.sensorFailureAlerts(r, res)
	}
	return e.operationalAlerts(r)
}

// sensorFailureAlerts emits one CRITICAL alert per distinct failure class
// present in the reading's errors, deduplicated by class rather than by
// quantity.
func (e *RuleEngine) sensorFailureAlerts(r *Reading, res Result) []Alert {
	var alerts []Alert
	seen := make(map[FailureClass]bool, 3)

	for _, code := range res.Errors {
		class, ok := failureClassFor(code)
		if !ok || seen[class] {
			continue
		}
		seen[class] = true
		alerts = append(alerts, Alert{
			Type:        AlertSensorFailure,
			Priority:    PriorityCritical,
			Description: fmt.Sprintf("Critical sensor issue detected at %s: %s", r.LocID, class),
		})
	}
	return alerts
}

func (e *RuleEngine) operationalAlerts(r *Reading) []Alert {
	var alerts []Alert
	loc := r.LocID

	if temp, ok := r.SensorNumber("temperature"); ok {
		if temp > highTempThreshold {
			alerts = append(alerts, Alert{
				Type:        AlertHighTemperature,
				Priority:    PriorityHigh,
				Description: fmt.Sprintf("High temperature warning: %.1f°C at %s", temp, loc),
			})
		} else if temp < lowTempThreshold {
			alerts = append(alerts, Alert{
				Type:        AlertLowTemperature,
				Priority:    PriorityHigh,
				Description: fmt.Sprintf("Low temperature warning: %.1f°C at %s", temp, loc),
			})
		}
	}

	if level, ok := r.SensorNumber("water_level"); ok {
		if level < lowWaterThreshold {
			alerts = append(alerts, Alert{
				Type:        AlertLowWaterLevel,
				Priority:    PriorityHigh,
				Description: fmt.Sprintf("Low water level alert: %.2fm at %s", level, loc),
			})
		} else if level > highWaterThreshold {
			alerts = append(alerts, Alert{
				Type:        AlertHighWaterLevel,
				Priority:    PriorityMedium,
				Description: fmt.Sprintf("High water level: %.2fm at %s", level, loc),
			})
		}
	}

	if ph, ok := r.SensorNumber("ph"); ok {
		if ph < phOptimalLow || ph > phOptimalHigh {
			priority := PriorityMedium
			if ph < phCriticalLow || ph > phCriticalHigh {
				priority = PriorityHigh
			}
			alerts = append(alerts, Alert{
				Type:        AlertSoilPH,
				Priority:    priority,
				Description: fmt.Sprintf("Soil pH out of optimal range: %.1f at %s", ph, loc),
			})
		}
	}

	for _, nutrient := range nutrients {
		value, ok := r.SensorNumber(nutrient)
		if !ok {
			continue
		}
		expected, ok := e.catalog.Lookup(loc, nutrient)
		if !ok {
			continue
		}
		if value < expected.Min*nutrientDeficitFrac {
			alerts = append(alerts, Alert{
				Type:        AlertLowNutrient,
				Priority:    PriorityMedium,
				Description: fmt.Sprintf("Low %s level: %.1f at %s", nutrient, value, loc),
			})
		}
	}

	return alerts
}
