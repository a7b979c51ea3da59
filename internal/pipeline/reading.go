// Package pipeline implements the validation and alert-decision engine for
// per-location agricultural sensor readings: stateful classification of each
// reading, throttled alert emission, and routing of classified records to the
// object store and the warehouse staging table.
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the validation classification of a reading.
type Status string

const (
	StatusValid   Status = "VALID"
	StatusWarning Status = "WARNING"
	StatusInvalid Status = "INVALID"
)

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Reading is one timestamped sensor and weather event for a location.
// The core payload is immutable after decode, with one exception: the
// validator may coerce a lexically-numeric string in SensorData to a
// number in place. Everything below the metadata marker is appended
// during processing, never present on the wire.
type Reading struct {
	EventID     string             `json:"event_id,omitempty"`
	Timestamp   string             `json:"timestamp,omitempty"`
	LocID       string             `json:"loc_id,omitempty"`
	Location    *GeoPoint          `json:"location,omitempty"`
	SensorData  map[string]any     `json:"sensor_data,omitempty"`
	WeatherData map[string]float64 `json:"weather_data,omitempty"`

	// Processing metadata, additive only.
	ValidationStatus    Status      `json:"validation_status,omitempty"`
	ValidationErrors    []string    `json:"validation_errors,omitempty"`
	ValidationWarnings  []string    `json:"validation_warnings,omitempty"`
	ValidationTimestamp string      `json:"validation_timestamp,omitempty"`
	Alerts              []Alert     `json:"alerts,omitempty"`
	AlertsSent          []SentAlert `json:"alerts_sent,omitempty"`
}

// DecodeReading parses a raw transport payload into a Reading.
func DecodeReading(payload []byte) (*Reading, error) {
	var r Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("failed to decode reading: %w", err)
	}
	return &r, nil
}

// EventTime parses the reading's timestamp. It returns the zero time and
// an error if the timestamp is absent or not RFC 3339.
func (r *Reading) EventTime() (time.Time, error) {
	if r.Timestamp == "" {
		return time.Time{}, fmt.Errorf("reading %s has no timestamp", r.EventID)
	}
	t, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", r.Timestamp, err)
	}
	return t, nil
}

// SensorNumber returns the numeric value of a sensor quantity, if present
// and numeric. Coerced values count as numeric once validation has run.
func (r *Reading) SensorNumber(quantity string) (float64, bool) {
	v, ok := r.SensorData[quantity]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Flatten renders the reading as a flat document with underscore-joined
// keys, the shape persisted to the object store and mirrored by the
// warehouse staging table. Nested lists are JSON-encoded strings.
func (r *Reading) Flatten() map[string]any {
	raw, err := json.Marshal(r)
	if err != nil {
		// Reading is built from maps and scalars; marshal cannot fail in practice.
		return map[string]any{"event_id": r.EventID}
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return map[string]any{"event_id": r.EventID}
	}

	flat := make(map[string]any, len(tree))
	flattenInto(flat, "", tree)
	return flat
}

func flattenInto(dst map[string]any, parent string, src map[string]any) {
	for key, value := range src {
		name := key
		if parent != "" {
			name = parent + "_" + key
		}
		switch v := value.(type) {
		case map[string]any:
			flattenInto(dst, name, v)
		case []any:
			encoded, err := json.Marshal(v)
			if err != nil {
				dst[name] = fmt.Sprintf("%v", v)
				continue
			}
			dst[name] = string(encoded)
		default:
			dst[name] = v
		}
	}
}
