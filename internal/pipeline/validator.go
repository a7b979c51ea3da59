package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the classification of one measured value, decided once
// at ingestion so range logic only ever handles numeric vs not.
type ValueKind int

const (
	// ValueMissing: the quantity key is absent from the sensor map.
	ValueMissing ValueKind = iota
	// ValueSentinel: a sensor-failure signal (0, ±9999, "NaN", null, ...),
	// not a real measurement.
	ValueSentinel
	// ValueNumeric: a usable number, possibly coerced from a string.
	ValueNumeric
	// ValueUnparseable: present but not a number and not coercible.
	ValueUnparseable
)

// MeasuredValue is the tagged representation of one sensor value.
type MeasuredValue struct {
	Raw       any
	Num       float64
	Kind      ValueKind
	Converted bool
}

// sentinelStrings are the textual failure codes emitted by fleet sensors.
var sentinelStrings = map[string]bool{
	"0":     true,
	"9999":  true,
	"-9999": true,
	"null":  true,
	"NULL":  true,
	"NaN":   true,
}

func isSentinelNumber(v float64) bool {
	return v == 0 || v == 9999 || v == -9999 || math.IsNaN(v)
}

// ClassifyValue inspects one raw sensor value. present distinguishes an
// absent key from an explicit JSON null, which decodes to a nil value.
func ClassifyValue(raw any, present bool) MeasuredValue {
	if !present {
		return MeasuredValue{Kind: ValueMissing}
	}

	switch v := raw.(type) {
	case nil:
		return MeasuredValue{Kind: ValueSentinel, Raw: raw}
	case float64:
		if isSentinelNumber(v) {
			return MeasuredValue{Kind: ValueSentinel, Raw: raw}
		}
		return MeasuredValue{Kind: ValueNumeric, Num: v, Raw: raw}
	case int:
		return ClassifyValue(float64(v), true)
	case string:
		if sentinelStrings[v] {
			return MeasuredValue{Kind: ValueSentinel, Raw: raw}
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return MeasuredValue{Kind: ValueUnparseable, Raw: raw}
		}
		if isSentinelNumber(n) {
			return MeasuredValue{Kind: ValueSentinel, Raw: raw}
		}
		return MeasuredValue{Kind: ValueNumeric, Num: n, Raw: raw, Converted: true}
	default:
		return MeasuredValue{Kind: ValueUnparseable, Raw: raw}
	}
}

// Kind enumerates every validation finding the pipeline can produce.
// The alert engine matches on these kinds exhaustively; the string codes
// exist only for persistence and operator-facing output.
type Kind int

const (
	KindMissingLocation Kind = iota
	KindUnknownLocation
	KindMissingField
	KindNoSensorData
	KindSentinelValue
	KindQuantityMissing
	KindInvalidType
	KindOutOfRange
	KindNearThreshold
	KindTypeConverted
	KindTemperatureMismatch
)

// Code is one validation finding: its kind plus the quantity or field it
// applies to, with optional rendering detail.
type Code struct {
	Kind     Kind
	Quantity string
	Detail   string
}

// String renders the finding in the wire form stored with each record.
// An absent quantity gets its own `_missing` code instead of the
// `_extreme_value` form used for sentinel and null values, so consumers
// of the stored documents can tell a disconnected sensor from a failed
// one.
func (c Code) String() string {
	switch c.Kind {
	case KindMissingLocation:
		return "missing_loc_id"
	case KindUnknownLocation:
		return "invalid_loc_id:" + c.Detail
	case KindMissingField:
		return "missing_top_level_key:" + c.Quantity
	case KindNoSensorData:
		return "missing_sensor_data"
	case KindSentinelValue:
		return "sensor_data:" + c.Quantity + "_extreme_value"
	case KindQuantityMissing:
		return "sensor_data:" + c.Quantity + "_missing"
	case KindInvalidType:
		return "sensor_data:" + c.Quantity + "_invalid_type"
	case KindOutOfRange:
		return "sensor_data:" + c.Quantity + "_out_of_range"
	case KindNearThreshold:
		return "sensor_data:" + c.Quantity + "_near_threshold"
	case KindTypeConverted:
		return "sensor_data:" + c.Quantity + "_type_converted"
	case KindTemperatureMismatch:
		return "temperature_mismatch:" + c.Detail
	default:
		return "unknown"
	}
}

// Result is the derived classification of one reading.
// Invariant: Status is INVALID iff Errors is non-empty, else WARNING iff
// Warnings is non-empty, else VALID.
type Result struct {
	Status   Status
	Errors   []Code
	Warnings []Code
}

func renderCodes(codes []Code) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = c.String()
	}
	return out
}

// ErrorStrings renders the errors in wire form, in order.
func (r Result) ErrorStrings() []string { return renderCodes(r.Errors) }

// WarningStrings renders the warnings in wire form, in order.
func (r Result) WarningStrings() []string { return renderCodes(r.Warnings) }

// requiredFields are the top-level keys every reading must carry.
var requiredFields = []string{"event_id", "timestamp", "sensor_data", "weather_data", "location"}

// Validator classifies readings against a range catalog.
type Validator struct {
	catalog *RangeCatalog
}

// NewValidator creates a Validator over the given catalog.
func NewValidator(catalog *RangeCatalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate classifies one reading. The only mutation of the input is the
// in-place coercion of lexically-numeric string values in SensorData.
func (v *Validator) Validate(r *Reading) Result {
	var errs, warns []Code

	// Unknown location fails fast: no range table means nothing else can
	// be assessed.
	if r.LocID == "" {
		errs = append(errs, Code{Kind: KindMissingLocation})
		return finish(errs, warns)
	}
	if !v.catalog.Known(r.LocID) {
		errs = append(errs, Code{Kind: KindUnknownLocation, Detail: r.LocID})
		return finish(errs, warns)
	}

	for _, field := range requiredFields {
		if !r.hasField(field) {
			errs = append(errs, Code{Kind: KindMissingField, Quantity: field})
		}
	}

	if len(r.SensorData) == 0 {
		errs = append(errs, Code{Kind: KindNoSensorData})
		return finish(errs, warns)
	}

	for _, quantity := range v.catalog.Quantities(r.LocID) {
		expected, _ := v.catalog.Lookup(r.LocID, quantity)
		raw, present := r.SensorData[quantity]

		mv := ClassifyValue(raw, present)
		switch mv.Kind {
		case ValueMissing:
			errs = append(errs, Code{Kind: KindQuantityMissing, Quantity: quantity})
			continue
		case ValueSentinel:
			errs = append(errs, Code{Kind: KindSentinelValue, Quantity: quantity})
			continue
		case ValueUnparseable:
			errs = append(errs, Code{Kind: KindInvalidType, Quantity: quantity})
			continue
		}

		if mv.Converted {
			r.SensorData[quantity] = mv.Num
			warns = append(warns, Code{Kind: KindTypeConverted, Quantity: quantity})
		}

		if !expected.Contains(mv.Num) {
			buffer := expected.Buffer()
			if mv.Num >= expected.Min-buffer && mv.Num <= expected.Max+buffer {
				warns = append(warns, Code{Kind: KindNearThreshold, Quantity: quantity})
			} else {
				errs = append(errs, Code{Kind: KindOutOfRange, Quantity: quantity})
			}
		}
	}

	// Cross-check the soil probe against the weather service. A large gap
	// suggests one of the two is drifting.
	if sensorTemp, ok := r.SensorNumber("temperature"); ok {
		if weatherTemp, ok := r.WeatherData["temperature_2m"]; ok {
			if math.Abs(sensorTemp-weatherTemp) > 15 {
				warns = append(warns, Code{
					Kind:   KindTemperatureMismatch,
					Detail: fmt.Sprintf("%gvs%g", sensorTemp, weatherTemp),
				})
			}
		}
	}

	return finish(errs, warns)
}

func finish(errs, warns []Code) Result {
	status := StatusValid
	if len(errs) > 0 {
		status = StatusInvalid
	} else if len(warns) > 0 {
		status = StatusWarning
	}
	return Result{Status: status, Errors: errs, Warnings: warns}
}

func (r *Reading) hasField(name string) bool {
	switch name {
	case "event_id":
		return r.EventID != ""
	case "timestamp":
		return r.Timestamp != ""
	case "loc_id":
		return r.LocID != ""
	case "sensor_data":
		return r.SensorData != nil
	case "weather_data":
		return r.WeatherData != nil
	case "location":
		return r.Location != nil
	default:
		return false
	}
}

// Annotate appends the validation outcome to the reading's metadata.
func Annotate(r *Reading, res Result, now time.Time) {
	r.ValidationStatus = res.Status
	r.ValidationErrors = res.ErrorStrings()
	r.ValidationWarnings = res.WarningStrings()
	r.ValidationTimestamp = now.UTC().Format(time.RFC3339)
}
