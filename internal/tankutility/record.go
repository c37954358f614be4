package tankutility

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record field names used by the bridge.
const (
	FieldTank         = "tank"
	FieldTemperature  = "temperature"
	FieldBattery      = "battery_level"
	FieldCapacity     = "capacity"
	FieldFuelType     = "fuelType"
	FieldOrientation  = "orientation"
	FieldStatus       = "status"
	FieldTimeISO      = "time_iso"
	FieldName         = "name"
	fieldLastReading  = "lastReading"
	attrLastUpdate    = "last_update"
	defaultNamePrefix = "Tank "
)

// Alert thresholds, in percent.
const (
	LowFuelThreshold    = 20.0
	LowBatteryThreshold = 20.0
)

// attributeFields are copied into Attributes when present.
var attributeFields = []string{FieldCapacity, FieldFuelType, FieldOrientation, FieldStatus, FieldTimeISO}

// Record is a flattened snapshot of one tank monitor: device metadata
// merged with its last reading. Values are as decoded from JSON.
//
// A missing tank or temperature field means the sensor is unavailable;
// it is not an error.
type Record map[string]any

// TankLevel returns the fuel level in percent.
func (r Record) TankLevel() (float64, bool) {
	return r.number(FieldTank)
}

// Temperature returns the tank temperature in °F.
func (r Record) Temperature() (float64, bool) {
	return r.number(FieldTemperature)
}

// Capacity returns the tank capacity in gallons.
func (r Record) Capacity() (float64, bool) {
	return r.number(FieldCapacity)
}

// FuelType returns the fuel type string (e.g. "propane").
func (r Record) FuelType() string {
	s, _ := r[FieldFuelType].(string)
	return s
}

// Battery returns the monitor battery reading, which the API reports either
// as a percentage or as a status word such as "good" or "low".
func (r Record) Battery() (Battery, bool) {
	v, ok := r[FieldBattery]
	if !ok || v == nil {
		return Battery{}, false
	}

	switch val := v.(type) {
	case float64:
		return Battery{Level: val, Numeric: true}, true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return Battery{Status: val.String()}, true
		}
		return Battery{Level: f, Numeric: true}, true
	case int:
		return Battery{Level: float64(val), Numeric: true}, true
	case string:
		return Battery{Status: val}, true
	default:
		return Battery{}, true
	}
}

// IsLowFuel reports whether the tank level is at or below LowFuelThreshold.
// A missing or non-numeric level is not low.
func (r Record) IsLowFuel() bool {
	level, ok := r.TankLevel()
	return ok && level <= LowFuelThreshold
}

// IsLowBattery reports whether the battery reading counts as low.
func (r Record) IsLowBattery() bool {
	b, ok := r.Battery()
	return ok && b.IsLow()
}

// Time returns the reading timestamp from time_iso.
func (r Record) Time() (time.Time, bool) {
	s, ok := r[FieldTimeISO].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Name returns the device's display name, or "Tank " plus the first six
// characters of deviceID when the API does not supply one.
func (r Record) Name(deviceID string) string {
	if s, ok := r[FieldName].(string); ok && s != "" {
		return s
	}
	short := deviceID
	if len(short) > 6 {
		short = short[:6]
	}
	return defaultNamePrefix + short
}

// Attributes returns the descriptive fields worth exposing alongside the
// fuel level, plus last_update mirroring time_iso.
func (r Record) Attributes() map[string]any {
	attrs := make(map[string]any, len(attributeFields)+1)
	for _, key := range attributeFields {
		if v, ok := r[key]; ok {
			attrs[key] = v
		}
	}
	if v, ok := r[FieldTimeISO]; ok {
		attrs[attrLastUpdate] = v
	}
	return attrs
}

// number reads a numeric field that may be a JSON number or a numeric string.
func (r Record) number(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Battery is a battery reading: numeric percent or status text.
type Battery struct {
	Level   float64
	Status  string
	Numeric bool
}

// IsLow reports a numeric level at or below LowBatteryThreshold, or the
// status "low" or "critical" (any case). Everything else is not low.
func (b Battery) IsLow() bool {
	if b.Numeric {
		return b.Level <= LowBatteryThreshold
	}
	switch strings.ToLower(strings.TrimSpace(b.Status)) {
	case "low", "critical":
		return true
	default:
		return false
	}
}

// String formats the reading as published to state topics.
func (b Battery) String() string {
	if b.Numeric {
		return formatNumber(b.Level)
	}
	return b.Status
}

// Round1 rounds to one decimal place, as displayed for level and temperature.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
