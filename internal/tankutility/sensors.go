package tankutility

// Display units, device classes and state classes recognised by
// home-automation consumers.
const (
	UnitPercent    = "%"
	UnitFahrenheit = "°F"

	DeviceClassBattery     = "battery"
	DeviceClassTemperature = "temperature"

	StateClassMeasurement = "measurement"
)

// SensorDescription describes one value a tank exposes as a sensor.
type SensorDescription struct {
	// Key is the Record field holding the value.
	Key string

	// Name is appended to the device name ("House Tank Fuel Level").
	Name string

	// Topic is the last segment of the forwarded MQTT topic.
	Topic string

	Unit        string
	DeviceClass string
	StateClass  string
	Icon        string
}

// Sensors lists the sensors each tank exposes, in publish order.
var Sensors = []SensorDescription{
	{
		Key:        FieldTank,
		Name:       "Fuel Level",
		Topic:      "tank",
		Unit:       UnitPercent,
		StateClass: StateClassMeasurement,
		Icon:       "mdi:propane-tank",
	},
	{
		Key:         FieldTemperature,
		Name:        "Temperature",
		Topic:       "temperature",
		Unit:        UnitFahrenheit,
		DeviceClass: DeviceClassTemperature,
		StateClass:  StateClassMeasurement,
	},
	{
		Key:         FieldBattery,
		Name:        "Battery",
		Topic:       "battery",
		Unit:        UnitPercent,
		DeviceClass: DeviceClassBattery,
		StateClass:  StateClassMeasurement,
	},
}

// State returns the sensor's current value formatted for publishing.
// Numeric level and temperature are rounded to one decimal; a value that
// is present but not numeric is passed through as text. The second result
// is false when the field is absent (sensor unavailable).
func (d SensorDescription) State(r Record) (string, bool) {
	if d.Key == FieldBattery {
		b, ok := r.Battery()
		if !ok {
			return "", false
		}
		return b.String(), true
	}

	raw, present := r[d.Key]
	if !present || raw == nil {
		return "", false
	}
	if v, ok := r.number(d.Key); ok {
		return formatNumber(Round1(v)), true
	}
	if s, ok := raw.(string); ok {
		return s, true
	}
	return "", false
}
