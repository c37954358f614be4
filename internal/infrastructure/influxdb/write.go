package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tankutility-bridge/internal/tankutility"
)

// measurementTankReading is the measurement every tank reading is written to.
const measurementTankReading = "tank_reading"

// OnRecord writes one reading as a tank_reading point.
//
// The write is non-blocking; failures surface through SetOnError. Returns
// ErrNotConnected after Close, and ErrWriteFailed when the reading carries
// no recordable field.
func (c *Client) OnRecord(_ context.Context, deviceID, name string, rec tankutility.Record) error {
	if c.writeAPI == nil || c.closed.Load() {
		return ErrNotConnected
	}

	point, ok := TankReadingPoint(deviceID, name, rec, time.Now())
	if !ok {
		return ErrWriteFailed
	}
	c.writeAPI.WritePoint(point)
	return nil
}

// TankReadingPoint builds the point for one reading.
//
// Tags: device_id, name, fuel_type (when known).
// Fields: tank, temperature, battery_level, capacity when numeric;
// battery_status when the battery is reported as text; low_fuel and
// low_battery always.
// The timestamp is the reading's time_iso, or now when that is missing.
//
// The second result is false when the reading has no recordable field:
// none of tank, temperature, capacity or battery.
func TankReadingPoint(deviceID, name string, rec tankutility.Record, now time.Time) (*write.Point, bool) {
	tags := map[string]string{
		"device_id": deviceID,
		"name":      name,
	}
	if ft := rec.FuelType(); ft != "" {
		tags["fuel_type"] = ft
	}

	fields := make(map[string]interface{}, 7)
	if v, ok := rec.TankLevel(); ok {
		fields[tankutility.FieldTank] = v
	}
	if v, ok := rec.Temperature(); ok {
		fields[tankutility.FieldTemperature] = v
	}
	if v, ok := rec.Capacity(); ok {
		fields[tankutility.FieldCapacity] = v
	}
	if b, ok := rec.Battery(); ok {
		if b.Numeric {
			fields[tankutility.FieldBattery] = b.Level
		} else if b.Status != "" {
			fields["battery_status"] = b.Status
		}
	}
	if len(fields) == 0 {
		return nil, false
	}
	fields["low_fuel"] = rec.IsLowFuel()
	fields["low_battery"] = rec.IsLowBattery()

	ts, ok := rec.Time()
	if !ok {
		ts = now
	}

	return write.NewPoint(measurementTankReading, tags, fields, ts), true
}
