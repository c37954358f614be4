// Package influxdb records tank readings in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each published
// reading becomes one tank_reading point, written through the non-blocking
// batched write API. The Client satisfies the coordinator's Listener
// interface, so it is registered alongside the MQTT forwarder.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) {
//	    logger.Warn("influxdb write failed", "error", err)
//	})
//
// # Point Layout
//
//	measurement: tank_reading
//	tags:        device_id, name, fuel_type
//	fields:      tank, temperature, capacity, battery_level or
//	             battery_status, low_fuel, low_battery
//	time:        the reading's time_iso, second precision
//
// Write failures are delivered asynchronously via SetOnError. Connect
// errors are returned directly.
package influxdb
