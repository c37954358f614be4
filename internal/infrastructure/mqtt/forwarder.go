package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tankutility-bridge/internal/tankutility"
)

// Publisher is the subset of Client used by the Forwarder.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ForwarderConfig holds configuration for a Forwarder.
type ForwarderConfig struct {
	// Topics builds the forwarded topics. The zero value uses DefaultTopicPrefix.
	Topics Topics

	// QoS for every forwarded message.
	QoS byte

	// RetainValues retains the per-sensor plain values. The JSON state
	// document is always retained.
	RetainValues bool
}

// Forwarder publishes tank readings to MQTT.
//
// For each reading it publishes the plain value of every present sensor to
// {prefix}/{device_id}/{tank|temperature|battery}, then a JSON document with
// the full reading to {prefix}/{device_id}/state.
type Forwarder struct {
	publisher Publisher
	cfg       ForwarderConfig
}

// NewForwarder creates a Forwarder that publishes through p.
func NewForwarder(p Publisher, cfg ForwarderConfig) *Forwarder {
	return &Forwarder{publisher: p, cfg: cfg}
}

// DeviceState is the retained JSON document on the state topic.
type DeviceState struct {
	DeviceID    string         `json:"device_id"`
	Name        string         `json:"name"`
	Tank        *float64       `json:"tank,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Battery     string         `json:"battery_level,omitempty"`
	LowFuel     bool           `json:"low_fuel"`
	LowBattery  bool           `json:"low_battery"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	PublishedAt string         `json:"published_at"`
}

// NewDeviceState builds the state document for one reading.
func NewDeviceState(deviceID, name string, rec tankutility.Record, now time.Time) DeviceState {
	s := DeviceState{
		DeviceID:    deviceID,
		Name:        name,
		LowFuel:     rec.IsLowFuel(),
		LowBattery:  rec.IsLowBattery(),
		Attributes:  rec.Attributes(),
		PublishedAt: now.UTC().Format(time.RFC3339),
	}
	if v, ok := rec.TankLevel(); ok {
		v = tankutility.Round1(v)
		s.Tank = &v
	}
	if v, ok := rec.Temperature(); ok {
		v = tankutility.Round1(v)
		s.Temperature = &v
	}
	if b, ok := rec.Battery(); ok {
		s.Battery = b.String()
	}
	return s
}

// OnRecord forwards one reading. Every publish is attempted; the returned
// error joins the failures.
func (f *Forwarder) OnRecord(_ context.Context, deviceID, name string, rec tankutility.Record) error {
	var errs []error

	for _, sensor := range tankutility.Sensors {
		value, ok := sensor.State(rec)
		if !ok {
			continue
		}
		topic := f.cfg.Topics.Sensor(deviceID, sensor.Topic)
		if err := f.publisher.Publish(topic, []byte(value), f.cfg.QoS, f.cfg.RetainValues); err != nil {
			errs = append(errs, fmt.Errorf("publishing %s: %w", topic, err))
		}
	}

	payload, err := json.Marshal(NewDeviceState(deviceID, name, rec, time.Now()))
	if err != nil {
		errs = append(errs, fmt.Errorf("encoding state for %s: %w", deviceID, err))
		return errors.Join(errs...)
	}
	topic := f.cfg.Topics.DeviceState(deviceID)
	if err := f.publisher.Publish(topic, payload, f.cfg.QoS, true); err != nil {
		errs = append(errs, fmt.Errorf("publishing %s: %w", topic, err))
	}

	return errors.Join(errs...)
}
