package mqtt

import "strings"

// DefaultTopicPrefix is the root of every topic the bridge publishes.
const DefaultTopicPrefix = "homeassistant/generac_tank_utility"

// Topic segments below {prefix}/{device_id}.
const (
	segmentState   = "state"
	segmentRefresh = "refresh"
	segmentBridge  = "bridge"
	segmentStatus  = "status"
)

// Topics builds the bridge's MQTT topics under a prefix.
//
//	topics := mqtt.Topics{Prefix: "homeassistant/generac_tank_utility"}
//	topics.Sensor("abc123", "tank")
//	// Returns: "homeassistant/generac_tank_utility/abc123/tank"
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.TrimRight(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Sensor returns the plain-value topic for one sensor of a device.
//
// Example: homeassistant/generac_tank_utility/abc123/temperature
func (t Topics) Sensor(deviceID, sensor string) string {
	return t.prefix() + "/" + deviceID + "/" + sensor
}

// DeviceState returns the retained JSON state topic for a device.
//
// Example: homeassistant/generac_tank_utility/abc123/state
func (t Topics) DeviceState(deviceID string) string {
	return t.Sensor(deviceID, segmentState)
}

// DeviceRefresh returns the topic that requests an immediate poll of a device.
//
// Example: homeassistant/generac_tank_utility/abc123/refresh
func (t Topics) DeviceRefresh(deviceID string) string {
	return t.Sensor(deviceID, segmentRefresh)
}

// AllDeviceRefresh matches refresh requests for every device.
//
// Pattern: homeassistant/generac_tank_utility/+/refresh
func (t Topics) AllDeviceRefresh() string {
	return t.prefix() + "/+/" + segmentRefresh
}

// BridgeStatus returns the retained online/offline topic, also used as LWT.
//
// Example: homeassistant/generac_tank_utility/bridge/status
func (t Topics) BridgeStatus() string {
	return t.prefix() + "/" + segmentBridge + "/" + segmentStatus
}

// DeviceIDFromTopic extracts the device id from a {prefix}/{id}/{segment}
// topic. It reports false for topics outside the prefix or with the wrong
// depth.
func (t Topics) DeviceIDFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/")
	if !ok {
		return "", false
	}
	id, segment, ok := strings.Cut(rest, "/")
	if !ok || id == "" || segment == "" || strings.Contains(segment, "/") {
		return "", false
	}
	if id == segmentBridge {
		return "", false
	}
	return id, true
}
