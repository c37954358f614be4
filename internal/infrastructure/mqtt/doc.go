// Package mqtt provides MQTT connectivity for the Tank Utility bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - The retained bridge status topic, with a Last Will for crashes
//   - Forwarding of tank readings (Forwarder)
//   - Refresh-request subscriptions, restored after reconnect
//
// # Topics
//
//	{prefix}/{device_id}/tank          plain value, e.g. "42.5"
//	{prefix}/{device_id}/temperature   plain value, e.g. "68"
//	{prefix}/{device_id}/battery       plain value, e.g. "good" or "87"
//	{prefix}/{device_id}/state         retained JSON DeviceState
//	{prefix}/{device_id}/refresh       inbound, any payload polls the device now
//	{prefix}/bridge/status             retained online/offline
//
// The prefix defaults to homeassistant/generac_tank_utility. Sensors whose
// field is missing from a reading are not published.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	fwd := mqtt.NewForwarder(client, mqtt.ForwarderConfig{
//	    Topics: client.Topics(),
//	    QoS:    byte(cfg.MQTT.QoS),
//	})
package mqtt
