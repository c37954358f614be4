package tankutility

import (
	"context"
	"net/http"
)

// ListDevices returns the device identifiers registered to the account.
//
// Used to validate credentials, so a 401 is surfaced as ErrInvalidAuth
// without a refresh-and-retry. A response without a devices field yields
// an empty slice.
func (c *Client) ListDevices(ctx context.Context) ([]string, error) {
	token, err := c.Token(ctx, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, opDevices, c.devicesURL(token), false)
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		c.logFailure(opDevices, resp)
		return nil, authError(opDevices)
	default:
		c.logFailure(opDevices, resp)
		return nil, statusError(opDevices, resp.status)
	}

	var payload struct {
		Devices []string `json:"devices"`
	}
	if err := c.decode(opDevices, resp.body, &payload); err != nil {
		return nil, err
	}
	if payload.Devices == nil {
		payload.Devices = []string{}
	}

	c.log().Debug("device list", "devices", payload.Devices)
	return payload.Devices, nil
}

// DeviceData returns the latest reading for one device as a flat Record.
//
// A 401 response drops the token, forces a refresh, and re-sends the request
// once with the new token. A second 401 is ErrInvalidAuth. Any other non-200
// status, an undecodable body, or a transport failure is an *APIError.
// A Record is either complete or not returned at all.
func (c *Client) DeviceData(ctx context.Context, deviceID string) (Record, error) {
	if deviceID == "" {
		return nil, &APIError{Op: opDeviceData, Message: "device id is required"}
	}

	token, gen, err := c.currentToken(ctx, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, opDeviceData, c.deviceURL(deviceID, token), false)
	if err != nil {
		return nil, err
	}

	if resp.status == http.StatusUnauthorized {
		c.log().Warn("token expired, refreshing token", "device_id", deviceID)
		c.invalidateToken(gen)

		token, _, err = c.refreshToken(ctx, gen, true)
		if err != nil {
			return nil, err
		}

		resp, err = c.get(ctx, opDeviceData, c.deviceURL(deviceID, token), false)
		if err != nil {
			return nil, err
		}
	}

	switch resp.status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		c.logFailure(opDeviceData, resp, "device_id", deviceID)
		return nil, authError(opDeviceData)
	default:
		c.logFailure(opDeviceData, resp, "device_id", deviceID)
		return nil, statusError(opDeviceData, resp.status)
	}

	var raw map[string]any
	if err := c.decode(opDeviceData, resp.body, &raw); err != nil {
		return nil, err
	}

	rec := flatten(raw)
	c.log().Debug("fetched device data", "device_id", deviceID, "fields", len(rec))
	return rec, nil
}

// flatten merges the "device" object with its "lastReading" object.
// lastReading fields win on key collision; lastReading itself is dropped.
// Either object missing or of the wrong shape counts as empty.
func flatten(raw map[string]any) Record {
	device, _ := raw["device"].(map[string]any)
	lastReading, _ := device["lastReading"].(map[string]any)

	rec := make(Record, len(device)+len(lastReading))
	for k, v := range device {
		if k == fieldLastReading {
			continue
		}
		rec[k] = v
	}
	for k, v := range lastReading {
		rec[k] = v
	}
	return rec
}
