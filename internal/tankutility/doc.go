// Package tankutility is a client for the Tank Utility cloud API, which
// reports propane tank telemetry from Generac Tank Utility monitors.
//
// This package manages:
//   - Bearer token acquisition via HTTP basic-auth credential exchange
//   - Token caching with serialised refresh (one request per refresh,
//     however many goroutines ask for it)
//   - Device listing and per-device reading retrieval
//   - Transparent re-authentication: a 401 on a device read forces a
//     token refresh and the read is retried exactly once
//   - Defensive JSON decoding that ignores the Content-Type header and
//     falls back to cleaning up the raw text before giving up
//
// # Error Taxonomy
//
// Every failure is one of two classes, checked with errors.Is:
//
//	ErrInvalidAuth: credentials rejected, or the token stayed invalid
//	                after a refresh. Needs user action.
//	ErrAPI:         non-auth HTTP status, undecodable body, or a
//	                transport failure. Transient; retry next cycle.
//
// ErrAPI failures are *APIError values carrying the operation and HTTP
// status (zero for transport and decode failures).
//
// # Wire Format
//
//	GET {base}/getToken                  (basic auth) → {"token": "..."}
//	GET {base}/devices?token={token}                  → {"devices": ["..."]}
//	GET {base}/devices/{id}?token={token}             → {"device": {..., "lastReading": {...}}}
//
// # Usage
//
//	client := tankutility.New(tankutility.Config{
//	    Credentials: tankutility.Credentials{Email: email, Password: password},
//	})
//	rec, err := client.DeviceData(ctx, deviceID)
//	switch {
//	case errors.Is(err, tankutility.ErrInvalidAuth):
//	    // prompt for new credentials
//	case err != nil:
//	    // keep last known data, retry later
//	default:
//	    level, ok := rec.TankLevel()
//	}
package tankutility
