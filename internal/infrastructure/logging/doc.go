// Package logging provides the bridge's structured logger.
//
// Logger wraps log/slog. Every record carries service=tankutility and the
// build version; components add their own name with With:
//
//	log := logging.New(cfg.Logging, version)
//	apiLog := log.With("component", "tankutility")
//	apiLog.Info("token refreshed")
//
// The logging section of the config file picks the level (debug, info,
// warn, error), format (json or text) and destination (stdout or stderr).
// One-shot commands log to stderr so their stdout stays machine-readable.
//
// Attributes named password, token, influxdb_token or authorization are
// written as [REDACTED] regardless of what the caller passed. Callers
// should still not pass them.
package logging
