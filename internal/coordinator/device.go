package coordinator

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tankutility-bridge/internal/tankutility"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 6 * time.Hour

// Fetcher retrieves one device's latest record.
// Satisfied by *tankutility.Client.
type Fetcher interface {
	DeviceData(ctx context.Context, deviceID string) (tankutility.Record, error)
}

// Logger is the logging interface used by the coordinator.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DeviceConfig identifies one tank to poll.
type DeviceConfig struct {
	ID string

	// Name overrides the name reported by the API.
	Name string

	// Interval is the time between cycles. Zero means the manager default.
	Interval time.Duration
}

// DeviceStatus is a point-in-time view of one coordinator.
type DeviceStatus struct {
	DeviceID string
	Name     string
	Interval time.Duration

	State       State
	LastOutcome State

	// Record is a copy of the last successfully fetched record, or nil.
	Record tankutility.Record

	LastError   error
	LastAttempt time.Time
	LastSuccess time.Time
}

// DeviceCoordinator runs poll cycles for a single device.
//
// Thread Safety:
//   - Refresh may be called from any goroutine; overlapping calls for the
//     same device return ErrCycleInProgress.
//   - Snapshot is safe to call while a cycle is running.
type DeviceCoordinator struct {
	id       string
	name     string
	interval time.Duration

	listeners     []Listener
	onAuthFailure func(deviceID string, err error)

	// cycleMu is held for the duration of a cycle.
	cycleMu sync.Mutex

	mu          sync.RWMutex
	fetcher     Fetcher
	fetcherGen  uint64
	state       State
	lastOutcome State
	record      tankutility.Record
	lastErr     error
	lastAttempt time.Time
	lastSuccess time.Time

	logger   Logger
	loggerMu sync.RWMutex
}

// NewDeviceCoordinator creates an idle coordinator for cfg.ID.
// onAuthFailure, if not nil, is called after a cycle ends in AuthFailed.
func NewDeviceCoordinator(cfg DeviceConfig, fetcher Fetcher, listeners []Listener, onAuthFailure func(string, error)) *DeviceCoordinator {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &DeviceCoordinator{
		id:            cfg.ID,
		name:          cfg.Name,
		interval:      interval,
		listeners:     listeners,
		onAuthFailure: onAuthFailure,
		fetcher:       fetcher,
		state:         StateIdle,
		lastOutcome:   StateIdle,
	}
}

// ID returns the device identifier.
func (d *DeviceCoordinator) ID() string {
	return d.id
}

// Interval returns the time between cycles.
func (d *DeviceCoordinator) Interval() time.Duration {
	return d.interval
}

// SetLogger sets the logger for this coordinator.
func (d *DeviceCoordinator) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

// Refresh runs one poll cycle.
//
// Returns nil when a record was published, ErrCycleInProgress when another
// cycle for this device is running, an error matching ErrAuthFailed when the
// credentials were rejected (or already were), or one matching
// ErrUpdateFailed for any other failure.
func (d *DeviceCoordinator) Refresh(ctx context.Context) error {
	if !d.cycleMu.TryLock() {
		return ErrCycleInProgress
	}
	defer d.cycleMu.Unlock()

	d.mu.Lock()
	if d.state == StateAuthFailed {
		cause := d.lastErr
		d.mu.Unlock()
		return fmt.Errorf("%w: device %s awaiting reauthentication: %w", ErrAuthFailed, d.id, cause)
	}
	fetcher, gen := d.fetcher, d.fetcherGen
	d.state = StateFetching
	d.lastAttempt = time.Now()
	d.mu.Unlock()

	cycleID := uuid.NewString()
	d.logDebug("poll cycle started", "device_id", d.id, "cycle_id", cycleID)

	rec, err := fetcher.DeviceData(ctx, d.id)
	if err != nil {
		return d.fail(cycleID, gen, err)
	}

	d.mu.Lock()
	d.state = StatePublished
	d.lastOutcome = StatePublished
	d.record = rec
	d.lastErr = nil
	d.lastSuccess = time.Now()
	d.mu.Unlock()

	name := d.displayName(rec)
	for _, l := range d.listeners {
		if lerr := l.OnRecord(ctx, d.id, name, rec); lerr != nil {
			d.logWarn("listener failed", "device_id", d.id, "cycle_id", cycleID, "error", lerr)
		}
	}

	d.setState(StateIdle)
	d.logDebug("poll cycle published", "device_id", d.id, "cycle_id", cycleID, "fields", len(rec))
	return nil
}

// fail records a failed cycle and returns the classified error. gen is
// the fetcher generation the cycle used; an auth failure from a fetcher
// that Reset has since replaced is transient, not a reason to pause.
func (d *DeviceCoordinator) fail(cycleID string, gen uint64, err error) error {
	d.mu.Lock()
	d.lastErr = err
	if tankutility.IsAuthFailure(err) && gen == d.fetcherGen {
		d.state = StateAuthFailed
		d.lastOutcome = StateAuthFailed
		d.mu.Unlock()

		d.logError("authentication failed, reauthentication required",
			"device_id", d.id, "cycle_id", cycleID, "error", err)
		if d.onAuthFailure != nil {
			d.onAuthFailure(d.id, err)
		}
		return fmt.Errorf("%w: device %s: %w", ErrAuthFailed, d.id, err)
	}

	d.state = StateIdle
	d.lastOutcome = StateTransientFailed
	d.mu.Unlock()

	d.logWarn("poll cycle failed, keeping last known data",
		"device_id", d.id, "cycle_id", cycleID, "error", err)
	return fmt.Errorf("%w: device %s: %w", ErrUpdateFailed, d.id, err)
}

// Reset replaces the fetcher and clears an AuthFailed state.
// The last known record is kept.
func (d *DeviceCoordinator) Reset(fetcher Fetcher) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fetcher = fetcher
	d.fetcherGen++
	if d.state == StateAuthFailed {
		d.state = StateIdle
		d.lastErr = nil
	}
}

// Snapshot returns the coordinator's current status.
func (d *DeviceCoordinator) Snapshot() DeviceStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DeviceStatus{
		DeviceID:    d.id,
		Name:        d.displayName(d.record),
		Interval:    d.interval,
		State:       d.state,
		LastOutcome: d.lastOutcome,
		Record:      maps.Clone(d.record),
		LastError:   d.lastErr,
		LastAttempt: d.lastAttempt,
		LastSuccess: d.lastSuccess,
	}
}

// displayName prefers the configured name, then the API's name, then the
// "Tank <id>" default.
func (d *DeviceCoordinator) displayName(rec tankutility.Record) string {
	if d.name != "" {
		return d.name
	}
	return rec.Name(d.id)
}

func (d *DeviceCoordinator) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *DeviceCoordinator) getLogger() Logger {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	return d.logger
}

func (d *DeviceCoordinator) logDebug(msg string, args ...any) {
	if l := d.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (d *DeviceCoordinator) logWarn(msg string, args ...any) {
	if l := d.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (d *DeviceCoordinator) logError(msg string, args ...any) {
	if l := d.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}
