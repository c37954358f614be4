package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentRefresh bounds how many devices fetch at once during
// FirstRefresh and RefreshAll.
const maxConcurrentRefresh = 4

// Client is the account-level API surface the manager needs.
// Satisfied by *tankutility.Client.
type Client interface {
	Fetcher
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// ManagerConfig holds configuration for a Manager.
type ManagerConfig struct {
	// Client is the shared API client for the account. Required.
	Client Client

	// Devices lists the tanks to poll.
	Devices []DeviceConfig

	// DefaultInterval applies to devices without their own interval.
	// Default: 6 hours.
	DefaultInterval time.Duration

	// Listeners receive every published record.
	Listeners []Listener

	// OnReauthRequired is called once each time polling pauses because
	// the credentials were rejected.
	OnReauthRequired func(deviceID string, err error)
}

// Manager owns the API client and one DeviceCoordinator per device.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Manager struct {
	clientMu sync.RWMutex
	client   Client

	devices          []*DeviceCoordinator
	onReauthRequired func(string, error)

	// paused is set after an auth failure until Reauthenticate succeeds.
	paused atomic.Bool

	// Shutdown coordination (stopOnce prevents double-close panics)
	startOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewManager creates a manager with one idle coordinator per device.
//
// Returns:
//   - *Manager: Ready to refresh (call Start to begin polling)
//   - error: ErrNoClient if cfg.Client is nil
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Client == nil {
		return nil, ErrNoClient
	}

	defaultInterval := cfg.DefaultInterval
	if defaultInterval <= 0 {
		defaultInterval = DefaultInterval
	}

	m := &Manager{
		client:           cfg.Client,
		onReauthRequired: cfg.OnReauthRequired,
		done:             make(chan struct{}),
	}

	for _, dc := range cfg.Devices {
		if dc.Interval <= 0 {
			dc.Interval = defaultInterval
		}
		m.devices = append(m.devices, NewDeviceCoordinator(dc, cfg.Client, cfg.Listeners, m.handleAuthFailure))
	}

	return m, nil
}

// SetLogger sets the logger for the manager and its coordinators.
func (m *Manager) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()

	for _, d := range m.devices {
		d.SetLogger(logger)
	}
}

// Device returns the coordinator for id.
func (m *Manager) Device(id string) (*DeviceCoordinator, bool) {
	for _, d := range m.devices {
		if d.ID() == id {
			return d, true
		}
	}
	return nil, false
}

// Paused reports whether polling is paused awaiting reauthentication.
func (m *Manager) Paused() bool {
	return m.paused.Load()
}

// FirstRefresh runs one cycle for every device before polling starts.
// It fails if any device fails; an auth failure matches ErrAuthFailed.
func (m *Manager) FirstRefresh(ctx context.Context) error {
	m.logInfo("running first refresh", "devices", len(m.devices))
	return m.RefreshAll(ctx)
}

// RefreshAll runs one cycle for every device concurrently and returns the
// joined errors of the devices that failed.
func (m *Manager) RefreshAll(ctx context.Context) error {
	errs := make([]error, len(m.devices))

	var g errgroup.Group
	g.SetLimit(maxConcurrentRefresh)
	for i, d := range m.devices {
		g.Go(func() error {
			errs[i] = d.Refresh(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Start launches one polling loop per device.
// Calling Start more than once has no effect. Call Stop to shut down.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		for _, d := range m.devices {
			m.wg.Add(1)
			go m.pollLoop(ctx, d)
		}
		m.logInfo("polling started", "devices", len(m.devices))
	})
}

// Stop stops all polling loops and waits for in-flight cycles to return.
// Safe to call multiple times (uses sync.Once).
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		m.logInfo("polling stopped")
	})
}

// Reauthenticate validates client with a token exchange, then makes it the
// account client, clears AuthFailed devices and resumes polling.
// On error the old client and the paused state are kept.
func (m *Manager) Reauthenticate(ctx context.Context, client Client) error {
	if client == nil {
		return ErrNoClient
	}
	if _, err := client.Token(ctx, true); err != nil {
		return fmt.Errorf("validating credentials: %w", err)
	}

	m.clientMu.Lock()
	m.client = client
	m.clientMu.Unlock()

	for _, d := range m.devices {
		d.Reset(client)
	}

	if m.paused.CompareAndSwap(true, false) {
		m.logInfo("credentials replaced, polling resumed")
	} else {
		m.logInfo("credentials replaced")
	}
	return nil
}

// Client returns the current account client.
func (m *Manager) Client() Client {
	m.clientMu.RLock()
	defer m.clientMu.RUnlock()
	return m.client
}

// Snapshot returns the status of every device in configuration order.
func (m *Manager) Snapshot() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d.Snapshot())
	}
	return out
}

// pollLoop runs one device's cycles on its interval.
func (m *Manager) pollLoop(ctx context.Context, d *DeviceCoordinator) {
	defer m.wg.Done()

	ticker := time.NewTicker(d.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			if m.paused.Load() {
				continue
			}
			err := d.Refresh(ctx)
			if errors.Is(err, ErrCycleInProgress) {
				m.logDebug("skipping tick, previous cycle still running", "device_id", d.ID())
			}
		}
	}
}

// handleAuthFailure pauses polling and signals the host once per pause.
func (m *Manager) handleAuthFailure(deviceID string, err error) {
	if !m.paused.CompareAndSwap(false, true) {
		return
	}
	m.logWarn("polling paused, new credentials required", "device_id", deviceID)
	if m.onReauthRequired != nil {
		m.onReauthRequired(deviceID, err)
	}
}

func (m *Manager) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

func (m *Manager) logDebug(msg string, args ...any) {
	if l := m.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (m *Manager) logInfo(msg string, args ...any) {
	if l := m.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (m *Manager) logWarn(msg string, args ...any) {
	if l := m.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}
