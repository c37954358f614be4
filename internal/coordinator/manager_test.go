package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tankutility-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/tankutility-bridge/internal/tankutility"
)

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.SetLogger(logging.Discard())
	t.Cleanup(m.Stop)
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewManager_RequiresClient(t *testing.T) {
	if _, err := NewManager(ManagerConfig{}); !errors.Is(err, ErrNoClient) {
		t.Errorf("NewManager() error = %v, want ErrNoClient", err)
	}
}

func TestManager_Intervals(t *testing.T) {
	m := newTestManager(t, ManagerConfig{
		Client:          newFakeClient(),
		DefaultInterval: 30 * time.Minute,
		Devices: []DeviceConfig{
			{ID: "dev-a"},
			{ID: "dev-b", Interval: 2 * time.Hour},
		},
	})

	a, _ := m.Device("dev-a")
	b, _ := m.Device("dev-b")
	if a.Interval() != 30*time.Minute {
		t.Errorf("dev-a interval = %v, want 30m", a.Interval())
	}
	if b.Interval() != 2*time.Hour {
		t.Errorf("dev-b interval = %v, want 2h", b.Interval())
	}
	if _, ok := m.Device("missing"); ok {
		t.Error("Device(missing) ok = true")
	}
}

func TestManager_FirstRefresh(t *testing.T) {
	client := newFakeClient()
	client.queue("dev-a", fakeResult{rec: tankutility.Record{tankutility.FieldTank: 10.0}})
	client.queue("dev-b", fakeResult{rec: tankutility.Record{tankutility.FieldTank: 90.0}})
	listener := &recordingListener{}

	m := newTestManager(t, ManagerConfig{
		Client:    client,
		Devices:   []DeviceConfig{{ID: "dev-a"}, {ID: "dev-b"}},
		Listeners: []Listener{listener},
	})

	if err := m.FirstRefresh(context.Background()); err != nil {
		t.Fatalf("FirstRefresh() error = %v", err)
	}
	if listener.count() != 2 {
		t.Errorf("published records = %d, want 2", listener.count())
	}

	snap := m.Snapshot()
	if len(snap) != 2 || snap[0].DeviceID != "dev-a" || snap[1].DeviceID != "dev-b" {
		t.Fatalf("Snapshot() order = %+v, want dev-a, dev-b", snap)
	}
	if level, _ := snap[1].Record.TankLevel(); level != 90 {
		t.Errorf("dev-b tank = %v, want 90", level)
	}
}

func TestManager_FirstRefreshFailsIfAnyDeviceFails(t *testing.T) {
	client := newFakeClient()
	client.queue("dev-b", fakeResult{err: apiErr(500)})

	m := newTestManager(t, ManagerConfig{
		Client:  client,
		Devices: []DeviceConfig{{ID: "dev-a"}, {ID: "dev-b"}, {ID: "dev-c"}},
	})

	err := m.FirstRefresh(context.Background())
	if !errors.Is(err, ErrUpdateFailed) {
		t.Fatalf("FirstRefresh() error = %v, want ErrUpdateFailed", err)
	}
	if errors.Is(err, ErrAuthFailed) {
		t.Error("transient failure reported as auth failure")
	}

	// The healthy devices still published.
	for _, id := range []string{"dev-a", "dev-c"} {
		d, _ := m.Device(id)
		if got := d.Snapshot().LastOutcome; got != StatePublished {
			t.Errorf("%s LastOutcome = %s, want published", id, got)
		}
	}
}

func TestManager_AuthFailurePausesAndReauthenticateResumes(t *testing.T) {
	client := newFakeClient()
	client.queue("dev-a", fakeResult{err: authErr()})
	client.queue("dev-b", fakeResult{err: authErr()})

	var mu sync.Mutex
	var reauthCalls int
	m := newTestManager(t, ManagerConfig{
		Client:  client,
		Devices: []DeviceConfig{{ID: "dev-a"}, {ID: "dev-b"}},
		OnReauthRequired: func(string, error) {
			mu.Lock()
			reauthCalls++
			mu.Unlock()
		},
	})
	ctx := context.Background()

	err := m.FirstRefresh(ctx)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("FirstRefresh() error = %v, want ErrAuthFailed", err)
	}
	if !m.Paused() {
		t.Error("Paused() = false after auth failure")
	}
	mu.Lock()
	if reauthCalls != 1 {
		t.Errorf("OnReauthRequired calls = %d, want 1", reauthCalls)
	}
	mu.Unlock()

	// Rejected replacement keeps everything paused.
	rejected := newFakeClient()
	rejected.tokenErr = tankutility.ErrInvalidAuth
	if err := m.Reauthenticate(ctx, rejected); !errors.Is(err, tankutility.ErrInvalidAuth) {
		t.Fatalf("Reauthenticate(rejected) error = %v, want ErrInvalidAuth", err)
	}
	if !m.Paused() {
		t.Error("Paused() = false after rejected reauthentication")
	}
	if m.Client() != Client(client) {
		t.Error("client replaced despite rejected credentials")
	}

	good := newFakeClient()
	if err := m.Reauthenticate(ctx, good); err != nil {
		t.Fatalf("Reauthenticate() error = %v", err)
	}
	if m.Paused() {
		t.Error("Paused() = true after reauthentication")
	}
	if got := good.tokenCalls.Load(); got != 1 {
		t.Errorf("validation token calls = %d, want 1", got)
	}
	for _, s := range m.Snapshot() {
		if s.State != StateIdle {
			t.Errorf("%s State = %s, want idle", s.DeviceID, s.State)
		}
	}

	if err := m.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if good.callCount("dev-a") != 1 || good.callCount("dev-b") != 1 {
		t.Error("devices did not poll through the new client")
	}
}

func TestManager_PollLoop(t *testing.T) {
	client := newFakeClient()
	listener := &recordingListener{}
	m := newTestManager(t, ManagerConfig{
		Client:          client,
		Devices:         []DeviceConfig{{ID: "dev-a"}, {ID: "dev-b", Interval: time.Hour}},
		DefaultInterval: 10 * time.Millisecond,
		Listeners:       []Listener{listener},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Start(ctx)

	waitFor(t, "three dev-a cycles", func() bool { return client.callCount("dev-a") >= 3 })
	if got := client.callCount("dev-b"); got != 0 {
		t.Errorf("dev-b polled %d times, want 0 within its hourly interval", got)
	}

	m.Stop()
	m.Stop()

	after := client.callCount("dev-a")
	time.Sleep(50 * time.Millisecond)
	if got := client.callCount("dev-a"); got != after {
		t.Errorf("polling continued after Stop: %d -> %d", after, got)
	}
}

func TestManager_PollLoopSkipsWhilePaused(t *testing.T) {
	client := newFakeClient()
	client.queue("dev-a", fakeResult{err: authErr()}, fakeResult{rec: tankutility.Record{}})
	m := newTestManager(t, ManagerConfig{
		Client:          client,
		Devices:         []DeviceConfig{{ID: "dev-a"}, {ID: "dev-b"}},
		DefaultInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	waitFor(t, "pause after auth failure", m.Paused)
	bCalls := client.callCount("dev-b")
	time.Sleep(60 * time.Millisecond)

	if got := client.callCount("dev-a"); got != 1 {
		t.Errorf("dev-a fetches = %d, want 1", got)
	}
	// dev-b may have been mid-cycle when the pause landed, but no more.
	if got := client.callCount("dev-b"); got > bCalls+1 {
		t.Errorf("dev-b kept polling while paused: %d -> %d", bCalls, got)
	}

	if err := m.Reauthenticate(ctx, client); err != nil {
		t.Fatalf("Reauthenticate() error = %v", err)
	}
	waitFor(t, "dev-a to resume", func() bool { return client.callCount("dev-a") >= 2 })
}

func TestManager_StopOnContextCancel(t *testing.T) {
	m := newTestManager(t, ManagerConfig{
		Client:          newFakeClient(),
		Devices:         []DeviceConfig{{ID: "dev-a"}},
		DefaultInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after context cancellation")
	}
}
