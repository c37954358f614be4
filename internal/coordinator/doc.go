// Package coordinator schedules poll cycles for Tank Utility devices and
// turns client results into per-device state.
//
// A Manager owns one API client for the account and one DeviceCoordinator per
// tank. Each coordinator runs at most one cycle at a time and keeps the last
// record it fetched successfully.
//
// # Cycle outcomes
//
//	Idle → Fetching → Published        → Idle
//	                → TransientFailed  → Idle
//	                → AuthFailed       (until Reauthenticate)
//
// An auth failure on any device pauses polling for the whole account and
// fires ManagerConfig.OnReauthRequired. Transient failures keep the last
// known record and are retried on the next tick.
//
// # Listeners
//
// Every successful record is handed to each Listener in order. Listener
// errors are logged and never change the outcome of the cycle.
//
// # Usage
//
//	mgr := coordinator.NewManager(coordinator.ManagerConfig{
//	    Client:          client,
//	    Devices:         devices,
//	    DefaultInterval: 6 * time.Hour,
//	    Listeners:       []coordinator.Listener{forwarder},
//	})
//	mgr.SetLogger(logger.With("component", "coordinator"))
//	if err := mgr.FirstRefresh(ctx); err != nil { ... }
//	mgr.Start(ctx)
//	defer mgr.Stop()
package coordinator
