package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/tankutility-bridge/internal/coordinator"
	"github.com/nerrad567/tankutility-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tankutility-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/tankutility-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/tankutility-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/tankutility-bridge/internal/tankutility"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll tanks until interrupted",
		Long: `Runs the bridge: polls every configured tank on its interval and
forwards each reading. With no devices configured, every device on the
account is polled.

SIGHUP reloads the account credentials from the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath)
		},
	}
}

// run is the bridge daemon, separated from the command for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Tank Utility bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	client := newAPIClient(cfg, log)

	var listeners []coordinator.Listener

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		if cfg.MQTT.Forward.Enabled {
			listeners = append(listeners, mqtt.NewForwarder(mqttClient, mqtt.ForwarderConfig{
				Topics:       mqttClient.Topics(),
				QoS:          byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
				RetainValues: cfg.MQTT.Forward.Retain,
			}))
			log.Info("MQTT forwarding enabled", "topic_prefix", cfg.MQTT.Forward.TopicPrefix)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		listeners = append(listeners, influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	devices, err := resolveDevices(ctx, cfg, client)
	if err != nil {
		return err
	}
	log.Info("tracking devices", "count", len(devices))

	// polling is set once the loops start; before that an auth failure
	// ends run instead of waiting for SIGHUP.
	var polling atomic.Bool

	mgr, err := coordinator.NewManager(coordinator.ManagerConfig{
		Client:          client,
		Devices:         devices,
		DefaultInterval: cfg.GetPollInterval(),
		Listeners:       listeners,
		OnReauthRequired: reauthRequired(log, &polling),
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	mgr.SetLogger(log.With("component", "coordinator"))

	if err := mgr.FirstRefresh(ctx); err != nil {
		if errors.Is(err, coordinator.ErrAuthFailed) {
			return fmt.Errorf("first refresh: %w", err)
		}
		log.Warn("first refresh incomplete, will retry on schedule", "error", err)
	}

	if mqttClient != nil {
		if err := subscribeRefresh(ctx, mqttClient, mgr, log); err != nil {
			return fmt.Errorf("subscribing to refresh requests: %w", err)
		}
	}

	polling.Store(true)
	mgr.Start(ctx)
	defer mgr.Stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	log.Info("initialisation complete, waiting for shutdown signal")

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, cleaning up")
			// Deferred calls run in reverse order: polling, InfluxDB, MQTT.
			return nil
		case <-hup:
			cfg = reload(ctx, configPath, cfg, mgr, log)
		}
	}
}

// reauthRequired logs rejected credentials. The SIGHUP hint is only given
// once polling runs; at startup run returns the error instead.
func reauthRequired(log *logging.Logger, polling *atomic.Bool) func(deviceID string, err error) {
	return func(deviceID string, err error) {
		if !polling.Load() {
			log.Error("Tank Utility rejected the account credentials", "device_id", deviceID, "error", err)
			return
		}
		log.Error("Tank Utility rejected the account credentials; update the config and send SIGHUP",
			"device_id", deviceID,
			"error", err,
		)
	}
}

// newAPIClient builds the Tank Utility client for the configured account.
func newAPIClient(cfg *config.Config, log *logging.Logger) *tankutility.Client {
	client := tankutility.New(tankutility.Config{
		BaseURL: cfg.Account.BaseURL,
		Credentials: tankutility.Credentials{
			Email:    cfg.Account.Email,
			Password: cfg.Account.Password,
		},
		Timeout: cfg.GetRequestTimeout(),
	})
	client.SetLogger(log.With("component", "tankutility"))
	return client
}

// resolveDevices returns the configured devices, or every device on the
// account when none are configured.
func resolveDevices(ctx context.Context, cfg *config.Config, client *tankutility.Client) ([]coordinator.DeviceConfig, error) {
	if len(cfg.Devices) > 0 {
		devices := make([]coordinator.DeviceConfig, 0, len(cfg.Devices))
		for _, d := range cfg.Devices {
			devices = append(devices, coordinator.DeviceConfig{
				ID:       d.ID,
				Name:     d.Name,
				Interval: cfg.DeviceInterval(d),
			})
		}
		return devices, nil
	}

	ids, err := client.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	if len(ids) == 0 {
		return nil, errors.New("no devices found on the account")
	}

	devices := make([]coordinator.DeviceConfig, 0, len(ids))
	for _, id := range ids {
		devices = append(devices, coordinator.DeviceConfig{ID: id, Interval: cfg.GetPollInterval()})
	}
	return devices, nil
}

// subscribeRefresh polls a device immediately when anything is published
// to its refresh topic.
func subscribeRefresh(ctx context.Context, client *mqtt.Client, mgr *coordinator.Manager, log *logging.Logger) error {
	topics := client.Topics()
	return client.Subscribe(topics.AllDeviceRefresh(), 1, func(topic string, _ []byte) error {
		id, ok := topics.DeviceIDFromTopic(topic)
		if !ok {
			return fmt.Errorf("unexpected refresh topic %q", topic)
		}
		device, ok := mgr.Device(id)
		if !ok {
			return fmt.Errorf("refresh requested for unknown device %q", id)
		}
		if mgr.Paused() {
			log.Warn("refresh ignored, awaiting reauthentication", "device_id", id)
			return nil
		}

		// Paho handlers must not block the router for a full API round trip.
		go func() {
			if err := device.Refresh(ctx); err != nil && !errors.Is(err, coordinator.ErrCycleInProgress) {
				log.Warn("requested refresh failed", "device_id", id, "error", err)
			}
		}()
		return nil
	})
}

// reload re-reads the config file and swaps in the new credentials.
// Everything other than the account section needs a restart.
// Returns the config to compare the next reload against: the reloaded one
// on success, otherwise current. A changed device list is reported once.
func reload(ctx context.Context, configPath string, current *config.Config, mgr *coordinator.Manager, log *logging.Logger) *config.Config {
	log.Info("SIGHUP received, reloading credentials", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("reload failed, keeping current credentials", "error", err)
		return current
	}
	if !slices.Equal(cfg.Devices, current.Devices) {
		log.Warn("device list changed; restart the bridge to apply it")
	}

	wasPaused := mgr.Paused()
	if err := mgr.Reauthenticate(ctx, newAPIClient(cfg, log)); err != nil {
		log.Error("reauthentication failed", "email", cfg.Account.Email, "error", err)
		return current
	}

	if wasPaused {
		if err := mgr.RefreshAll(ctx); err != nil {
			log.Warn("refresh after reauthentication incomplete", "error", err)
		}
	}
	return cfg
}
