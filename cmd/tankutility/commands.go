package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/tankutility-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tankutility-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/tankutility-bridge/internal/tankutility"
)

// deviceListing is the YAML printed by the devices command. It can be
// pasted into the config file as the devices section.
type deviceListing struct {
	Devices []config.DeviceConfig `yaml:"devices"`
}

// fetchOutput is the JSON printed by the fetch command.
type fetchOutput struct {
	DeviceID   string             `json:"device_id"`
	Name       string             `json:"name"`
	LowFuel    bool               `json:"low_fuel"`
	LowBattery bool               `json:"low_battery"`
	Record     tankutility.Record `json:"record"`
}

func newDevicesCmd(configPath *string) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the devices on the account",
		Long: `Lists every device on the Tank Utility account as a YAML devices
section, with the name each device reports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadForCommand(*configPath, quiet)
			if err != nil {
				return err
			}
			client := newAPIClient(cfg, log)

			ids, err := client.ListDevices(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing devices: %w", err)
			}

			listing := deviceListing{Devices: make([]config.DeviceConfig, 0, len(ids))}
			for _, id := range ids {
				// Names are best effort; a device that fails to load is still listed.
				var rec tankutility.Record
				if data, dataErr := client.DeviceData(cmd.Context(), id); dataErr == nil {
					rec = data
				} else {
					log.Warn("could not read device name", "device_id", id, "error", dataErr)
				}
				listing.Devices = append(listing.Devices, config.DeviceConfig{ID: id, Name: rec.Name(id)})
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(listing); err != nil {
				return fmt.Errorf("encoding devices: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress log output")
	return cmd
}

func newFetchCmd(configPath *string) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "fetch <device-id>",
		Short: "Print one device's latest reading as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadForCommand(*configPath, quiet)
			if err != nil {
				return err
			}

			id := args[0]
			rec, err := newAPIClient(cfg, log).DeviceData(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", id, err)
			}

			name := rec.Name(id)
			for _, d := range cfg.Devices {
				if d.ID == id && d.Name != "" {
					name = d.Name
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(fetchOutput{
				DeviceID:   id,
				Name:       name,
				LowFuel:    rec.IsLowFuel(),
				LowBattery: rec.IsLowBattery(),
				Record:     rec,
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress log output")
	return cmd
}

// loadForCommand loads the config for a one-shot command. Logs go to
// stderr so stdout carries only the command output.
func loadForCommand(configPath string, quiet bool) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if quiet {
		return cfg, logging.Discard(), nil
	}
	cfg.Logging.Output = "stderr"
	return cfg, logging.New(cfg.Logging, version), nil
}
