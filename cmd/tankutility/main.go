// Tank Utility bridge
//
// Polls the Tank Utility cloud API for propane tank readings and forwards
// them to MQTT and InfluxDB.
//
//	tankutility run                 # poll until interrupted
//	tankutility devices             # list the account's devices as YAML
//	tankutility fetch <device-id>   # print one reading as JSON
//
// Send SIGHUP to a running bridge after changing the credentials in the
// config file; it reloads them and resumes polling.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable holding the config path.
const configEnv = "TANKUTILITY_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "tankutility",
		Short: "Tank Utility propane monitor bridge",
		Long: `Polls the Tank Utility cloud API for propane tank fuel level,
temperature and battery readings, and forwards them to MQTT and InfluxDB.

Credentials come from the config file or the TANKUTILITY_EMAIL and
TANKUTILITY_PASSWORD environment variables.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("tankutility version {{.Version}}\n")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(),
		"path to config file (env "+configEnv+")")

	root.AddCommand(
		newRunCmd(&configPath),
		newDevicesCmd(&configPath),
		newFetchCmd(&configPath),
	)
	return root
}

// getConfigPath returns the configuration file path.
// Uses TANKUTILITY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
