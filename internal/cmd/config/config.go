// Package config provides CLI commands for managing arbiter configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appconfig "github.com/Iron-Ham/arbiter/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify arbiter configuration",
	Long: `View or modify arbiter configuration.

Without arguments, displays the effective configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration as YAML",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  arbiter config set mediator.resource ir-remote
  arbiter config set mediator.access_pressure required
  arbiter config set bus.encoding cbor

The value is checked against the full configuration before it is saved.
Run 'arbiter config show' to see every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/arbiter/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var forceInit bool

func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// Register adds all config-related commands to the given parent command.
// This is the main entry point for integrating the config subpackage with
// the root command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "# Config file: (none - using defaults)\n")
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// Marshal renders cfg as YAML with durations and access levels in their
// readable forms.
func Marshal(cfg *appconfig.Config) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode configuration: %w", err)
	}
	humanize(&node, cfg)
	data, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("encode configuration: %w", err)
	}
	return data, nil
}

// humanize rewrites scalar fields that yaml.v3 would print as raw numbers.
func humanize(doc *yaml.Node, cfg *appconfig.Config) {
	readable := map[string]string{
		"mediator.access_pressure":  cfg.Mediator.AccessPressure.String(),
		"mediator.response_timeout": cfg.Mediator.ResponseTimeout.String(),
		"mediator.delegate_timeout": cfg.Mediator.DelegateTimeout.String(),
		"mediator.discovery_window": cfg.Mediator.DiscoveryWindow.String(),
		"mediator.reap_interval":    cfg.Mediator.ReapInterval.String(),
		"bus.poll_interval":         cfg.Bus.PollInterval.String(),
		"observer.poll_interval":    cfg.Observer.PollInterval.String(),
	}
	walk(doc, "", func(path string, n *yaml.Node) {
		if v, ok := readable[path]; ok {
			n.Kind = yaml.ScalarNode
			n.Tag = "!!str"
			n.Value = v
			n.Style = 0
		}
	})
}

func walk(n *yaml.Node, prefix string, fn func(string, *yaml.Node)) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			walk(c, prefix, fn)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			fn(key, n.Content[i+1])
			walk(n.Content[i+1], key, fn)
		}
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	value := args[1]

	if !isKnownKey(key) {
		return fmt.Errorf("unknown configuration key: %s\nRun 'arbiter config show' to see valid keys", key)
	}

	// Read the user's file on its own so values from env or flags are not
	// written back.
	configFile := appconfig.ConfigFile()
	file := viper.New()
	file.SetConfigFile(configFile)
	file.SetConfigType("yaml")
	if _, err := os.Stat(configFile); err == nil {
		if err := file.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	file.Set(key, parseScalar(value))

	// Validate the would-be result before saving it.
	check := viper.New()
	appconfig.SetDefaultsOn(check)
	if err := check.MergeConfigMap(file.AllSettings()); err != nil {
		return fmt.Errorf("failed to merge configuration: %w", err)
	}
	if _, err := appconfig.LoadFrom(check); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	if err := os.MkdirAll(appconfig.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := file.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %s\n", key, value)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

// parseScalar turns a command-line value into the YAML scalar it spells,
// so booleans and numbers are not saved as strings.
func parseScalar(value string) any {
	var typed any
	if err := yaml.Unmarshal([]byte(value), &typed); err != nil {
		return value
	}
	switch typed.(type) {
	case bool, int, float64:
		return typed
	}
	return value
}

// isKnownKey reports whether key names a leaf of the configuration.
func isKnownKey(key string) bool {
	defaults := viper.New()
	appconfig.SetDefaultsOn(defaults)
	if key == "mediator.broadcast_info" {
		return false
	}
	if strings.HasPrefix(key, "mediator.broadcast_info.") {
		return len(key) > len("mediator.broadcast_info.")
	}
	for _, k := range defaults.AllKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// defaultConfig is written by `config init`.
const defaultConfig = `# arbiter configuration
#
# Every key can be overridden with an ARBITER_ environment variable, e.g.
# ARBITER_MEDIATOR_ACCESS_PRESSURE=required.

# The process this host speaks for
mediator:
  # Resource identifier shared by all cooperating processes (e.g. ir-remote)
  resource: ""
  # Process to represent; 0 means the arbiter process itself
  pid: 0
  # Initial intent: none, shared or blocking
  preferred_access: none
  # How hard the resource is wanted: none, optional, partial, required or 0-100
  access_pressure: optional
  # Whether 'arbiter run' yields to peers: always, never or pressure
  yield_policy: always
  # Published to peers with every status update
  broadcast_info: {}
  # How long to wait for a peer's answer (0 waits forever)
  response_timeout: 10s
  # How long to wait for the host to apply a change (0 waits forever)
  delegate_timeout: 30s
  # Time given to peers to answer the discovery scan before negotiating
  discovery_window: 250ms
  # How often peers are checked for liveness (0 disables)
  reap_interval: 2s

# The host-local message bus
bus:
  # Shared directory; empty means $XDG_RUNTIME_DIR/arbiter
  dir: ""
  # Record encoding: json or cbor. Every process on a bus must agree.
  encoding: json
  # Re-read interval when file notifications are missed
  poll_interval: 250ms
  # Log size that triggers rotation
  max_log_bytes: 1048576

# Discovery of processes that do not speak the protocol
observer:
  enabled: true
  # sysfs class to watch: input, hidraw, sound, video4linux, ...
  device_class: input
  # Glob over device node names that count as clients (e.g. "event*")
  user_client_class: "*"
  poll_interval: 1s
  # Ignore read-only clients owned by system accounts
  ignore_system_daemons: true
  # Parallel /proc scanners
  workers: 8

# Debug logging
logging:
  enabled: true
  # Level: debug, info, warn, error
  level: info
  # Directory for arbiter.log; empty means $XDG_STATE_HOME/arbiter
  dir: ""
  max_size_mb: 10
  max_backups: 3
  compress: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := appconfig.ConfigDir()
	configFile := appconfig.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil && !forceInit {
		return fmt.Errorf("config file already exists at %s\nUse 'arbiter config set' to modify values or --force to overwrite", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize arbiter's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := appconfig.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(appconfig.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/arbiter/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: ARBITER_* (e.g., ARBITER_MEDIATOR_RESOURCE)")
	return nil
}
