package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/arbiter/internal/bus"
	"github.com/Iron-Ham/arbiter/internal/logging"
	"github.com/Iron-Ham/arbiter/internal/mediator"
	"github.com/Iron-Ham/arbiter/internal/message"
	"github.com/Iron-Ham/arbiter/internal/observer"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Config represents the complete arbiter configuration
type Config struct {
	Mediator MediatorConfig `mapstructure:"mediator" yaml:"mediator"`
	Bus      BusConfig      `mapstructure:"bus" yaml:"bus"`
	Observer ObserverConfig `mapstructure:"observer" yaml:"observer"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// MediatorConfig describes the process this host speaks for
type MediatorConfig struct {
	// Resource identifies the arbitrated resource on the bus (e.g. "ir-remote")
	Resource string `mapstructure:"resource" yaml:"resource"`
	// PID is the process the mediator represents. 0 means the arbiter process itself.
	PID int `mapstructure:"pid" yaml:"pid"`
	// PreferredAccess is the initial intent: "none", "shared" or "blocking"
	PreferredAccess resource.Access `mapstructure:"preferred_access" yaml:"preferred_access"`
	// AccessPressure accepts none, optional, partial, required or an integer 0-100
	AccessPressure resource.Pressure `mapstructure:"access_pressure" yaml:"access_pressure"`
	// YieldPolicy decides whether `arbiter run` yields to peers: always, never or pressure
	YieldPolicy resource.YieldPolicy `mapstructure:"yield_policy" yaml:"yield_policy"`
	// BroadcastInfo is published to peers with every STATUS
	BroadcastInfo map[string]any `mapstructure:"broadcast_info" yaml:"broadcast_info,omitempty"`

	// ResponseTimeout bounds the wait for an ACCESS_RESPONSE (0 = forever)
	ResponseTimeout time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
	// DelegateTimeout bounds the wait for the host to apply a change (0 = forever)
	DelegateTimeout time.Duration `mapstructure:"delegate_timeout" yaml:"delegate_timeout"`
	// DiscoveryWindow delays the first negotiation after activation
	DiscoveryWindow time.Duration `mapstructure:"discovery_window" yaml:"discovery_window"`
	// ReapInterval is how often peers are probed for liveness (0 = never)
	ReapInterval time.Duration `mapstructure:"reap_interval" yaml:"reap_interval"`
}

// BusConfig controls the host-local message bus
type BusConfig struct {
	// Dir is shared by every participating process. Empty means
	// $XDG_RUNTIME_DIR/arbiter, or a per-user directory under the system temp dir.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Encoding is the record format: "json" or "cbor"
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
	// PollInterval bounds delivery latency when file notifications are missed
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// MaxLogBytes is the bus log size that triggers rotation
	MaxLogBytes int64 `mapstructure:"max_log_bytes" yaml:"max_log_bytes"`
}

// ObserverConfig controls the kernel resource observer
type ObserverConfig struct {
	// Enabled turns on tracking of processes that do not speak the protocol
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// DeviceClass is the sysfs class to watch (e.g. "input", "hidraw", "sound")
	DeviceClass string `mapstructure:"device_class" yaml:"device_class"`
	// UserClientClass is a glob over device node base names that count as clients
	UserClientClass string `mapstructure:"user_client_class" yaml:"user_client_class"`
	// PollInterval is the rescan period between change notifications
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// IgnoreSystemDaemons drops read-only clients owned by system accounts
	IgnoreSystemDaemons bool `mapstructure:"ignore_system_daemons" yaml:"ignore_system_daemons"`
	// Workers bounds the parallel scan of process file descriptors
	Workers int `mapstructure:"workers" yaml:"workers"`

	SysfsRoot string `mapstructure:"sysfs_root" yaml:"sysfs_root"`
	ProcRoot  string `mapstructure:"proc_root" yaml:"proc_root"`
	DevRoot   string `mapstructure:"dev_root" yaml:"dev_root"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logs are written (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir holds arbiter.log. Empty means $XDG_STATE_HOME/arbiter or ~/.local/state/arbiter.
	// Supports ~ for home directory expansion.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated log files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Mediator: MediatorConfig{
			Resource:        "",
			PID:             0, // The arbiter process itself
			PreferredAccess: resource.AccessNone,
			AccessPressure:  resource.DefaultPressure,
			YieldPolicy:     resource.YieldAlways,
			ResponseTimeout: mediator.DefaultResponseTimeout,
			DelegateTimeout: mediator.DefaultDelegateTimeout,
			DiscoveryWindow: mediator.DefaultDiscoveryWindow,
			ReapInterval:    mediator.DefaultReapInterval,
		},
		Bus: BusConfig{
			Dir:          "", // Empty means use the runtime directory
			Encoding:     message.EncodingJSON,
			PollInterval: bus.DefaultPollInterval,
			MaxLogBytes:  bus.DefaultMaxLogBytes,
		},
		Observer: ObserverConfig{
			Enabled:             true,
			DeviceClass:         "input",
			UserClientClass:     observer.DefaultNodeGlob,
			PollInterval:        observer.DefaultPollInterval,
			IgnoreSystemDaemons: true,
			Workers:             observer.DefaultWorkers,
			SysfsRoot:           observer.DefaultSysfsRoot,
			ProcRoot:            observer.DefaultProcRoot,
			DevRoot:             observer.DefaultDevRoot,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Mediator defaults
	v.SetDefault("mediator.resource", defaults.Mediator.Resource)
	v.SetDefault("mediator.pid", defaults.Mediator.PID)
	v.SetDefault("mediator.preferred_access", defaults.Mediator.PreferredAccess.String())
	v.SetDefault("mediator.access_pressure", int(defaults.Mediator.AccessPressure))
	v.SetDefault("mediator.yield_policy", string(defaults.Mediator.YieldPolicy))
	v.SetDefault("mediator.broadcast_info", map[string]any{})
	v.SetDefault("mediator.response_timeout", defaults.Mediator.ResponseTimeout)
	v.SetDefault("mediator.delegate_timeout", defaults.Mediator.DelegateTimeout)
	v.SetDefault("mediator.discovery_window", defaults.Mediator.DiscoveryWindow)
	v.SetDefault("mediator.reap_interval", defaults.Mediator.ReapInterval)

	// Bus defaults
	v.SetDefault("bus.dir", defaults.Bus.Dir)
	v.SetDefault("bus.encoding", defaults.Bus.Encoding)
	v.SetDefault("bus.poll_interval", defaults.Bus.PollInterval)
	v.SetDefault("bus.max_log_bytes", defaults.Bus.MaxLogBytes)

	// Observer defaults
	v.SetDefault("observer.enabled", defaults.Observer.Enabled)
	v.SetDefault("observer.device_class", defaults.Observer.DeviceClass)
	v.SetDefault("observer.user_client_class", defaults.Observer.UserClientClass)
	v.SetDefault("observer.poll_interval", defaults.Observer.PollInterval)
	v.SetDefault("observer.ignore_system_daemons", defaults.Observer.IgnoreSystemDaemons)
	v.SetDefault("observer.workers", defaults.Observer.Workers)
	v.SetDefault("observer.sysfs_root", defaults.Observer.SysfsRoot)
	v.SetDefault("observer.proc_root", defaults.Observer.ProcRoot)
	v.SetDefault("observer.dev_root", defaults.Observer.DevRoot)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
}

// DecodeHook converts the string forms found in config files, flags and
// environment variables into the typed fields of Config.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		stringToPressureHook(),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

var pressureType = reflect.TypeOf(resource.Pressure(0))

func stringToPressureHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != pressureType {
			return data, nil
		}
		return resource.ParsePressure(data.(string))
	}
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates the configuration held by v
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "arbiter")
	}
	// Fall back to ~/.config/arbiter
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arbiter"
	}
	return filepath.Join(home, ".config", "arbiter")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ResolveDir returns the bus directory. Every process that arbitrates the
// same resources must resolve to the same path.
func (b *BusConfig) ResolveDir() string {
	if b.Dir != "" {
		return expandHome(b.Dir)
	}
	if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
		return filepath.Join(rt, "arbiter")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("arbiter-%d", os.Getuid()))
}

// ResolveDir returns the directory holding the log files.
func (l *LoggingConfig) ResolveDir() string {
	if l.Dir != "" {
		return expandHome(l.Dir)
	}
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "arbiter")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "arbiter-logs")
	}
	return filepath.Join(home, ".local", "state", "arbiter")
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// Rotation returns the log rotation settings.
func (l *LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
	}
}
