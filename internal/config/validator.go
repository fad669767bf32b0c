package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/arbiter/internal/message"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "mediator.access_pressure")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// resourceIDRegex validates resource identifiers. They travel in every bus
// record, so whitespace and separators are rejected.
var resourceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._:-]*$`)

// deviceClassRegex matches sysfs class directory names
var deviceClassRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Mediator config
	errors = append(errors, c.validateMediator()...)

	// Validate Bus config
	errors = append(errors, c.validateBus()...)

	// Validate Observer config
	errors = append(errors, c.validateObserver()...)

	// Validate Logging config
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateMediator validates the MediatorConfig
func (c *Config) validateMediator() []ValidationError {
	var errors []ValidationError
	m := c.Mediator

	// Resource may be left empty and given on the command line
	if m.Resource != "" && !resourceIDRegex.MatchString(m.Resource) {
		errors = append(errors, ValidationError{
			Field:   "mediator.resource",
			Value:   m.Resource,
			Message: "must start with a letter or digit and contain only letters, digits, '.', '_', ':' or '-'",
		})
	}

	if m.PID < 0 {
		errors = append(errors, ValidationError{
			Field:   "mediator.pid",
			Value:   m.PID,
			Message: "must be non-negative (0 means the arbiter process)",
		})
	}

	if m.PreferredAccess == resource.AccessUnknown || m.PreferredAccess > resource.AccessBlocking {
		errors = append(errors, ValidationError{
			Field:   "mediator.preferred_access",
			Value:   m.PreferredAccess,
			Message: "must be one of: none, shared, blocking",
		})
	}

	if m.AccessPressure < resource.PressureNone || m.AccessPressure > resource.PressureRequired {
		errors = append(errors, ValidationError{
			Field:   "mediator.access_pressure",
			Value:   int(m.AccessPressure),
			Message: "must be between 0 and 100",
		})
	}

	if m.YieldPolicy != "" && !slices.Contains(resource.YieldPolicies(), string(m.YieldPolicy)) {
		errors = append(errors, ValidationError{
			Field:   "mediator.yield_policy",
			Value:   m.YieldPolicy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(resource.YieldPolicies(), ", ")),
		})
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"mediator.response_timeout", m.ResponseTimeout},
		{"mediator.delegate_timeout", m.DelegateTimeout},
		{"mediator.discovery_window", m.DiscoveryWindow},
		{"mediator.reap_interval", m.ReapInterval},
	}
	for _, d := range durations {
		if d.value < 0 {
			errors = append(errors, ValidationError{
				Field:   d.field,
				Value:   d.value,
				Message: "must be non-negative (0 disables)",
			})
		}
	}

	// The discovery window should never outlast a peer's patience
	if m.ResponseTimeout > 0 && m.DiscoveryWindow > m.ResponseTimeout {
		errors = append(errors, ValidationError{
			Field:   "mediator.discovery_window",
			Value:   m.DiscoveryWindow,
			Message: fmt.Sprintf("must not exceed mediator.response_timeout (%s)", m.ResponseTimeout),
		})
	}

	return errors
}

// validateBus validates the BusConfig
func (c *Config) validateBus() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(message.Encodings(), c.Bus.Encoding) {
		errors = append(errors, ValidationError{
			Field:   "bus.encoding",
			Value:   c.Bus.Encoding,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(message.Encodings(), ", ")),
		})
	}

	if c.Bus.PollInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "bus.poll_interval",
			Value:   c.Bus.PollInterval,
			Message: "must be positive",
		})
	}

	// Rotation below a few records would rotate on every publish
	const minLogBytes = 4096
	if c.Bus.MaxLogBytes < minLogBytes {
		errors = append(errors, ValidationError{
			Field:   "bus.max_log_bytes",
			Value:   c.Bus.MaxLogBytes,
			Message: fmt.Sprintf("must be at least %d", minLogBytes),
		})
	}

	errors = append(errors, validatePath("bus.dir", c.Bus.Dir)...)

	return errors
}

// validateObserver validates the ObserverConfig
func (c *Config) validateObserver() []ValidationError {
	var errors []ValidationError
	o := c.Observer

	// A disabled observer keeps whatever it was given
	if !o.Enabled {
		return nil
	}

	if !deviceClassRegex.MatchString(o.DeviceClass) {
		errors = append(errors, ValidationError{
			Field:   "observer.device_class",
			Value:   o.DeviceClass,
			Message: "must be a sysfs class name (lowercase letters, digits, '_')",
		})
	}

	if o.UserClientClass == "" {
		errors = append(errors, ValidationError{
			Field:   "observer.user_client_class",
			Value:   o.UserClientClass,
			Message: "must not be empty (use \"*\" to match every node)",
		})
	} else if _, err := filepath.Match(o.UserClientClass, ""); err != nil {
		errors = append(errors, ValidationError{
			Field:   "observer.user_client_class",
			Value:   o.UserClientClass,
			Message: fmt.Sprintf("invalid glob: %v", err),
		})
	}

	if o.PollInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "observer.poll_interval",
			Value:   o.PollInterval,
			Message: "must be positive",
		})
	}

	const maxWorkers = 64
	if o.Workers < 1 || o.Workers > maxWorkers {
		errors = append(errors, ValidationError{
			Field:   "observer.workers",
			Value:   o.Workers,
			Message: fmt.Sprintf("must be between 1 and %d", maxWorkers),
		})
	}

	for _, root := range []struct{ field, value string }{
		{"observer.sysfs_root", o.SysfsRoot},
		{"observer.proc_root", o.ProcRoot},
		{"observer.dev_root", o.DevRoot},
	} {
		if root.value == "" {
			errors = append(errors, ValidationError{
				Field:   root.field,
				Value:   root.value,
				Message: "must not be empty",
			})
			continue
		}
		errors = append(errors, validatePath(root.field, root.value)...)
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be non-negative; 0 disables rotation
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	errors = append(errors, validatePath("logging.dir", c.Logging.Dir)...)

	return errors
}

// validatePath rejects paths no filesystem would accept. Empty paths are
// left to the caller.
func validatePath(field, path string) []ValidationError {
	var errors []ValidationError

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	// Reasonable path length limit (most filesystems have limits around 4096)
	const maxPathLength = 4096
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}
