// Package host assembles a mediator and its collaborators from a
// configuration, the way every arbiter command needs them.
package host

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/arbiter/internal/bus"
	"github.com/Iron-Ham/arbiter/internal/config"
	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/logging"
	"github.com/Iron-Ham/arbiter/internal/mediator"
	"github.com/Iron-Ham/arbiter/internal/message"
	"github.com/Iron-Ham/arbiter/internal/observer"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Host owns a mediator together with the bus, observer and logger it was
// built with. Close releases all of them.
type Host struct {
	Logger   *logging.Logger
	Bus      *bus.FileBus
	Observer *observer.Observer
	Mediator *mediator.Mediator

	ownLogger bool
}

// Option adjusts how a Host is assembled.
type Option func(*options)

type options struct {
	logger   *logging.Logger
	observer bool
	extra    []mediator.Option
}

// WithLogger uses l instead of opening the configured log file. The Host
// does not close it.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithoutObserver skips kernel observation even when the config enables it.
func WithoutObserver() Option {
	return func(o *options) { o.observer = false }
}

// WithMediatorOptions passes extra options to mediator.New.
func WithMediatorOptions(opts ...mediator.Option) Option {
	return func(o *options) { o.extra = append(o.extra, opts...) }
}

// New builds an inactive mediator for cfg.Mediator on the configured bus.
func New(cfg *config.Config, d mediator.Delegate, opts ...Option) (*Host, error) {
	o := options{observer: true}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Mediator.Resource == "" {
		return nil, errors.NewValidationError("no resource given (use --resource or mediator.resource)").
			WithField("mediator.resource")
	}

	h := &Host{Logger: o.logger}
	if h.Logger == nil {
		l, err := OpenLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
		h.Logger = l
		h.ownLogger = true
	}

	b, err := OpenBus(cfg.Bus, h.Logger)
	if err != nil {
		_ = h.closeLogger()
		return nil, err
	}
	h.Bus = b

	m := cfg.Mediator
	mopts := []mediator.Option{mediator.WithLogger(h.Logger)}
	if o.observer && cfg.Observer.Enabled {
		// The observer must skip the pid the mediator speaks for.
		h.Observer = NewObserver(cfg.Observer, effectivePID(m.PID), h.Logger)
		mopts = append(mopts, mediator.WithObserver(h.Observer))
	}
	mopts = append(mopts, o.extra...)

	med, err := mediator.New(mediator.Config{
		ResourceID:      m.Resource,
		PID:             m.PID,
		PreferredAccess: m.PreferredAccess,
		AccessPressure:  m.AccessPressure,
		BroadcastInfo:   m.BroadcastInfo,
		ResponseTimeout: m.ResponseTimeout,
		DelegateTimeout: m.DelegateTimeout,
		DiscoveryWindow: m.DiscoveryWindow,
		ReapInterval:    m.ReapInterval,
	}, b, d, mopts...)
	if err != nil {
		_ = b.Close()
		_ = h.closeLogger()
		return nil, err
	}
	// A zero pressure in mediator.Config means the default, so an explicit
	// "none" has to be set afterwards.
	if m.AccessPressure == resource.PressureNone {
		if err := med.SetAccessPressure(resource.PressureNone); err != nil {
			_ = med.Close()
			_ = b.Close()
			_ = h.closeLogger()
			return nil, err
		}
	}
	h.Mediator = med

	h.Logger.WithResource(m.Resource).Info("host assembled",
		"pid", med.PID(),
		"bus_dir", b.Dir(),
		"encoding", b.Codec().Name(),
		"observer", h.Observer != nil,
	)
	return h, nil
}

// Close deactivates the mediator and releases the bus and, when the Host
// opened it, the logger.
func (h *Host) Close() error {
	var errs []error
	if h.Mediator != nil {
		errs = append(errs, h.Mediator.Close())
	}
	if h.Bus != nil {
		errs = append(errs, h.Bus.Close())
	}
	errs = append(errs, h.closeLogger())
	return errors.Join(errs...)
}

func (h *Host) closeLogger() error {
	if !h.ownLogger || h.Logger == nil {
		return nil
	}
	return h.Logger.Close()
}

// OpenLogger returns the configured logger. Disabled logging yields a
// logger that discards everything.
func OpenLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	if !cfg.Enabled {
		return logging.NopLogger(), nil
	}
	l, err := logging.NewLoggerWithRotation(cfg.ResolveDir(), logging.ParseLevel(cfg.Level), cfg.Rotation())
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return l, nil
}

// OpenBus opens the shared bus directory with the configured encoding.
func OpenBus(cfg config.BusConfig, logger *logging.Logger) (*bus.FileBus, error) {
	codec, err := message.CodecFor(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	return bus.NewFileBus(cfg.ResolveDir(),
		bus.WithCodec(codec),
		bus.WithPollInterval(cfg.PollInterval),
		bus.WithMaxLogBytes(cfg.MaxLogBytes),
		bus.WithLogger(logger),
	)
}

// NewObserver builds a kernel observer on the live Linux filesystems named
// in cfg. Processes other than ownPID are reported.
func NewObserver(cfg config.ObserverConfig, ownPID int, logger *logging.Logger) *observer.Observer {
	reg := observer.NewLinuxRegistry(observer.LinuxConfig{
		SysfsRoot: cfg.SysfsRoot,
		ProcRoot:  cfg.ProcRoot,
		DevRoot:   cfg.DevRoot,
		NodeGlob:  cfg.UserClientClass,
		Workers:   cfg.Workers,
	}, logger)
	return NewObserverFor(reg, cfg, ownPID, logger)
}

// NewObserverFor is NewObserver over an arbitrary registry.
func NewObserverFor(reg observer.Registry, cfg config.ObserverConfig, ownPID int, logger *logging.Logger) *observer.Observer {
	var hooks observer.Hooks
	if cfg.IgnoreSystemDaemons {
		hooks.TrackClient = observer.ExcludeSharedSystemDaemons
	}
	return observer.New(reg, observer.Config{
		DeviceClass:  cfg.DeviceClass,
		PollInterval: cfg.PollInterval,
		OwnPID:       ownPID,
		Hooks:        hooks,
	}, observer.WithLogger(logger))
}

func effectivePID(pid int) int {
	if pid == 0 {
		return os.Getpid()
	}
	return pid
}
