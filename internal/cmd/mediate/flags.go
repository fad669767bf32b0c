package mediate

import (
	"context"
	"fmt"
	"maps"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Iron-Ham/arbiter/internal/config"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// hostFlags override the configured mediator for one invocation. A flag
// only takes effect when given on the command line.
type hostFlags struct {
	access   resource.Access
	pressure resource.Pressure
	yield    resource.YieldPolicy
	info     map[string]string
	pid      int
}

func (f *hostFlags) register(fs *pflag.FlagSet) {
	fs.VarP(&f.access, "access", "a", "preferred access: none, shared or blocking")
	fs.VarP(&f.pressure, "pressure", "p", "access pressure: none, optional, partial, required or 0-100")
	fs.Var(&f.yield, "yield", "yield to peers: always, never or pressure")
	fs.StringToStringVar(&f.info, "info", nil, "broadcast info published to peers (key=value,...)")
	fs.IntVar(&f.pid, "pid", 0, "process to speak for (default is this process)")
}

// apply copies the flags given on the command line over m.
func (f *hostFlags) apply(fs *pflag.FlagSet, m *config.MediatorConfig) error {
	if fs.Changed("access") {
		m.PreferredAccess = f.access
	}
	if fs.Changed("pressure") {
		m.AccessPressure = f.pressure
	}
	if fs.Changed("yield") {
		m.YieldPolicy = f.yield
	}
	if fs.Changed("info") {
		info := maps.Clone(m.BroadcastInfo)
		if info == nil {
			info = make(map[string]any, len(f.info))
		}
		for k, v := range f.info {
			info[k] = v
		}
		m.BroadcastInfo = info
	}
	if fs.Changed("pid") {
		if f.pid < 0 {
			return fmt.Errorf("--pid must not be negative, got %d", f.pid)
		}
		m.PID = f.pid
	}
	return nil
}

// loadConfig returns the effective configuration with the command's
// flags applied.
func loadConfig(cmd *cobra.Command, f *hostFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := f.apply(cmd.Flags(), &cfg.Mediator); err != nil {
		return nil, err
	}
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
