package mediate

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/arbiter/internal/host"
	"github.com/Iron-Ham/arbiter/internal/mediator"
	"github.com/Iron-Ham/arbiter/internal/resource"
	"github.com/Iron-Ham/arbiter/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Take part in arbitration with a live view",
	Long: `Join the arbitration of a resource and show its users and events live.

Keys change this process's intent while it runs:
  n/s/b  prefer none, shared or blocking access
  +/-    raise or lower the access pressure
  r      scan for peers again
  q      quit`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchFlags hostFlags

func init() {
	watchFlags.register(watchCmd.Flags())
}

// RegisterWatchCmd registers the watch command with the given parent command.
func RegisterWatchCmd(parent *cobra.Command) {
	parent.AddCommand(watchCmd)
}

// steering is the mediator as the watch view drives it. Pressure changes
// also move the delegate's yield threshold.
type steering struct {
	*mediator.Mediator
	delegate *host.PolicyDelegate
}

func (s steering) SetAccessPressure(p resource.Pressure) error {
	if err := s.Mediator.SetAccessPressure(p); err != nil {
		return err
	}
	s.delegate.SetPressure(p)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !tui.IsTerminal(os.Stdout) {
		return errors.New("watch needs a terminal; use 'arbiter run' to print events instead")
	}
	cfg, err := loadConfig(cmd, &watchFlags)
	if err != nil {
		return err
	}

	logger, err := host.OpenLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	delegate := host.NewPolicyDelegate(cfg.Mediator.YieldPolicy, cfg.Mediator.AccessPressure, logger, nil)
	h, err := host.New(cfg, delegate, host.WithLogger(logger))
	if err != nil {
		return err
	}
	defer h.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := h.Mediator.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return tui.Watch(ctx, steering{Mediator: h.Mediator, delegate: delegate}, h.Mediator.Events())
}
