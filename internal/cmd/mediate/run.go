package mediate

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/arbiter/internal/config"
	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/event"
	"github.com/Iron-Ham/arbiter/internal/host"
	"github.com/Iron-Ham/arbiter/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Take part in arbitration until interrupted",
	Long: `Join the arbitration of a resource and print every event until
interrupted.

The process holds no device itself. It asks peers for the preferred access,
and answers their requests according to the yield policy:

  always    yield to every request
  never     refuse every request
  pressure  yield to peers whose pressure is at least our own

Examples:
  arbiter run -r ir-remote --access blocking --pressure required
  arbiter run -r ir-remote --access shared --yield pressure --info room=den`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runFlags hostFlags

func init() {
	runFlags.register(runCmd.Flags())
}

// RegisterRunCmd registers the run command with the given parent command.
func RegisterRunCmd(parent *cobra.Command) {
	parent.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, &runFlags)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cmd.OutOrStdout(), cfg)
}

// lockedWriter serializes event lines written from the mediator's loop and
// the command itself.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

// serve runs an active mediator for cfg until ctx ends, describing every
// event on out.
func serve(ctx context.Context, out io.Writer, cfg *config.Config, opts ...host.Option) error {
	logger, err := host.OpenLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	w := &lockedWriter{w: out}
	delegate := host.NewPolicyDelegate(cfg.Mediator.YieldPolicy, cfg.Mediator.AccessPressure, logger, nil)
	h, err := host.New(cfg, delegate, append([]host.Option{host.WithLogger(logger)}, opts...)...)
	if err != nil {
		return err
	}
	defer h.Close()

	med := h.Mediator
	id := med.Events().SubscribeAll(func(e event.Event) {
		w.printf("%s\n", eventLine(e))
	})
	defer med.Events().Unsubscribe(id)

	w.printf("Arbitrating %s as pid %d on %s (yield %s)\n",
		cfg.Mediator.Resource, med.PID(), h.Bus.Dir(), cfg.Mediator.YieldPolicy)
	if err := med.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	<-ctx.Done()
	snap := med.Snapshot()
	if err := med.Deactivate(); err != nil {
		logger.Warn("deactivate failed", "error", err)
	}
	w.printf("Left %s holding %s\n", cfg.Mediator.Resource, snap.ActualAccess)
	return nil
}

// eventLine formats e for the event stream. Warnings and worse are tagged
// with their severity.
func eventLine(e event.Event) string {
	line := e.Timestamp().Format("15:04:05") + "  "
	if sev := tui.EventSeverity(e); sev >= errors.SeverityWarning {
		line += sev.String() + ": "
	}
	return line + tui.DescribeEvent(e)
}
