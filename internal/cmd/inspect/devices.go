package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/arbiter/internal/host"
	"github.com/Iron-Ham/arbiter/internal/observer"
	"github.com/Iron-Ham/arbiter/internal/tui"
	"github.com/Iron-Ham/arbiter/internal/tui/styles"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Show observed devices and the processes that have them open",
	Long: `Scan the configured device class once and show each device together with
the processes holding its nodes open, as the kernel observer sees them.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

// RegisterDevicesCmd registers the devices command with the given parent command.
func RegisterDevicesCmd(parent *cobra.Command) {
	parent.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Observer.Enabled {
		return errors.New("kernel observation is disabled (observer.enabled is false)")
	}
	logger, err := host.OpenLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	obs := host.NewObserver(cfg.Observer, os.Getpid(), logger)
	return printDevices(commandContext(cmd), cmd.OutOrStdout(), obs, cfg.Observer.DeviceClass, styledOutput(cmd))
}

func printDevices(ctx context.Context, w io.Writer, obs *observer.Observer, class string, styled bool) error {
	if _, err := obs.Scan(ctx); err != nil {
		return fmt.Errorf("scan %s devices: %w", class, err)
	}
	heading := func(s string) string {
		if styled {
			return styles.Subtitle.Render(s)
		}
		return s
	}
	fmt.Fprintln(w, heading(fmt.Sprintf("Devices (%s)", class)))
	fmt.Fprint(w, tui.DevicesTable(obs.Devices(), styled))
	fmt.Fprintln(w)
	fmt.Fprintln(w, heading("Processes"))
	fmt.Fprint(w, tui.ObservationsTable(obs.Observations(), styled))
	return nil
}
