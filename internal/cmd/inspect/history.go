package inspect

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/arbiter/internal/bus"
	"github.com/Iron-Ham/arbiter/internal/host"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the recent messages exchanged about a resource",
	Long: `Print the messages retained in the resource's bus log, oldest first.
The log keeps the current file and one rotated generation.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "show at most this many messages (0 for all)")
}

// RegisterHistoryCmd registers the history command with the given parent command.
func RegisterHistoryCmd(parent *cobra.Command) {
	parent.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Mediator.Resource == "" {
		return errors.New("no resource given (use --resource or mediator.resource)")
	}
	logger, err := host.OpenLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	b, err := host.OpenBus(cfg.Bus, logger)
	if err != nil {
		return err
	}
	defer b.Close()
	return printHistory(cmd.OutOrStdout(), b, cfg.Mediator.Resource, historyLimit)
}

func printHistory(w io.Writer, b *bus.FileBus, resourceID string, limit int) error {
	msgs, err := b.History(resourceID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintf(w, "no messages for %s\n", resourceID)
		return nil
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	for _, m := range msgs {
		fmt.Fprintln(w, m.String())
	}
	return nil
}
