// Package inspect provides read-only commands that report on a resource
// without competing for it.
package inspect

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/arbiter/internal/config"
	"github.com/Iron-Ham/arbiter/internal/tui"
)

// Register adds all inspection commands to the given parent command.
func Register(parent *cobra.Command) {
	RegisterUsersCmd(parent)
	RegisterDevicesCmd(parent)
	RegisterHistoryCmd(parent)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// styledOutput reports whether tables should carry borders and colors.
func styledOutput(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && tui.IsTerminal(f)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
