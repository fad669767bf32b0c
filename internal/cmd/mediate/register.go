// Package mediate provides the commands that take part in arbitration:
// run, which logs events until interrupted, and watch, which shows them live.
package mediate

import "github.com/spf13/cobra"

// Register adds all mediation commands to the given parent command.
func Register(parent *cobra.Command) {
	RegisterRunCmd(parent)
	RegisterWatchCmd(parent)
}
