package inspect

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/arbiter/internal/config"
	"github.com/Iron-Ham/arbiter/internal/host"
	"github.com/Iron-Ham/arbiter/internal/mediator"
	"github.com/Iron-Ham/arbiter/internal/resource"
	"github.com/Iron-Ham/arbiter/internal/tui"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the processes using a resource",
	Long: `Join the resource's bus without wanting it, collect the answers to a
scan for a short while, and list every user found. Processes that do not
speak the protocol are included when kernel observation is enabled.`,
	Args: cobra.NoArgs,
	RunE: runUsers,
}

var (
	usersWait   time.Duration
	usersOutput string
)

func init() {
	usersCmd.Flags().DurationVarP(&usersWait, "wait", "w", 500*time.Millisecond, "how long to collect answers")
	usersCmd.Flags().StringVarP(&usersOutput, "output", "o", "table", "output format: table or yaml")
}

// RegisterUsersCmd registers the users command with the given parent command.
func RegisterUsersCmd(parent *cobra.Command) {
	parent.AddCommand(usersCmd)
}

func runUsers(cmd *cobra.Command, args []string) error {
	if usersOutput != "table" && usersOutput != "yaml" {
		return fmt.Errorf("unknown output format %q (want table or yaml)", usersOutput)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	users, err := collectUsers(commandContext(cmd), cfg, usersWait)
	if err != nil {
		return err
	}
	return printUsers(cmd.OutOrStdout(), users, usersOutput, styledOutput(cmd))
}

// collectUsers joins the bus as a bystander for wait and returns the
// users it learned of.
func collectUsers(ctx context.Context, cfg *config.Config, wait time.Duration, opts ...host.Option) ([]*resource.User, error) {
	cfg.Mediator.PreferredAccess = resource.AccessNone
	cfg.Mediator.AccessPressure = resource.PressureNone
	// A bystander never holds anything, so it has nothing to give up.
	bystander := mediator.DelegateFunc(func(_ resource.Access, _ *resource.User, done func(resource.Result)) {
		done(resource.ResultSuccess)
	})

	h, err := host.New(cfg, bystander, opts...)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	if err := h.Mediator.Activate(ctx); err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return h.Mediator.Users(), nil
}

// userRecord is the yaml form of a user.
type userRecord struct {
	PID       int             `yaml:"pid"`
	Process   string          `yaml:"process"`
	Protocol  bool            `yaml:"protocol"`
	Access    resource.Access `yaml:"access"`
	Pressure  string          `yaml:"pressure"`
	Info      map[string]any  `yaml:"info,omitempty"`
	FirstSeen time.Time       `yaml:"first_seen"`
}

func printUsers(w io.Writer, users []*resource.User, format string, styled bool) error {
	if format == "table" {
		// The bystander is not among the users, so no row is marked.
		_, err := io.WriteString(w, tui.UsersTable(users, 0, styled))
		return err
	}
	records := make([]userRecord, 0, len(users))
	for _, u := range users {
		records = append(records, userRecord{
			PID:       u.PID,
			Process:   u.Process.DisplayName(),
			Protocol:  u.UsingProtocol,
			Access:    u.ActualAccess,
			Pressure:  u.AccessPressure.String(),
			Info:      u.BroadcastInfo,
			FirstSeen: u.FirstSeen,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	return enc.Close()
}
