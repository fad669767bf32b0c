package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/arbiter/internal/cmd/config"
	"github.com/Iron-Ham/arbiter/internal/cmd/inspect"
	"github.com/Iron-Ham/arbiter/internal/cmd/mediate"
	appconfig "github.com/Iron-Ham/arbiter/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "arbiter",
	Short: "Leaderless arbitration of scarce host-local resources",
	Long: `Arbiter lets cooperating processes on one host negotiate access to a
scarce resource (an IR receiver, a capture device, a sound card) without a
central server. Each process runs a mediator that announces its status on a
shared bus, asks current holders to yield, and lends the resource back when
asked.

Processes that do not speak the protocol are discovered from the kernel's
view of open device nodes.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/arbiter/config.yaml)")
	flags.StringP("resource", "r", "", "resource identifier to arbitrate (e.g. ir-remote)")
	flags.String("bus-dir", "", "shared bus directory (default is $XDG_RUNTIME_DIR/arbiter)")
	flags.String("encoding", "", "bus record encoding: json or cbor")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("mediator.resource", flags.Lookup("resource"))
	_ = viper.BindPFlag("bus.dir", flags.Lookup("bus-dir"))
	_ = viper.BindPFlag("bus.encoding", flags.Lookup("encoding"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))

	config.Register(rootCmd)
	mediate.Register(rootCmd)
	inspect.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	appconfig.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appconfig.ConfigDir())
		viper.AddConfigPath("$HOME/.config/arbiter")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ARBITER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., ARBITER_MEDIATOR_ACCESS_PRESSURE for mediator.access_pressure
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
