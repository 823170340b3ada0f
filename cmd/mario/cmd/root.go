package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/mario/internal/core/config"
	"github.com/solatis/mario/internal/logging"
)

var (
	configFile string
	rulesPath  string
	verbosity  int
	logFormat  string
)

// ExitError carries a process exit status other than 1 up to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

var rootCmd = &cobra.Command{
	Use:   "mario",
	Short: "Rule-driven message plumber",
	Long: `mario routes a message (a URL, a piece of text or raw bytes) to the first
rule in the rules file whose match clauses accept it, then runs that rule's
actions: open a program, save or download a file, raise a notification.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetupLogger(verbosity, logFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/mario/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "rules file to load instead of the configured file and rules directory")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase verbosity (-v info, -vv debug, -vvv trace)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatConsole, "log format (console, json)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and applies the --rules override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if rulesPath != "" {
		cfg.RulesFile = rulesPath
		cfg.RulesDir = ""
	}
	return cfg, nil
}
