package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"snaprestore.io/snaprestore-cli/internal/config"
	"snaprestore.io/snaprestore-cli/internal/logger"
)

var (
	verbose    bool
	logFormat  string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "snaprestore",
	Short: "Restore search indices from cluster snapshots",
	Long: `snaprestore restores a single index from a snapshot repository into a
search cluster and follows the restore until every shard has recovered.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		format := logFormat
		if !cmd.Flags().Changed("log-format") {
			if cfg, err := config.Load(configPath); err == nil && cfg.CLI.LogFormat != "" {
				format = cfg.CLI.LogFormat
			}
		}
		logger.Init(level, format)
	},
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the root command. Cancelling ctx stops long-running commands.
// Commands that silence cobra's error output still get argument and flag
// errors printed; an *ExitError has already been reported by its command.
func Execute(ctx context.Context) error {
	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if cmd.SilenceErrors && !errors.As(err, &exitErr) {
		cmd.PrintErrln("Error:", err)
		cmd.PrintErrf("Run '%s --help' for usage.\n", cmd.CommandPath())
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json (default cli.log_format)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.snaprestore/config.yaml, or $SNAPRESTORE_CONFIG)")
}
