package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GoCodeAlone/amd"
)

// OsExit is swapped out by tests.
var OsExit = os.Exit

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("amdload v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewRootCommand creates the amdload command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amdload",
		Short: "amdload - run and serve asynchronous module definitions",
		Long: `amdload loads module documents the way an AMD loader loads scripts.
It boots a main module from a bootstrap document, serves module documents
over HTTP, and shows how identifiers map to URLs.`,
		Version:      Version,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.SetVersionTemplate(PrintVersion() + "\n")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Log module transitions to stderr")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewURLCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// newLogger builds the zap logger behind the loader: debug level when
// verbose, warnings only otherwise.
func newLogger(cmd *cobra.Command) (*amd.ZapLogger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return amd.NewZapLogger(logger), nil
}
