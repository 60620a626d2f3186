// Package commands implements the academic CLI.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/songifi/LMS-Backend-sub004/cli/config"
	"github.com/songifi/LMS-Backend-sub004/cli/styles"
	"github.com/songifi/LMS-Backend-sub004/cli/ui"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// runtimeOpener returns a runtime for the loaded configuration and the
// function that releases it.
type runtimeOpener func(ctx context.Context, cfg *config.Config) (*Runtime, func(), error)

func openRuntime(ctx context.Context, cfg *config.Config) (*Runtime, func(), error) {
	rt, err := OpenRuntime(ctx, cfg, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return rt, func() { _ = rt.Close() }, nil
}

// cli holds what the subcommands share.
type cli struct {
	configPath string
	open       runtimeOpener
}

// loadConfig resolves the configuration from --config or the working directory.
func (c *cli) loadConfig() (*config.Config, error) {
	if c.configPath != "" {
		cfg, err := config.LoadFile(c.configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.ApplyEnv(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, _, err := config.Resolve(cwd)
	return cfg, err
}

// runtime loads the configuration and opens a runtime with it.
func (c *cli) runtime(ctx context.Context) (*Runtime, func(), error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return c.open(ctx, cfg)
}

// NewRootCommand creates the root command for the academic CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(openRuntime)
}

func newRootCommand(open runtimeOpener) *cobra.Command {
	var noColor bool
	c := &cli{open: open}

	rootCmd := &cobra.Command{
		Use:   "academic",
		Short: "Event-sourced student academic records",
		Long: ui.Banner() + `

Records grades, enrollments and degree progress as an append-only event
log, reconstructs any student's record as of a version or a date, and
keeps rebuildable read models up to date.

` + styles.Title.Render("Quick Start:") + `

  academic migrate up                              Create the event store schema
  academic record grade s-1 CS101 A --points 4 \
      --semester 2024-FALL --by prof-1             Record a grade
  academic record show s-1 --at 2024-12-31         Show a record as of a date
  academic projection rebuild --all                Rebuild every read model

Configuration is read from academic.yaml and ACADEMIC_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				styles.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to the config file (default: academic.yaml, searched upward)")

	rootCmd.AddCommand(newMigrateCommand(c))
	rootCmd.AddCommand(newRecordCommand(c))
	rootCmd.AddCommand(newProjectionCommand(c))
	rootCmd.AddCommand(newConfigCommand(c))
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.FormatError(err.Error()))
		return err
	}
	return nil
}
