package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/songifi/LMS-Backend-sub004/cli/config"
	"github.com/songifi/LMS-Backend-sub004/cli/styles"
	"github.com/songifi/LMS-Backend-sub004/cli/ui"
)

func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and inspect the configuration",
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand(c))
	cmd.AddCommand(newConfigValidateCommand(c))

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		driver string
		url    string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Write a commented academic.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if config.Exists(dir) && !force {
				return fmt.Errorf("%s already exists in %s, pass --force to overwrite", config.ConfigFileName, dir)
			}

			cfg := config.DefaultConfig()
			switch driver {
			case "":
			case config.DriverPostgres:
				cfg.Database.Driver = driver
				cfg.Database.URL = "${DATABASE_URL}"
			case config.DriverSQLite, config.DriverMemory:
				cfg.Database.Driver = driver
			default:
				return fmt.Errorf("unsupported database driver: %s", driver)
			}
			if url != "" {
				cfg.Database.URL = url
			}

			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			path := filepath.Join(dir, config.ConfigFileName)
			if err := os.WriteFile(path, []byte(config.GenerateYAML(cfg)), 0644); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess("Wrote "+path))
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "Event store driver: postgres, sqlite or memory")
	cmd.Flags().StringVar(&url, "url", "", "Database URL or sqlite file path")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.ReadModels.RedisPassword != "" {
				cfg.ReadModels.RedisPassword = "********"
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for mistakes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			problems := cfg.Validate()
			if len(problems) == 0 {
				fmt.Fprintln(out, styles.FormatSuccess("Configuration is valid"))
				return nil
			}
			fmt.Fprintln(out, styles.FormatError(fmt.Sprintf("%d problem(s) found", len(problems))))
			fmt.Fprint(out, ui.ListItems(problems))
			return fmt.Errorf("invalid configuration")
		},
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Banner())

			table := ui.NewTable("", "")
			table.AddRow("Version", version)
			table.AddRow("Commit", commit)
			table.AddRow("Built", date)
			table.AddRow("Go", runtime.Version())
			table.AddRow("OS/Arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))

			fmt.Fprintln(out, table.Render())
			return nil
		},
	}
}
