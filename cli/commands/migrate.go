package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/songifi/LMS-Backend-sub004/adapters"
	"github.com/songifi/LMS-Backend-sub004/cli/config"
	"github.com/songifi/LMS-Backend-sub004/cli/styles"
	"github.com/songifi/LMS-Backend-sub004/cli/ui"
)

func newMigrateCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the event store schema",
		Long: `Create and inspect the event store schema.

Examples:
  academic migrate up       # Create or upgrade the schema
  academic migrate status   # Show the applied schema version`,
	}

	cmd.AddCommand(newMigrateUpCommand(c))
	cmd.AddCommand(newMigrateStatusCommand(c))

	return cmd
}

// withMigrator opens the configured store and hands it to fn, unless the
// driver keeps no schema.
func (c *cli) withMigrator(cmd *cobra.Command, fn func(cfg *config.Config, m adapters.Migrator) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.Database.Driver == config.DriverMemory {
		fmt.Fprintln(out, styles.FormatInfo("Memory driver doesn't require migrations"))
		return nil
	}

	adapter, err := openAdapter(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer adapter.Close()

	migrator, ok := adapter.(adapters.Migrator)
	if !ok {
		return fmt.Errorf("%s driver does not support migrations", cfg.Database.Driver)
	}
	return fn(cfg, migrator)
}

func newMigrateUpCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create or upgrade the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withMigrator(cmd, func(cfg *config.Config, m adapters.Migrator) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				before, err := m.MigrationVersion(ctx)
				if err != nil {
					return err
				}

				if err := runWithSpinner(cmd, "Applying schema...", func() error {
					return m.Migrate(ctx)
				}); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}

				after, err := m.MigrationVersion(ctx)
				if err != nil {
					return err
				}

				if after == before {
					fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("Schema is up to date (version %d)", after)))
					return nil
				}
				fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("Schema migrated from version %d to %d", before, after)))
				return nil
			})
		},
	}
}

func newMigrateStatusCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withMigrator(cmd, func(cfg *config.Config, m adapters.Migrator) error {
				version, err := m.MigrationVersion(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, styles.FormatKeyValue("Driver", cfg.Database.Driver))
				if cfg.Database.Driver == config.DriverPostgres {
					fmt.Fprintln(out, styles.FormatKeyValue("Schema", cfg.Database.Schema))
				}

				status := "applied"
				if version == 0 {
					status = "pending"
				}
				fmt.Fprintln(out, styles.FormatKeyValue("Version", fmt.Sprintf("%d", version))+" "+ui.StatusBadge(status))
				return nil
			})
		},
	}
}

// runWithSpinner runs fn, showing a spinner while it works when stdout is
// a terminal.
func runWithSpinner(cmd *cobra.Command, message string, fn func() error) error {
	if !isTerminal(cmd.OutOrStdout()) {
		return fn()
	}

	p := tea.NewProgram(ui.NewSpinner(message), tea.WithOutput(cmd.OutOrStdout()))
	done := make(chan error, 1)
	go func() {
		err := fn()
		result := "Done"
		if err != nil {
			result = "Failed"
		}
		p.Send(ui.SpinnerDoneMsg{Result: result, Err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	return <-done
}
