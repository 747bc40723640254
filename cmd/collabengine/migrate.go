package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/BaSui01/collabengine/internal/migration"
	"github.com/spf13/cobra"
)

// migrateOptions migrate 子命令共享的连接参数
type migrateOptions struct {
	configPath string
	dbType     string
	dbURL      string
}

// openMigrator 测试中可替换
var openMigrator = func(opts migrateOptions) (migration.Migrator, error) {
	if opts.dbURL != "" {
		if opts.dbType == "" {
			return nil, fmt.Errorf("--db-type is required with --db-url")
		}
		return migration.NewMigratorFromURL(opts.dbType, opts.dbURL)
	}
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dbType != "" {
		cfg.Database.Driver = opts.dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

func newMigrateCmd() *cobra.Command {
	opts := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage record store schema migrations",
		Long: "Versioned migrations for the postgres and mysql record stores.\n" +
			"SQLite schemas are created by GORM auto-migration at startup.",
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.dbType, "db-type", "", "database type: postgres, mysql (default from config)")
	cmd.PersistentFlags().StringVar(&opts.dbURL, "db-url", "", "database URL (default built from config)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigration(cmd, opts, func(ctx context.Context, c *migration.CLI) error {
					return c.RunUp(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigration(cmd, opts, func(ctx context.Context, c *migration.CLI) error {
					return c.RunDown(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply (n > 0) or roll back (n < 0) n migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return runMigration(cmd, opts, func(ctx context.Context, c *migration.CLI) error {
					return c.RunSteps(ctx, n)
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the migration version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < -1 {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return runMigration(cmd, opts, func(ctx context.Context, c *migration.CLI) error {
					return c.RunForce(ctx, v)
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigration(cmd, opts, func(ctx context.Context, c *migration.CLI) error {
					return c.RunStatus(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current migration version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigration(cmd, opts, func(ctx context.Context, c *migration.CLI) error {
					return c.RunVersion(ctx)
				})
			},
		},
	)
	return cmd
}

func runMigration(cmd *cobra.Command, opts *migrateOptions, fn func(context.Context, *migration.CLI) error) error {
	m, err := openMigrator(*opts)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	cli.SetOutput(cmd.OutOrStdout())
	return fn(cmd.Context(), cli)
}
