package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/docket/internal/config"
	"github.com/zulandar/docket/internal/db"
)

func newDBCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd(g))
	return cmd
}

func newDBInitCmd(g *globals) *cobra.Command {
	var reset, yes bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Docket database",
		Long: `Creates the database when the driver is mysql, migrates all tables and
seeds users, groups and projects from the config file.

Seeding is idempotent: running init again updates existing definitions.
With --reset every table is dropped first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, g, reset, yes)
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "drop all tables before migrating")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt for --reset")
	return cmd
}

func runDBInit(cmd *cobra.Command, g *globals, reset, yes bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s\n", g.configPath)

	if cfg.Database.Driver == "mysql" && cfg.Database.DSN == "" {
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return err
		}
		if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready on %s:%d\n", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port)
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}

	if reset {
		if !yes && !confirm(cmd, "Drop every Docket table") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
		if err := db.Reset(gormDB); err != nil {
			return err
		}
		fmt.Fprintln(out, "Dropped all tables")
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.Seed(gormDB, cfg); err != nil {
		return err
	}
	templates := 0
	for _, p := range cfg.Projects {
		templates += len(p.Templates)
	}
	fmt.Fprintf(out, "Seeded %d users, %d groups, %d projects, %d templates\n",
		len(cfg.Users), len(cfg.Groups), len(cfg.Projects), templates)

	fmt.Fprintln(out, "\nDocket database initialized successfully.")
	return nil
}

// confirm asks a yes/no question on the command's input.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s? [y/N] ", question)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
