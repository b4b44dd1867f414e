package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/zulandar/docket/internal/config"
	"github.com/zulandar/docket/internal/db"
	"gorm.io/gorm"

	_ "time/tzdata"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "dk",
		Short:         "Docket: workflow-driven issue tracker",
		Long:          "Docket tracks issues through template-defined workflows with typed fields and an audit trail.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "docket.yaml", "path to Docket config file")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newIssueCmd(g))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dk %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// logger returns a text logger on the command's stderr.
func (g *globals) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// connect loads the config and opens its database.
func (g *globals) connect() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		printError(cmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
