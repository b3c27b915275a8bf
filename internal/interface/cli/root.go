package cli

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	appconfig "github.com/scottlz0310/ci-helper/internal/app/config"
	"github.com/scottlz0310/ci-helper/internal/infra/config"
	"github.com/scottlz0310/ci-helper/internal/infra/logging"
	"github.com/scottlz0310/ci-helper/internal/interface/cli/version"
)

// globalConfig holds the loaded configuration for all commands.
var globalConfig appconfig.Config

// globalLog is the process logger, configured from globalConfig.
var globalLog *logrus.Logger = logrus.New()

func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cihelper",
		Short: "Local CI/CD failure analysis engine",
		Long: "cihelper analyzes logs from a local GitHub-Actions-compatible runner,\n" +
			"recognizes known failure patterns, proposes and optionally applies fixes,\n" +
			"and learns new patterns from recurring unknown failures.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Priority: ENV > config.yml > defaults
			baseDir := ".ci-helper"
			if home := os.Getenv("CIHELPER_HOME"); home != "" {
				baseDir = home
			}
			cfg, err := config.Load(baseDir)
			if err != nil {
				return err
			}
			globalConfig = cfg
			globalLog = logging.New(cfg.LogLevel())
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newFixCmd())
	cmd.AddCommand(newPatternsCmd())
	cmd.AddCommand(newLearnCmd())
	cmd.AddCommand(newFeedbackCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(version.NewCommand())
	return cmd
}
