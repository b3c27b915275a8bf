package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

func newPatternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect the pattern database",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newPatternsListCmd())
	return cmd
}

func newPatternsListCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enabled patterns with their statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			snap := c.patterns.Snapshot()
			patterns := snap.AllEnabled(model.PatternCategory(category))
			fmt.Fprintf(cmd.OutOrStdout(), "%-32s %-12s %-8s %10s %12s %6s\n",
				"ID", "CATEGORY", "SOURCE", "CONFIDENCE", "SUCCESS_RATE", "SEEN")
			for _, p := range patterns {
				fmt.Fprintf(cmd.OutOrStdout(), "%-32s %-12s %-8s %10.2f %12.2f %6d\n",
					p.ID, p.Category, p.Source, p.BaseConfidence, p.SuccessRate, p.OccurrenceCount)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d pattern(s), store version %d\n", len(patterns), snap.Version())
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	return cmd
}
