package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scottlz0310/ci-helper/internal/infra/unknownlog"
)

func newLearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Offline learning: fold feedback into pattern statistics, discover candidates",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newLearnUpdateCmd())
	cmd.AddCommand(newLearnDiscoverCmd())
	cmd.AddCommand(newLearnPendingCmd())
	cmd.AddCommand(newLearnPromoteCmd())
	return cmd
}

func newLearnUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Apply recorded feedback to pattern success statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			applied, err := c.learning.UpdateStatsFromFeedback()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d new feedback entr%s\n", applied, plural(applied, "y", "ies"))
			return nil
		},
	}
}

func newLearnDiscoverCmd() *cobra.Command {
	var minOccurrences int
	var similarity float64

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan the unknown-failure log for candidate patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			if minOccurrences <= 0 {
				minOccurrences = globalConfig.LearningMinOccurrences()
			}
			if similarity <= 0 {
				similarity = globalConfig.LearningSimilarity()
			}

			failures, err := unknownlog.ReadAll(filepath.Join(globalConfig.CacheRoot(), "unknown.jsonl"))
			if err != nil {
				return err
			}
			candidates, err := c.learning.DiscoverCandidates(failures, minOccurrences, similarity)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No new candidates discovered.")
				return nil
			}
			for _, cand := range candidates {
				fmt.Fprintf(cmd.OutOrStdout(), "Candidate %s (%d occurrences)\n  regex: %s\n",
					cand.ID, cand.GroupSize, cand.Pattern.RegexSource[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d candidate(s) pending; promote with `cihelper learn promote <id>`\n", len(candidates))
			return nil
		},
	}
	cmd.Flags().IntVar(&minOccurrences, "min-occurrences", 0, "minimum group size (default from config)")
	cmd.Flags().Float64Var(&similarity, "similarity", 0, "Jaccard similarity threshold (default from config)")
	return cmd
}

func newLearnPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List candidate patterns awaiting promotion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			pending, err := c.learning.PendingCandidates()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending candidates.")
				return nil
			}
			for _, cand := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  (%d occurrences, discovered %s)\n  regex: %s\n",
					cand.ID, cand.GroupSize, cand.DiscoveredAt.Format("2006-01-02"), cand.Pattern.RegexSource[0])
			}
			return nil
		},
	}
}

func newLearnPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote <candidate-id>",
		Short: "Promote a pending candidate into an enabled learned pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.learning.PromoteCandidate(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Promoted %s; pattern store version is now %d\n", args[0], c.patterns.Version())
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
