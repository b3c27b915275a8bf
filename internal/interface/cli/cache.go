package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Invalidate cached analyses (all, or by key prefix)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			if c.cache == nil {
				return ciherr.New(ciherr.KindConfig, "response cache is not available")
			}
			if err := c.cache.Invalidate(prefix); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only invalidate keys with this prefix (empty clears everything)")
	return cmd
}
