package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scottlz0310/ci-helper/internal/adapter/presenter"
	"github.com/scottlz0310/ci-helper/internal/application/dto"
	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
)

func newFixCmd() *cobra.Command {
	var workflowName string
	var suggestionIdx int
	var yes bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "fix <logfile>",
		Short: "Apply a suggested fix from a fresh analysis of the log",
		Long: "Re-analyzes the log and applies the selected suggestion (by rank,\n" +
			"1-based). Applying a suggestion that is not auto-applicable requires --yes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return ciherr.Wrap(ciherr.KindIO, fmt.Sprintf("cannot read log file %s", args[0]), err)
			}

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			var p = presenter.NewCLIAnalysisPresenter(cmd.OutOrStdout())
			if jsonOut {
				p = presenter.NewJSONPresenter(cmd.OutOrStdout())
			}

			result, err := c.analysis.Analyze(cmd.Context(), string(raw), workflowName)
			if err != nil {
				p.PresentError(err)
				return err
			}
			if suggestionIdx < 1 || suggestionIdx > len(result.Suggestions) {
				return ciherr.New(ciherr.KindValidation,
					fmt.Sprintf("suggestion %d does not exist (%d available)", suggestionIdx, len(result.Suggestions)))
			}
			suggestion := result.Suggestions[suggestionIdx-1]

			fixResult, fixErr := c.fix.Apply(cmd.Context(), suggestion, yes)
			if fixResult != nil {
				p.PresentFixResult(dto.NewFixReport(suggestion.ID, fixResult))
			}
			if fixErr != nil {
				if fixResult == nil {
					// Rejected before side effects (policy, preflight).
					p.PresentError(fixErr)
					return fixErr
				}
				return &autoFixError{rollbackOK: false, cause: fixErr}
			}
			if !fixResult.Success {
				return &autoFixError{rollbackOK: fixResult.RollbackAvailable, cause: fixResult.Error}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowName, "workflow", "", "workflow name the log belongs to")
	cmd.Flags().IntVar(&suggestionIdx, "suggestion", 1, "1-based rank of the suggestion to apply")
	cmd.Flags().BoolVar(&yes, "yes", false, "explicitly approve a non-auto-applicable suggestion")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON instead of text")
	return cmd
}
