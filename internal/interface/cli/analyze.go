package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scottlz0310/ci-helper/internal/adapter/presenter"
	"github.com/scottlz0310/ci-helper/internal/application/dto"
	"github.com/scottlz0310/ci-helper/internal/application/port/output"
	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
)

func newAnalyzeCmd() *cobra.Command {
	var workflowName string
	var jsonOut bool
	var apply bool

	cmd := &cobra.Command{
		Use:   "analyze <logfile>",
		Short: "Analyze a runner log for known failure patterns",
		Args:  cobra.ExactArgs(1),
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

			var p output.Presenter
			if jsonOut {
				p = presenter.NewJSONPresenter(cmd.OutOrStdout())
			} else {
				p = presenter.NewCLIAnalysisPresenter(cmd.OutOrStdout())
			}

			result, err := c.analysis.Analyze(cmd.Context(), string(raw), workflowName)
			if err != nil {
				p.PresentError(err)
				return err
			}

			report := dto.NewAnalysisReport(result, workflowName, c.analysis.PatternVersion(), c.analysis.TemplateVersion())
			if err := p.PresentAnalysis(report); err != nil {
				return err
			}

			if !apply {
				return nil
			}
			for _, s := range result.Suggestions {
				if !s.AutoApplicable {
					continue
				}
				fixResult, fixErr := c.fix.Apply(cmd.Context(), s, true)
				if fixResult != nil {
					p.PresentFixResult(dto.NewFixReport(s.ID, fixResult))
				}
				if fixErr != nil {
					return &autoFixError{rollbackOK: false, cause: fixErr}
				}
				if !fixResult.Success {
					return &autoFixError{rollbackOK: fixResult.RollbackAvailable, cause: fixResult.Error}
				}
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "No auto-applicable suggestion; nothing applied.")
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowName, "workflow", "", "workflow name the log belongs to")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON instead of text")
	cmd.Flags().BoolVar(&apply, "apply", false, "auto-apply the highest-ranked auto-applicable fix")
	return cmd
}
