package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
	"github.com/scottlz0310/ci-helper/internal/domain/sanitize"
)

func newFeedbackCmd() *cobra.Command {
	var patternID string
	var suggestionID string
	var rating int
	var success bool
	var comment string

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record the outcome of a suggested fix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if patternID == "" {
				return ciherr.New(ciherr.KindValidation, "--pattern is required")
			}
			if rating < 1 || rating > 5 {
				return ciherr.New(ciherr.KindValidation, "--rating must be between 1 and 5")
			}

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			fb := model.UserFeedback{
				PatternID:       patternID,
				FixSuggestionID: suggestionID,
				Rating:          rating,
				Success:         success,
				Comment:         sanitize.New().Sanitize(comment),
			}
			if err := c.feedback.Record(fb); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Feedback recorded. Run `cihelper learn update` to fold it into pattern statistics.")
			return nil
		},
	}

	cmd.Flags().StringVar(&patternID, "pattern", "", "pattern id the feedback refers to")
	cmd.Flags().StringVar(&suggestionID, "suggestion", "", "fix suggestion id, if one was applied")
	cmd.Flags().IntVar(&rating, "rating", 0, "rating from 1 (useless) to 5 (perfect)")
	cmd.Flags().BoolVar(&success, "success", false, "whether the fix resolved the failure")
	cmd.Flags().StringVar(&comment, "comment", "", "free-text comment")
	return cmd
}
