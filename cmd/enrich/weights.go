package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/interest-enricher/internal/cli"
	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
)

func weightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show or change the similarity score weights",
	}

	cmd.AddCommand(weightsShowCmd())
	cmd.AddCommand(weightsSetCmd())

	return cmd
}

func weightsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the weights used by the next run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			w, source, err := currentWeights(ctx, a)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Score weights ("+source+")", formatWeights(w)))
			return nil
		},
	}
}

func currentWeights(ctx context.Context, a *app) (model.ScoreWeights, string, error) {
	w, err := a.store.GetScoreWeights(ctx)
	switch {
	case err == nil:
		return w, "stored", nil
	case errors.Is(err, common.ErrNotFound):
		return model.DefaultScoreWeights(), "defaults", nil
	case errors.Is(err, common.ErrInvalidConfig):
		return model.DefaultScoreWeights(), "defaults, stored value unusable", nil
	default:
		return model.ScoreWeights{}, "", fmt.Errorf("failed to read weights: %w", err)
	}
}

func formatWeights(w model.ScoreWeights) string {
	var b strings.Builder
	fmt.Fprintf(&b, "textual:       %.2f\n", w.Textual)
	fmt.Fprintf(&b, "contextual:    %.2f\n", w.Contextual)
	fmt.Fprintf(&b, "audience:      %.2f\n", w.Audience)
	fmt.Fprintf(&b, "brand:         %.2f\n", w.Brand)
	fmt.Fprintf(&b, "interest type: %.2f", w.InterestType)
	return b.String()
}

func weightsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more weights",
		Long: `Change weights, starting from the current ones. Every weight must lie in
[0, 1] and at least one must be positive. Runs read the weights when they start.`,
		Example: `  enrich weights set --textual 0.6 --brand 0
  enrich weights set --reset`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reset, _ := cmd.Flags().GetBool("reset")

			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			w, _, err := currentWeights(ctx, a)
			if err != nil {
				return err
			}
			if reset {
				w = model.DefaultScoreWeights()
			}

			flags := map[string]*float64{
				"textual":       &w.Textual,
				"contextual":    &w.Contextual,
				"audience":      &w.Audience,
				"brand":         &w.Brand,
				"interest-type": &w.InterestType,
			}
			for name, field := range flags {
				if cmd.Flags().Changed(name) {
					*field, _ = cmd.Flags().GetFloat64(name)
				}
			}

			if err := a.store.SaveScoreWeights(ctx, w); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Score weights saved", formatWeights(w)))
			return nil
		},
	}

	cmd.Flags().Float64("textual", 0, "weight of label and name similarity")
	cmd.Flags().Float64("contextual", 0, "weight of the category path match")
	cmd.Flags().Float64("audience", 0, "weight of the audience size")
	cmd.Flags().Float64("brand", 0, "weight of the brand match")
	cmd.Flags().Float64("interest-type", 0, "weight of the interest type")
	cmd.Flags().Bool("reset", false, "start from the default weights")
	return cmd
}
