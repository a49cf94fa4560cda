package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/interest-enricher/internal/cli"
)

func suggestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggestions <item-id>",
		Short: "List the ranked suggestions of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			item, err := a.store.GetItem(ctx, args[0])
			if err != nil {
				return err
			}
			suggestions, err := a.store.ListSuggestions(ctx, item.ID)
			if err != nil {
				return fmt.Errorf("failed to list suggestions: %w", err)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s (%s)", item.Label, item.Status)))
			return cli.RenderSuggestions(out, suggestions)
		},
	}
}

func selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <item-id> <suggestion-id>",
		Short: "Mark a suggestion as the user's choice for an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if err := a.store.SelectSuggestion(ctx, args[0], args[1]); err != nil {
				return fmt.Errorf("failed to select suggestion: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Suggestion selected"))
			return nil
		},
	}
}
