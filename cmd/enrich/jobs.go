package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/interest-enricher/internal/cli"
	"github.com/Veraticus/interest-enricher/internal/model"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Create and inspect enrichment jobs",
	}

	cmd.AddCommand(jobsCreateCmd())
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsShowCmd())

	return cmd
}

func jobsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [labels...]",
		Short: "Create a job from labels",
		Long: `Create a pending job. Labels come from the arguments, or one per line
from --file ("-" reads standard input). A line may carry a target category
as "label | Category > Path". Duplicate labels are dropped.`,
		Example: `  enrich jobs create --name "Spring launch" coffee tea
  enrich jobs create --kind interest_check --country GB --file interests.txt`,
		RunE: runJobsCreate,
	}

	cmd.Flags().String("name", "", "job name (required)")
	cmd.Flags().String("kind", string(model.KindProject), "job kind (project, interest_check)")
	cmd.Flags().String("country", "US", "country code sent with every search")
	cmd.Flags().String("category", "", "target category applied to labels given as arguments")
	cmd.Flags().StringP("file", "f", "", `read labels from a file ("-" for stdin)`)
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runJobsCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	kind, _ := cmd.Flags().GetString("kind")
	country, _ := cmd.Flags().GetString("country")
	category, _ := cmd.Flags().GetString("category")
	file, _ := cmd.Flags().GetString("file")

	jobKind := model.JobKind(kind)
	if !jobKind.Valid() {
		return fmt.Errorf("invalid kind %q: must be project or interest_check", kind)
	}

	ctx := cmd.Context()
	items := make([]model.Item, 0, len(args))
	for _, label := range args {
		items = append(items, model.Item{Label: label, Category: category})
	}
	if file != "" {
		read, err := readItemsFile(ctx, file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		items = append(items, read...)
	}
	if len(items) == 0 {
		return errors.New("no labels given: pass them as arguments or with --file")
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	for i := range items {
		items[i].Country = country
	}

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	job := &model.Job{Name: name, Kind: jobKind}
	if err := a.store.CreateJob(ctx, job, items); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	created, err := a.store.ListItems(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Created job %s with %d items", job.ID, len(created))))
	if dropped := len(items) - len(created); dropped > 0 {
		_, _ = fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Dropped %d duplicate labels", dropped)))
	}
	return nil
}

func readItemsFile(ctx context.Context, path string, stdin io.Reader) ([]model.Item, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	items, err := cli.NewNonBlockingReader(r).ReadItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return items, nil
}

func jobsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, _ := cmd.Flags().GetStringSlice("status")

			var filter []model.JobStatus
			for _, s := range statuses {
				st := model.JobStatus(strings.ToLower(s))
				if !st.Valid() {
					return fmt.Errorf("invalid status %q", s)
				}
				filter = append(filter, st)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			jobs, err := a.store.ListJobs(ctx, filter...)
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}
			return cli.RenderJobs(cmd.OutOrStdout(), jobs)
		},
	}

	cmd.Flags().StringSlice("status", nil, "only show jobs in these statuses")

	return cmd
}

func jobsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job with its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			p, err := a.reporter.GetProgress(ctx, args[0])
			if err != nil {
				return err
			}
			items, err := a.store.ListItems(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to list items: %w", err)
			}

			out := cmd.OutOrStdout()
			if err := cli.RenderProgress(out, p); err != nil {
				return err
			}
			return cli.RenderItems(out, items)
		},
	}
}
