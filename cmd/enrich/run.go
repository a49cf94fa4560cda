package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/interest-enricher/internal/cli"
	"github.com/Veraticus/interest-enricher/internal/engine"
	"github.com/Veraticus/interest-enricher/internal/model"
)

const (
	watchInterval   = 500 * time.Millisecond
	shutdownTimeout = 30 * time.Second
)

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <job-id>",
		Short: "Start enriching a pending job",
		Long: `Start enriching a job and follow the run until it finishes, pauses or is
canceled. Pending jobs and jobs that ended in error can be started.

An interrupt stops admitting new items and waits for the ones in flight;
"enrich serve" recovers the job once its heartbeat goes stale.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForeground(cmd, args[0], func(ctx context.Context, a *app) (*engine.RunHandle, error) {
				return a.orch.StartEnrichment(ctx, args[0])
			})
		},
	}

	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "run on a throwaway copy of the database without calling the API")
	cmd.Flags().BoolP("quiet", "q", false, "do not draw a progress bar")
}

func controlCmd(action engine.Action) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(action) + " <job-id>",
		Short: controlShort[action],
		Args:  cobra.ExactArgs(1),
	}

	if action == engine.ActionResume {
		addRunFlags(cmd)
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			return runForeground(cmd, args[0], func(ctx context.Context, a *app) (*engine.RunHandle, error) {
				res, err := a.orch.SetJobControl(ctx, args[0], engine.ActionResume)
				if err != nil {
					return nil, err
				}
				return res.Handle, nil
			})
		}
		return cmd
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))

		res, err := a.orch.SetJobControl(ctx, args[0], action)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(res.Message))
		return nil
	}
	return cmd
}

var controlShort = map[engine.Action]string{
	engine.ActionPause:  "Pause a running job after the items in flight",
	engine.ActionResume: "Resume a paused job",
	engine.ActionCancel: "Cancel a running or paused job",
}

// runForeground launches a run in this process and follows it.
func runForeground(cmd *cobra.Command, jobID string, launch func(context.Context, *app) (*engine.RunHandle, error)) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	quiet, _ := cmd.Flags().GetBool("quiet")

	a, err := newApp(cmd.Context(), appOptions{search: true, offline: dryRun, sandbox: dryRun})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Close(ctx)
	}()

	out := cmd.OutOrStdout()
	interrupts := cli.NewInterruptHandler(out, jobID)
	ctx, stop := interrupts.HandleInterrupts(cmd.Context())
	defer stop()

	handle, err := launch(ctx, a)
	if err != nil {
		return err
	}

	status, err := follow(ctx, out, a, handle, quiet)
	if interrupts.WasInterrupted() || errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}

	p, err := a.reporter.GetProgress(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return err
	}
	if err := cli.RenderProgress(out, p); err != nil {
		return err
	}
	if dryRun {
		_, _ = fmt.Fprintln(out, cli.FormatInfo("Dry run: the database was not changed"))
	}
	if status == model.JobError {
		return fmt.Errorf("job %s ended in error", jobID)
	}
	return nil
}

func follow(ctx context.Context, out io.Writer, a *app, handle *engine.RunHandle, quiet bool) (model.JobStatus, error) {
	if !quiet {
		if _, err := cli.WatchProgress(ctx, out, a.reporter, handle.JobID(), watchInterval); err != nil {
			return "", err
		}
	}
	return handle.Wait(ctx)
}

func progressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <job-id>",
		Short: "Show the progress of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")

			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			out := cmd.OutOrStdout()
			if watch {
				p, err := cli.WatchProgress(ctx, out, a.reporter, args[0], watchInterval)
				if err != nil {
					return err
				}
				return cli.RenderProgress(out, p)
			}

			p, err := a.reporter.GetProgress(ctx, args[0])
			if err != nil {
				return err
			}
			return cli.RenderProgress(out, p)
		},
	}

	cmd.Flags().BoolP("watch", "w", false, "follow the job while it is processing")
	return cmd
}

func retryItemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry-item <job-id> <item-id>",
		Short: "Search one item again and replace its suggestions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{search: true, offline: dryRun, sandbox: dryRun})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			outcome, err := a.orch.RetryItem(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outcome.Err != nil {
				_, _ = fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("Item %s failed: %v", outcome.ItemID, outcome.Err)))
				return nil
			}
			_, _ = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Item %s %s with %d suggestions", outcome.ItemID, outcome.Status, len(outcome.Suggestions))))
			return cli.RenderSuggestions(out, outcome.Suggestions)
		},
	}

	cmd.Flags().Bool("dry-run", false, "retry on a throwaway copy of the database without calling the API")
	return cmd
}
