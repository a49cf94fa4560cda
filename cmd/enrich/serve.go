package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/interest-enricher/internal/api"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the job control and progress API",
		Long: `Serve the HTTP API and run enrichment jobs in this process.

On startup, and every pipeline.stale_after while serving, jobs left processing
by a process that stopped refreshing their heartbeat are paused or resumed
according to pipeline.recovery_policy.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default from server.addr)")
	cmd.Flags().Bool("offline", false, "answer searches with no candidates instead of calling the API; jobs finish without suggestions")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	offline, _ := cmd.Flags().GetBool("offline")
	ctx := cmd.Context()

	a, err := newApp(ctx, appOptions{search: true, offline: offline})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	recovered, err := a.orch.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		slog.Info("Recovered interrupted jobs", "count", recovered, "policy", a.cfg.Pipeline.RecoveryPolicy)
	}
	go a.orch.SweepStale(ctx)

	server := api.NewServer(api.NewHandler(a.orch, a.reporter, slog.Default(), version))

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", a.cfg.Server.Addr, "version", version)
		if err := server.Start(a.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
