package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler stops a foreground wait on SIGINT or SIGTERM and tells the
// user how to pick the job up again.
type InterruptHandler struct {
	writer      io.Writer
	jobID       string
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a handler for the job being watched.
func NewInterruptHandler(writer io.Writer, jobID string) *InterruptHandler {
	if writer == nil {
		writer = os.Stdout
	}
	return &InterruptHandler{
		writer: writer,
		jobID:  jobID,
	}
}

// HandleInterrupts returns a context canceled on the first interrupt.
// The returned stop function releases the signal subscription.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			h.Interrupt()
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// Interrupt records the interruption and prints the resume hint once.
func (h *InterruptHandler) Interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interrupted {
		return
	}
	h.interrupted = true

	msg := "\n\n" + FormatWarning("Enrichment interrupted!") +
		"\n" + FormatInfo("Finished items are saved. `enrich serve` recovers the job once its heartbeat goes stale.") +
		"\n" + FormatInfo(fmt.Sprintf("Check it with: enrich progress %s", h.jobID)) + "\n"

	if _, err := fmt.Fprint(h.writer, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

// WasInterrupted reports whether an interrupt was received.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
