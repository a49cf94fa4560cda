package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/service"
)

// Call results recorded in the log.
const (
	ResultSuccess = "success"
	ResultEmpty   = "empty"
	ResultTimeout = "timeout"
)

// LoggingClient wraps a SearchClient and emits one structured record per call.
// It never changes what the wrapped client returns.
type LoggingClient struct {
	next   service.SearchClient
	logger *slog.Logger
}

// NewLoggingClient decorates next with call logging.
func NewLoggingClient(next service.SearchClient, logger *slog.Logger) *LoggingClient {
	return &LoggingClient{next: next, logger: common.OrDefault(logger)}
}

// Search implements service.SearchClient.
func (c *LoggingClient) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResult, error) {
	start := time.Now()
	result, err := c.next.Search(ctx, req)
	elapsed := time.Since(start)

	attrs := []slog.Attr{
		slog.Time("timestamp", start.UTC()),
		slog.String("call_type", string(req.CallType)),
		slog.String("term", req.Term),
		slog.String("country", req.Country),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
		slog.Int("attempt", req.Attempt),
	}

	if err != nil {
		outcome := string(KindOf(err))
		if IsTimeout(err) {
			outcome = ResultTimeout
		}
		attrs = append(attrs,
			slog.Int("status_code", StatusCodeOf(err)),
			slog.String("result", outcome),
			slog.String("error", err.Error()))
		c.logger.LogAttrs(ctx, slog.LevelWarn, "search call", attrs...)
		return result, err
	}

	outcome := ResultSuccess
	status, count := 0, 0
	if result != nil {
		status = result.StatusCode
		count = len(result.Candidates)
	}
	if count == 0 {
		outcome = ResultEmpty
	}
	attrs = append(attrs,
		slog.Int("status_code", status),
		slog.String("result", outcome),
		slog.Int("candidates", count))
	c.logger.LogAttrs(ctx, slog.LevelInfo, "search call", attrs...)

	return result, nil
}
