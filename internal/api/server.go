// Package api exposes job control and progress polling over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/engine"
	"github.com/Veraticus/interest-enricher/internal/model"
)

// Enricher is the part of the orchestrator the API drives.
type Enricher interface {
	StartEnrichment(ctx context.Context, jobID string) (*engine.RunHandle, error)
	SetJobControl(ctx context.Context, jobID string, action engine.Action) (engine.ControlResult, error)
	RetryItem(ctx context.Context, jobID, itemID string) (*engine.ItemOutcome, error)
}

// ProgressReader serves the progress read model.
type ProgressReader interface {
	GetProgress(ctx context.Context, jobID string) (*model.Progress, error)
}

// Handler serves the job endpoints.
type Handler struct {
	enricher Enricher
	progress ProgressReader
	logger   *slog.Logger
	version  string
}

// NewHandler creates a Handler.
func NewHandler(enricher Enricher, progress ProgressReader, logger *slog.Logger, version string) *Handler {
	return &Handler{
		enricher: enricher,
		progress: progress,
		logger:   common.OrDefault(logger),
		version:  version,
	}
}

// NewServer builds an echo instance with every route registered.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				h.logger.Warn("Request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			h.logger.Debug("Request served", attrs...)
			return nil
		},
	}))

	h.Register(e)
	return e
}

// Register mounts the routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)

	jobs := e.Group("/jobs/:id")
	jobs.POST("/start", h.Start)
	jobs.POST("/control", h.Control)
	jobs.GET("/progress", h.Progress)
	jobs.POST("/items/:itemID/retry", h.RetryItem)
}

type controlRequest struct {
	Action string `json:"action"`
}

type startResponse struct {
	JobID  string          `json:"jobId"`
	Status model.JobStatus `json:"status"`
}

type suggestionResponse struct {
	ExternalID       *string `json:"externalId,omitempty"`
	ID               string  `json:"id"`
	Label            string  `json:"label"`
	Path             string  `json:"path,omitempty"`
	Audience         int64   `json:"audience"`
	SimilarityScore  float64 `json:"similarityScore"`
	IsBestMatch      bool    `json:"isBestMatch"`
	IsSelectedByUser bool    `json:"isSelectedByUser"`
}

type retryResponse struct {
	ItemID      string               `json:"itemId"`
	Status      model.ItemStatus     `json:"status"`
	Source      string               `json:"source,omitempty"`
	Error       string               `json:"error,omitempty"`
	Suggestions []suggestionResponse `json:"suggestions"`
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Start launches enrichment for a job.
func (h *Handler) Start(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	handle, err := h.enricher.StartEnrichment(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusAccepted, startResponse{
		JobID:  handle.JobID(),
		Status: model.JobProcessing,
	})
}

// Control pauses, resumes or cancels a job.
func (h *Handler) Control(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var req controlRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	action, err := engine.ParseAction(req.Action)
	if err != nil {
		return h.fail(c, err)
	}

	result, err := h.enricher.SetJobControl(ctx, id, action)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// Progress returns the progress read model of a job.
func (h *Handler) Progress(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	p, err := h.progress.GetProgress(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, p)
}

// RetryItem reprocesses one item of a job.
func (h *Handler) RetryItem(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	itemID := c.Param("itemID")

	outcome, err := h.enricher.RetryItem(ctx, id, itemID)
	if err != nil {
		return h.fail(c, err)
	}

	resp := retryResponse{
		ItemID:      outcome.ItemID,
		Status:      outcome.Status,
		Source:      string(outcome.Source),
		Suggestions: make([]suggestionResponse, 0, len(outcome.Suggestions)),
	}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	for _, s := range outcome.Suggestions {
		resp.Suggestions = append(resp.Suggestions, suggestionResponse{
			ExternalID:       s.ExternalID,
			ID:               s.ID,
			Label:            s.Label,
			Path:             s.Path,
			Audience:         s.Audience,
			SimilarityScore:  s.SimilarityScore,
			IsBestMatch:      s.IsBestMatch,
			IsSelectedByUser: s.IsSelectedByUser,
		})
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) fail(c echo.Context, err error) error {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"path", c.Path(),
			"job_id", c.Param("id"),
			"error", err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// StatusFor maps a domain error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrIllegalTransition), errors.Is(err, common.ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, common.ErrInvalidAction), errors.Is(err, common.ErrItemMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
