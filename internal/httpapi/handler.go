package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/scanner"
)

// Runner is the part of the pipeline the trigger API drives.
type Runner interface {
	Run(ctx context.Context, query domain.Query) (domain.RunSummary, error)
	FlushOutstanding(ctx context.Context) (domain.RunSummary, error)
}

// RunRequest is the optional body of POST /run-scraper.
type RunRequest struct {
	Date    string   `json:"date"`
	Origins []string `json:"origins"`
}

// RunResponse reports one run; failed deliveries still answer 200.
type RunResponse struct {
	RunID       string              `json:"run_id"`
	Message     string              `json:"message"`
	Results     []domain.CaseRecord `json:"results"`
	PDFLinks    []string            `json:"pdf_links"`
	FailedURLs  []string            `json:"failed_urls"`
	DroppedURLs []string            `json:"dropped_urls"`
	Tags        []string            `json:"tags"`
	Warnings    []string            `json:"warnings"`
	Outstanding int                 `json:"outstanding"`
}

// ErrorResponse is returned with 4xx and 5xx answers.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves the trigger endpoints.
type Handler struct {
	runner  Runner
	origins []domain.OriginCode
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
}

// NewHandler wires the runner. defaultOrigins apply when a request names none.
func NewHandler(runner Runner, defaultOrigins []domain.OriginCode, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{runner: runner, origins: defaultOrigins, loc: loc, now: time.Now, logger: logger}
}

// HandleRun handles POST /run-scraper requests.
func (h *Handler) HandleRun(c echo.Context) error {
	var req RunRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request format"})
		}
	}

	query, err := h.buildQuery(req)
	if err != nil {
		h.logger.Warn("rejected run request", "date", req.Date, "error", err)
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	h.logger.Info("run requested", "query", query.String())
	summary, err := h.runner.Run(c.Request().Context(), query)
	if err != nil {
		return h.fail(c, summary, err)
	}
	return c.JSON(http.StatusOK, toResponse(summary))
}

// HandleFlush handles POST /flush requests.
func (h *Handler) HandleFlush(c echo.Context) error {
	summary, err := h.runner.FlushOutstanding(c.Request().Context())
	if err != nil {
		return h.fail(c, summary, err)
	}
	return c.JSON(http.StatusOK, toResponse(summary))
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) fail(c echo.Context, summary domain.RunSummary, err error) error {
	h.logger.Error("run failed", "run_id", summary.RunID, "error", err)
	msg := "run failed"
	if errors.Is(err, domain.ErrSessionUnavailable) {
		msg = "browser session unavailable"
	}
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg + ": " + err.Error()})
}

func (h *Handler) buildQuery(req RunRequest) (domain.Query, error) {
	day, err := h.parseDate(req.Date)
	if err != nil {
		return domain.Query{}, err
	}

	origins := h.origins
	if len(req.Origins) > 0 {
		origins = make([]domain.OriginCode, 0, len(req.Origins))
		for _, raw := range req.Origins {
			code, err := domain.ParseOriginCode(raw)
			if err != nil {
				return domain.Query{}, err
			}
			origins = append(origins, code)
		}
	}

	return domain.NewQuery(day, day, origins)
}

// parseDate accepts MM/DD/YYYY (the site's format) or YYYY-MM-DD; empty means today.
func (h *Handler) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now := h.now().In(h.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc), nil
	}
	for _, layout := range []string{scanner.DateLayout, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, raw, h.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("invalid date format, use MM/DD/YYYY")
}

func toResponse(s domain.RunSummary) RunResponse {
	return RunResponse{
		RunID:       s.RunID,
		Message:     s.Message(),
		Results:     nonNil(s.Records),
		PDFLinks:    nonNil(s.PDFLinks()),
		FailedURLs:  nonNil(s.FailedURLs),
		DroppedURLs: nonNil(s.DroppedURLs),
		Tags:        nonNil(s.Tags),
		Warnings:    nonNil(s.Warnings),
		Outstanding: s.Outstanding,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
