package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	"Confluence/internal/service/publisher"
	"Confluence/internal/usecase"
	xhttp "Confluence/pkg/http"
	xmw "Confluence/pkg/http/middleware"
	xlogger "Confluence/pkg/logger"
	"Confluence/pkg/queue"

	"github.com/labstack/echo/v4"
)

// BreakdownReader serves what the publisher last wrote.
type BreakdownReader interface {
	Breakdown(ctx context.Context, symbol string) (*models.Breakdown, error)
	Score(ctx context.Context, symbol string) (*models.ScoreSummary, error)
}

// LiveAnalyzer runs an analysis on request.
type LiveAnalyzer interface {
	Run(ctx context.Context, p usecase.AnalyzeParams) (*models.AnalysisResult, error)
}

// HealthCheck reports one dependency's status; nil means healthy.
type HealthCheck func(ctx context.Context) error

// ConfluenceHandler exposes published breakdowns, live analysis, refresh
// and score history over Echo.
type ConfluenceHandler struct {
	logger   *xlogger.Logger
	reader   BreakdownReader
	analyzer LiveAnalyzer
	writer   usecase.BreakdownWriter
	queue    queue.Enqueuer
	history  domrepo.HistoryStore
	checks   map[string]HealthCheck
	limiter  xmw.Allower
}

type HandlerOption func(*ConfluenceHandler)

func WithAnalyzer(a LiveAnalyzer, w usecase.BreakdownWriter) HandlerOption {
	return func(h *ConfluenceHandler) {
		h.analyzer = a
		h.writer = w
	}
}

func WithQueue(q queue.Enqueuer) HandlerOption {
	return func(h *ConfluenceHandler) { h.queue = q }
}

func WithHistoryStore(s domrepo.HistoryStore) HandlerOption {
	return func(h *ConfluenceHandler) { h.history = s }
}

// WithRateLimiter throttles the endpoints that trigger work: analyze and
// refresh. Reads of published data are never throttled.
func WithRateLimiter(a xmw.Allower) HandlerOption {
	return func(h *ConfluenceHandler) { h.limiter = a }
}

func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *ConfluenceHandler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func NewConfluenceHandler(logger *xlogger.Logger, reader BreakdownReader, opts ...HandlerOption) *ConfluenceHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &ConfluenceHandler{logger: logger, reader: reader, checks: map[string]HealthCheck{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ xhttp.Handler = (*ConfluenceHandler)(nil)

func (h *ConfluenceHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/confluence")
	var work []echo.MiddlewareFunc
	if h.limiter != nil {
		work = append(work, xmw.RateLimit(h.limiter))
	}

	g.GET("/analyze", h.Analyze, work...)
	g.GET("/:symbol/breakdown", h.Breakdown)
	g.GET("/:symbol/score", h.Score)
	g.GET("/:symbol/history", h.History)
	g.POST("/:symbol/refresh", h.Refresh, work...)
}

func (h *ConfluenceHandler) Breakdown(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)

	b, err := h.reader.Breakdown(c.Request().Context(), symbol)
	if err != nil {
		return h.readError(c, "breakdown", symbol, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, b)
}

func (h *ConfluenceHandler) Score(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)

	s, err := h.reader.Score(c.Request().Context(), symbol)
	if err != nil {
		return h.readError(c, "score", symbol, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, s)
}

// Analyze runs a live analysis. With publish=true the result also replaces
// the stored breakdown.
func (h *ConfluenceHandler) Analyze(c echo.Context) error {
	if h.analyzer == nil {
		return xhttp.AppErrorResponse(c, xhttp.Unavailable("live analysis is disabled"))
	}
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)

	res, err := h.analyzer.Run(c.Request().Context(), usecase.AnalyzeParams{
		Symbol:   symbol,
		UseCache: req.Cache == "true",
	})
	if err != nil {
		h.logger.Error("analyze usecase error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.Internalf("analysis failed").Wrap(err))
	}

	if req.Publish == "true" && h.writer != nil {
		if _, ok := h.writer.PublishBreakdown(c.Request().Context(), symbol, res); !ok {
			h.logger.Warn("analyze publish failed", xlogger.String("symbol", symbol))
		}
	}
	return xhttp.SuccessResponse(c, res)
}

// Refresh queues an analyze+publish for symbol. A refresh already pending
// for the same symbol yields 409.
func (h *ConfluenceHandler) Refresh(c echo.Context) error {
	if h.queue == nil {
		return xhttp.AppErrorResponse(c, xhttp.Unavailable("refresh queue is disabled"))
	}
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)

	id, err := h.queue.EnqueueUnique(c.Request().Context(), usecase.RefreshJobType, symbol,
		usecase.RefreshRequest{Symbol: symbol, Invalidate: true})
	switch {
	case errors.Is(err, queue.ErrDuplicate):
		return xhttp.AppErrorResponse(c, xhttp.Conflict("refresh already pending").With("symbol", symbol))
	case err != nil:
		h.logger.Error("enqueue refresh failed", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.Unavailable("refresh queue unavailable").Wrap(err))
	}
	return xhttp.AcceptedResponse(c, models.RefreshResponse{JobID: id, Symbol: symbol})
}

func (h *ConfluenceHandler) History(c echo.Context) error {
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.Unavailable("score history is disabled"))
	}
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)

	rows, err := h.history.History(c.Request().Context(), symbol, req.Limit)
	if err != nil {
		h.logger.Error("history query failed", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.Internalf("history query failed").Wrap(err))
	}
	if since := xhttp.ParseTimeDefault(req.Since, time.Time{}); !since.IsZero() {
		kept := rows[:0]
		for _, r := range rows {
			if !r.Timestamp.Before(since) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs every registered check with a short deadline.
func (h *ConfluenceHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			res.Status = "degraded"
			res.Checks[name] = err.Error()
			continue
		}
		res.Checks[name] = "ok"
	}
	if res.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ConfluenceHandler) readError(c echo.Context, what, symbol string, err error) error {
	if errors.Is(err, publisher.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundf("no %s published for %s", what, symbol))
	}
	h.logger.Error("read "+what+" failed", xlogger.String("symbol", symbol), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.Internalf("read %s failed", what).Wrap(err))
}
