package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/internal/repository"
	"FusionTrader/internal/service/ratelimit"
	"FusionTrader/pkg/config"
	xhttp "FusionTrader/pkg/http"
	xlogger "FusionTrader/pkg/logger"
)

// StatusReader exposes the latest decision snapshots.
type StatusReader interface {
	Latest() []models.StatusSnapshot
}

// EvaluationQueue is the orchestrator side of the ops surface.
type EvaluationQueue interface {
	RequestEvaluation(reason string) bool
	TradesCounted() int64
	TradesAtLastTune() int64
}

// EvaluateLimit bounds operator-triggered evaluations per client.
type EvaluateLimit struct {
	Capacity     float64
	RefillPerSec float64
}

// OpsEchoHandler serves the read-only ops endpoints plus the evaluation trigger.
type OpsEchoHandler struct {
	holder  *config.Holder
	status  StatusReader
	journal domrepo.Journal
	marker  domrepo.EvaluationMarker
	queue   EvaluationQueue
	rl      *ratelimit.Limiter
	limit   EvaluateLimit
	logger  *xlogger.Logger
}

func NewOpsEchoHandler(
	holder *config.Holder,
	status StatusReader,
	journal domrepo.Journal,
	marker domrepo.EvaluationMarker,
	queue EvaluationQueue,
	rl *ratelimit.Limiter,
	limit EvaluateLimit,
	logger *xlogger.Logger,
) *OpsEchoHandler {
	if limit.Capacity <= 0 {
		limit = EvaluateLimit{Capacity: 2, RefillPerSec: 1.0 / 30}
	}
	return &OpsEchoHandler{
		holder:  holder,
		status:  status,
		journal: journal,
		marker:  marker,
		queue:   queue,
		rl:      rl,
		limit:   limit,
		logger:  logger,
	}
}

func (h *OpsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/weights", h.Weights)
	g.GET("/journal", h.Journal)
	g.POST("/evaluate", h.Evaluate)
}

func (h *OpsEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *OpsEchoHandler) Status(c echo.Context) error {
	snaps := h.status.Latest()
	return xhttp.ListResponse(c, snaps, int64(len(snaps)))
}

func (h *OpsEchoHandler) Weights(c echo.Context) error {
	cfg := h.holder.Current()
	res := models.WeightsResponse{
		Weights:       models.WeightSet(cfg.StrategyWeights).Clone(),
		TradesCounted: h.queue.TradesCounted(),
		TradesAtTune:  h.queue.TradesAtLastTune(),
	}
	if h.marker != nil {
		if at, ok := h.marker.Last(c.Request().Context()); ok {
			at = at.UTC()
			res.LastEvaluation = &at
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, res)
}

func (h *OpsEchoHandler) Journal(c echo.Context) error {
	req := &models.JournalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	entries := repository.Tail(h.journal.ReadAll(c.Request().Context()), req.Symbol, req.Limit)
	return xhttp.SuccessResponse(c, models.JournalResponse{Count: len(entries), Entries: entries})
}

func (h *OpsEchoHandler) Evaluate(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":evaluate", h.limit.Capacity, h.limit.RefillPerSec) {
		h.logger.Warn("ops.evaluate rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("evaluation requests are rate limited"))
	}
	req := &models.EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	reason := req.Reason
	if reason == "" {
		reason = "operator"
	}
	if !h.queue.RequestEvaluation(reason) {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("an evaluation is already queued"))
	}
	h.logger.Info("ops.evaluate queued",
		xlogger.String("reason", reason),
		xlogger.String("remote", c.RealIP()))
	return xhttp.AcceptedResponse(c, map[string]interface{}{
		"queued":    true,
		"reason":    reason,
		"queued_at": time.Now().UTC(),
	})
}
