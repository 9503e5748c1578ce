package api

import (
	"net/http"
	"time"

	"RiskGate/internal/domain/models"
	domrepo "RiskGate/internal/domain/repository"
	"RiskGate/internal/service/ratelimit"
	"RiskGate/internal/usecase"
	xhttp "RiskGate/pkg/http"
	xlogger "RiskGate/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// TransactionsEchoHandler exposes the pipeline over HTTP.
type TransactionsEchoHandler struct {
	logger  *xlogger.Logger
	svc     *usecase.TransactionService
	summary *usecase.SummaryUseCase
	ingest  *usecase.ActivityIngestor
	stream  http.Handler
	limiter *ratelimit.Limiter
	now     func() time.Time
}

type HandlerOption func(*TransactionsEchoHandler)

// WithStream mounts the websocket stage feed at /ws/stages.
func WithStream(h http.Handler) HandlerOption {
	return func(t *TransactionsEchoHandler) { t.stream = h }
}

// WithRateLimit throttles the write endpoints per client address.
func WithRateLimit(l *ratelimit.Limiter) HandlerOption {
	return func(t *TransactionsEchoHandler) { t.limiter = l }
}

func WithClock(now func() time.Time) HandlerOption {
	return func(t *TransactionsEchoHandler) { t.now = now }
}

func NewTransactionsEchoHandler(logger *xlogger.Logger, svc *usecase.TransactionService, summary *usecase.SummaryUseCase, ingest *usecase.ActivityIngestor, opts ...HandlerOption) *TransactionsEchoHandler {
	h := &TransactionsEchoHandler{logger: logger, svc: svc, summary: summary, ingest: ingest, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	if h.logger == nil {
		h.logger = xlogger.NewNop()
	}
	return h
}

func (h *TransactionsEchoHandler) RegisterRoutes(e *echo.Echo) {
	var writes []echo.MiddlewareFunc
	if h.limiter != nil {
		writes = append(writes, ratelimit.Middleware(h.limiter, ratelimit.RealIP))
	}

	g := e.Group("/api/v1")
	g.POST("/transactions/deposit", h.Deposit, writes...)
	g.POST("/transactions/withdrawal", h.Withdrawal, writes...)
	g.GET("/transactions/:id", h.Status)
	g.GET("/transactions/:id/audit", h.Audit)
	g.GET("/pipelines/active", h.Active)
	g.GET("/reviews", h.Reviews)
	g.POST("/reviews/:id", h.Resolve, writes...)
	g.GET("/users/:id/history", h.History)
	g.GET("/users/:id/limits", h.Limits)
	g.GET("/users/:id/summary", h.Summary)
	g.POST("/activity", h.Activity, writes...)
	g.PUT("/providers/:id", h.Provider)
	g.GET("/health", h.Health)

	if h.stream != nil {
		e.GET("/ws/stages", echo.WrapHandler(h.stream))
	}
}

func (h *TransactionsEchoHandler) Deposit(c echo.Context) error {
	req := &models.DepositRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid amount: %q", req.Amount))
	}
	res := h.svc.Submit(c.Request().Context(), models.TransactionRequest{
		ID:       req.TransactionID,
		UserID:   req.UserID,
		Kind:     models.KindDeposit,
		Amount:   amount,
		Currency: req.Currency,
		Method:   req.Method,
		Metadata: req.Metadata,
	})
	return h.submitted(c, res)
}

func (h *TransactionsEchoHandler) Withdrawal(c echo.Context) error {
	req := &models.WithdrawalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid amount: %q", req.Amount))
	}
	res := h.svc.Submit(c.Request().Context(), models.TransactionRequest{
		ID:       req.TransactionID,
		UserID:   req.UserID,
		Kind:     models.KindWithdrawal,
		Amount:   amount,
		Currency: req.Currency,
		Method:   req.Method,
		Details:  req.Details,
		Metadata: req.Metadata,
	})
	return h.submitted(c, res)
}

// submitted answers 201 for completed pipelines, 202 for parked ones and the
// kind's status for failures. The body is the result in every case.
func (h *TransactionsEchoHandler) submitted(c echo.Context, res usecase.SubmitResult) error {
	switch {
	case !res.Success:
		status := statusFor(res.ErrorKind)
		if status >= http.StatusInternalServerError {
			h.logger.Error("submit failed", xlogger.String("transaction_id", res.TransactionID), xlogger.String("error", res.Error))
		}
		return xhttp.DataResponse(c, status, res)
	case res.Stage == models.StageApproval:
		return xhttp.DataResponse(c, http.StatusAccepted, res)
	default:
		return xhttp.CreatedResponse(c, res)
	}
}

func (h *TransactionsEchoHandler) Status(c echo.Context) error {
	p := h.svc.GetPipelineStatus(c.Param("id"))
	if p == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("pipeline %s not found", c.Param("id")))
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *TransactionsEchoHandler) Audit(c echo.Context) error {
	entries, err := h.svc.AuditTrail(c.Request().Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("audit trail error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

func (h *TransactionsEchoHandler) Active(c echo.Context) error {
	limit := xhttp.QueryLimit(c.QueryParam("limit"), 100, 1000)
	ps := h.svc.ListActivePipelines(limit)
	return xhttp.ListResponse(c, ps, int64(len(ps)))
}

func (h *TransactionsEchoHandler) Reviews(c echo.Context) error {
	views := h.svc.ReviewQueue(c.Request().Context())
	return xhttp.ListResponse(c, views, int64(len(views)))
}

func (h *TransactionsEchoHandler) Resolve(c echo.Context) error {
	req := &models.ReviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.ResolveReview(c.Request().Context(), models.ReviewDecision{
		TransactionID: c.Param("id"),
		Approved:      req.Approved,
		Reviewer:      req.Reviewer,
		Note:          req.Note,
		DecidedAt:     h.now(),
	})
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *TransactionsEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, appErr := xhttp.TimeWindow(req.From, req.To, h.now(), 30*24*time.Hour)
	if appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}
	recs, err := h.svc.History(c.Request().Context(), req.UserID, models.Kind(req.Kind), from, to)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *TransactionsEchoHandler) Limits(c echo.Context) error {
	kind := models.Kind(c.QueryParam("kind"))
	if kind == "" {
		kind = models.KindDeposit
	}
	if !kind.Valid() {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid kind: %q", kind))
	}
	usage, err := h.svc.LimitUsage(c.Request().Context(), c.Param("id"), kind)
	if err != nil {
		h.logger.Error("limit usage error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, usage)
}

func (h *TransactionsEchoHandler) Summary(c echo.Context) error {
	req := &models.SummaryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, appErr := xhttp.TimeWindow(req.From, req.To, h.now(), 30*24*time.Hour)
	if appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}
	res, err := h.summary.GetSummary(c.Request().Context(), usecase.GetSummaryParams{
		UserID: req.UserID,
		From:   from,
		To:     to,
		Bucket: domrepo.NormalizeBucket(req.Bucket),
		Limit:  req.Limit,
	})
	if err != nil {
		h.logger.Error("summary usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *TransactionsEchoHandler) Activity(c echo.Context) error {
	req := &models.ActivityBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.ingest.ProcessBatch(c.Request().Context(), req.Events); err != nil {
		h.logger.Warn("activity ingest failed", xlogger.Int("events", len(req.Events)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]interface{}{
		"accepted": len(req.Events),
		"backend":  h.ingest.Backend(),
	})
}

type providerToggle struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (h *TransactionsEchoHandler) Provider(c echo.Context) error {
	req := &providerToggle{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.svc.SetProviderEnabled(c.Param("id"), *req.Enabled); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()).WithError(err))
	}
	h.logger.Info("provider toggled", xlogger.String("provider", c.Param("id")), xlogger.Bool("enabled", *req.Enabled))
	return xhttp.NoContentResponse(c)
}

func (h *TransactionsEchoHandler) Health(c echo.Context) error {
	health := h.svc.GetSystemHealth(c.Request().Context())
	status := http.StatusOK
	if health.Status == "down" {
		status = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, status, health)
}

var _ xhttp.Handler = (*TransactionsEchoHandler)(nil)
