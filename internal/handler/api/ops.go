package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	"FxPulse/internal/service/session"
	"FxPulse/internal/usecase"
	xhttp "FxPulse/pkg/http"
	"FxPulse/pkg/logger"
	"FxPulse/pkg/queue"
	"FxPulse/pkg/util"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Scheduler is the operational surface of the cycle scheduler.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop()
	Trigger() (string, error)
	Status() models.SchedulerStatus
}

// NotificationService serves history and acknowledgments.
type NotificationService interface {
	History(ctx context.Context, subscriberID string, since time.Time, limit int) ([]models.NotificationRecord, error)
	Acknowledge(ctx context.Context, subscriberID, recordID string, at time.Time) error
}

// SessionHub owns live in-app sessions.
type SessionHub interface {
	Serve(ctx context.Context, s *session.Session, pingInterval time.Duration)
	Sessions() []models.SubscriberSession
	Now() time.Time
}

// TokenResolver maps a session token to a subscriber id.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// QueueStats reports the in-app inbox depth.
type QueueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Option configures OpsHandler.
type Option func(*OpsHandler)

// WithSessions enables the websocket endpoint.
func WithSessions(hub SessionHub, tokens TokenResolver, pingInterval time.Duration) Option {
	return func(h *OpsHandler) {
		h.hub = hub
		h.tokens = tokens
		h.ping = pingInterval
	}
}

// WithInbox reports inbox queue depths in the status response.
func WithInbox(q QueueStats) Option {
	return func(h *OpsHandler) { h.inbox = q }
}

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *OpsHandler) { h.checks[name] = check }
}

// WithBaseContext sets the context that outlives requests: the periodic
// driver and websocket sessions are bound to it.
func WithBaseContext(ctx context.Context) Option {
	return func(h *OpsHandler) { h.base = ctx }
}

// WithLogger sets the handler logger.
func WithLogger(l *logger.Logger) Option {
	return func(h *OpsHandler) {
		if l != nil {
			h.log = l
		}
	}
}

// OpsHandler exposes the scheduler, notification history and in-app sessions over HTTP.
type OpsHandler struct {
	scheduler Scheduler
	notes     NotificationService
	hub       SessionHub
	tokens    TokenResolver
	inbox     QueueStats
	checks    map[string]HealthCheck
	ping      time.Duration
	base      context.Context
	upgrader  websocket.Upgrader
	log       *logger.Logger
}

// NewOpsHandler creates the operational handler.
func NewOpsHandler(scheduler Scheduler, notes NotificationService, opts ...Option) *OpsHandler {
	h := &OpsHandler{
		scheduler: scheduler,
		notes:     notes,
		checks:    make(map[string]HealthCheck),
		base:      context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(logger.String("component", "api"))
	return h
}

// RegisterRoutes mounts the health, websocket and /api routes on e.
func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/ws", h.Connect)

	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.POST("/scheduler/start", h.StartScheduler)
	g.POST("/scheduler/stop", h.StopScheduler)
	g.POST("/cycles", h.TriggerCycle)
	g.GET("/notifications", h.History)
	g.POST("/notifications/:id/ack", h.Acknowledge)
}

type statusResponse struct {
	Scheduler models.SchedulerStatus     `json:"scheduler"`
	Sessions  []models.SubscriberSession `json:"sessions"`
	Inbox     *queue.Stats               `json:"inbox,omitempty"`
}

func (h *OpsHandler) Status(c echo.Context) error {
	res := statusResponse{Scheduler: h.scheduler.Status(), Sessions: []models.SubscriberSession{}}
	if h.hub != nil {
		res.Sessions = h.hub.Sessions()
	}
	if h.inbox != nil {
		st, err := h.inbox.Stats(c.Request().Context())
		if err != nil {
			h.log.Warn("inbox stats", logger.Error(err))
		} else {
			res.Inbox = &st
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *OpsHandler) StartScheduler(c echo.Context) error {
	if err := h.scheduler.Start(h.base); err != nil {
		return xhttp.AppErrorResponse(c, schedulerError(err))
	}
	return xhttp.SuccessResponse(c, h.scheduler.Status())
}

func (h *OpsHandler) StopScheduler(c echo.Context) error {
	h.scheduler.Stop()
	return xhttp.SuccessResponse(c, h.scheduler.Status())
}

func (h *OpsHandler) TriggerCycle(c echo.Context) error {
	id, err := h.scheduler.Trigger()
	if err != nil {
		return xhttp.AppErrorResponse(c, schedulerError(err))
	}
	return xhttp.AcceptedResponse(c, map[string]string{"cycle_id": id})
}

func schedulerError(err error) error {
	switch {
	case errors.Is(err, usecase.ErrCycleRunning):
		return xhttp.ConflictError("a cycle is already running").WithError(err)
	case errors.Is(err, usecase.ErrSchedulerClosed):
		return xhttp.UnavailableError("scheduler is shutting down").WithError(err)
	default:
		return err
	}
}

func (h *OpsHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	since := time.Now().Add(-24 * time.Hour)
	if req.Since != "" {
		t, ok := util.ParseTime(req.Since)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("since must be RFC3339 or unix seconds"))
		}
		since = t
	}

	recs, err := h.notes.History(c.Request().Context(), req.SubscriberID, since, req.Limit)
	if err != nil {
		h.log.Error("notification history", logger.String("subscriber_id", req.SubscriberID), logger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *OpsHandler) Acknowledge(c echo.Context) error {
	req := &models.AckRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var at time.Time
	if req.AcknowledgedAt != nil {
		at = *req.AcknowledgedAt
	}

	err := h.notes.Acknowledge(c.Request().Context(), req.SubscriberID, req.ID, at)
	switch {
	case err == nil:
		return xhttp.NoContentResponse(c)
	case errors.Is(err, repository.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("notification %s not found", req.ID))
	case errors.Is(err, usecase.ErrInvalidAck):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	default:
		h.log.Error("acknowledge", logger.String("record_id", req.ID), logger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
}

// Connect upgrades an authenticated request to an in-app session and blocks
// until the session ends.
func (h *OpsHandler) Connect(c echo.Context) error {
	if h.hub == nil || h.tokens == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("in-app channel disabled"))
	}
	req := &models.SessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	subscriberID, err := h.tokens.Resolve(c.Request().Context(), req.Token)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) {
			return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid session token"))
		}
		h.log.Error("resolve session token", logger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the failure response.
		h.log.Warn("websocket upgrade", logger.String("subscriber_id", subscriberID), logger.Error(err))
		return nil
	}
	s := session.New(subscriberID, conn, 0, h.hub.Now())
	h.log.Debug("session opened", logger.String("subscriber_id", subscriberID), logger.String("session_id", s.ID()))
	h.hub.Serve(h.base, s, h.ping)
	return nil
}

func (h *OpsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	res := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			res[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		res[name] = "ok"
	}
	return xhttp.DataResponse(c, status, res)
}
