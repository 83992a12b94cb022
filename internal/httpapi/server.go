// Package httpapi contains the HTTP handlers for the recruitflowd daemon.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/recruitflow/recruitflow/internal/ledger"
	"github.com/recruitflow/recruitflow/pkg/api"
)

// Server holds the dependencies for the API server.
type Server struct {
	Engine api.Engine
}

// NewServer creates a new Server.
func NewServer(engine api.Engine) *Server {
	return &Server{Engine: engine}
}

// Register mounts the API routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.Use(middleware.Recover())

	e.GET("/healthz", s.Health)

	v1 := e.Group("/api/v1")
	v1.POST("/events", s.PostEvent)
	v1.POST("/hooks/:slug", s.PostHook)
	v1.GET("/executions", s.ListExecutions)
	v1.GET("/executions/:id", s.GetExecution)
	v1.GET("/executions/:id/steps", s.ListSteps)
	v1.GET("/executions/:id/audit", s.AuditTrail)
	v1.POST("/executions/:id/cancel", s.CancelExecution)
}

// Health reports liveness.
// (GET /healthz)
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// PostEvent feeds a normalized domain event to the engine and returns the
// executions it produced.
// (POST /api/v1/events)
func (s *Server) PostEvent(c echo.Context) error {
	ctx := c.Request().Context()

	var ev api.Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if ev.OrgID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "org_id is required")
	}
	if !api.KnownTriggerType(ev.Type) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown trigger_type: "+string(ev.Type))
	}

	execs, err := s.Engine.HandleEvent(ctx, ev)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, executionsJSON(execs))
}

// PostHook converts an inbound webhook into a webhook_received event. The
// request body becomes the event payload with the path slug attached;
// org_id and subject_id come from query parameters.
// (POST /api/v1/hooks/:slug)
func (s *Server) PostHook(c echo.Context) error {
	ctx := c.Request().Context()

	orgID := c.QueryParam("org_id")
	if orgID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "org_id query parameter is required")
	}

	payload := map[string]any{}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&payload); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
		}
	}
	payload["slug"] = c.Param("slug")

	execs, err := s.Engine.HandleEvent(ctx, api.Event{
		OrgID:      orgID,
		Type:       api.TriggerWebhookReceived,
		SubjectID:  c.QueryParam("subject_id"),
		Payload:    payload,
		OccurredAt: time.Now(),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, executionsJSON(execs))
}

// ListExecutions returns executions filtered by the query parameters
// definition_id, subject_id, and status.
// (GET /api/v1/executions)
func (s *Server) ListExecutions(c echo.Context) error {
	ctx := c.Request().Context()

	execs, err := s.Engine.ListExecutions(ctx, api.ExecutionListOptions{
		DefinitionID: c.QueryParam("definition_id"),
		SubjectID:    c.QueryParam("subject_id"),
		Status:       api.ExecutionStatus(c.QueryParam("status")),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, executionsJSON(execs))
}

// GetExecution returns one execution by ID.
// (GET /api/v1/executions/:id)
func (s *Server) GetExecution(c echo.Context) error {
	ctx := c.Request().Context()

	exec, err := s.Engine.GetExecution(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, ledger.ErrExecutionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "execution not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, executionJSON(exec))
}

// ListSteps returns an execution's steps in order.
// (GET /api/v1/executions/:id/steps)
func (s *Server) ListSteps(c echo.Context) error {
	ctx := c.Request().Context()

	steps, err := s.Engine.ListSteps(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, ledger.ErrExecutionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "execution not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]stepResponse, 0, len(steps))
	for _, step := range steps {
		out = append(out, stepJSON(step))
	}
	return c.JSON(http.StatusOK, out)
}

// AuditTrail returns the append-only audit events of an execution.
// (GET /api/v1/executions/:id/audit)
func (s *Server) AuditTrail(c echo.Context) error {
	ctx := c.Request().Context()

	events, err := s.Engine.AuditTrail(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]auditResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, auditJSON(ev))
	}
	return c.JSON(http.StatusOK, out)
}

// CancelExecution cancels a non-terminal execution.
// (POST /api/v1/executions/:id/cancel)
func (s *Server) CancelExecution(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	if err := s.Engine.CancelExecution(ctx, id); err != nil {
		if errors.Is(err, ledger.ErrExecutionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "execution not found")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	exec, err := s.Engine.GetExecution(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, executionJSON(exec))
}
