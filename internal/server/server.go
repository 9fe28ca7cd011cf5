// Package server is the HTTP surface: mission intake via hooks, report
// queries, queue and worker status, health and metrics.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"myhelper/internal/failure"
	"myhelper/internal/logger"
	"myhelper/internal/mission"
	"myhelper/internal/supervisor"
	"myhelper/internal/worker"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Workers reports the state of the local worker loops.
type Workers interface {
	States() []worker.State
}

type Server struct {
	intake  *supervisor.Service
	workers Workers
	log     *slog.Logger
}

// New returns the router. Mission routes live under /api/v1. workers may be
// nil when no pool runs in this process.
func New(intake *supervisor.Service, workers Workers, log *slog.Logger) *gin.Engine {
	s := &Server{intake: intake, workers: workers, log: logger.Component(log, "http")}

	g := gin.New()
	g.Use(s.requestLog(), gin.Recovery())

	g.GET("/healthz", s.health)
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := g.Group("/api/v1")
	v1.GET("/hooks", s.listHooks)
	v1.POST("/hooks/:task_id", s.trigger)
	v1.POST("/hooks/:task_id/validate", s.validate)
	v1.GET("/reports", s.listReports)
	v1.GET("/reports/:id", s.report)
	v1.GET("/reports/:id/status", s.reportStatus)
	v1.GET("/reports/:id/logs", s.reportLogs)
	v1.GET("/queue", s.queue)
	v1.GET("/stats", s.stats)
	v1.GET("/workers", s.listWorkers)
	return g
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	kind := failure.KindOf(err)
	code := http.StatusInternalServerError
	switch kind {
	case failure.KindNotFound:
		code = http.StatusNotFound
	case failure.KindValidation:
		code = http.StatusBadRequest
	default:
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, gin.H{"error": string(kind), "message": err.Error()})
}

type triggerBody struct {
	TriggerContext map[string]any `json:"trigger_context"`
}

// bindTrigger accepts an empty body as an empty trigger context.
func bindTrigger(c *gin.Context) (map[string]any, error) {
	var body triggerBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, failure.Wrap(failure.KindValidation, err, "invalid request body")
	}
	if body.TriggerContext == nil {
		body.TriggerContext = map[string]any{}
	}
	return body.TriggerContext, nil
}

func (s *Server) listHooks(c *gin.Context) {
	tasks := s.intake.Tasks()
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) trigger(c *gin.Context) {
	taskID := c.Param("task_id")
	trigger, err := bindTrigger(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	id, err := s.intake.Create(c.Request.Context(), taskID, trigger)
	if err != nil && id == "" {
		s.fail(c, err)
		return
	}
	resp := gin.H{"status": mission.StatusQueued, "report_id": id, "message": "Task '" + taskID + "' queued successfully"}
	if err != nil {
		resp["warning"] = "mission stored; queue write failed and will be retried by recovery"
	}
	c.JSON(http.StatusAccepted, resp)
}

func (s *Server) validate(c *gin.Context) {
	trigger, err := bindTrigger(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	task, err := s.intake.ValidateTask(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"valid": false, "error": string(failure.KindOf(err)), "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":            true,
		"task_id":          task.ID,
		"task_name":        task.Name,
		"task_description": task.Description,
		"authorized_tools": task.Tools,
		"trigger_context":  trigger,
	})
}

type reportSummary struct {
	ReportID       string         `json:"report_id"`
	TaskID         string         `json:"task_id"`
	Status         mission.Status `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at"`
	TriggerContext map[string]any `json:"trigger_context"`
}

func (s *Server) listReports(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultPageSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	limit = min(max(limit, 1), maxPageSize)

	missions, total, err := s.intake.List(c.Request.Context(), supervisor.Filter{
		Status: mission.Status(c.Query("status")),
		TaskID: c.Query("task_id"),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	reports := make([]reportSummary, 0, len(missions))
	for _, m := range missions {
		reports = append(reports, reportSummary{
			ReportID:       m.ID,
			TaskID:         m.TaskID,
			Status:         m.Status,
			CreatedAt:      m.CreatedAt,
			StartedAt:      m.StartedAt,
			FinishedAt:     m.FinishedAt,
			TriggerContext: m.TriggerContext,
		})
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "total_count": total, "limit": limit, "offset": offset})
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, failure.New(failure.KindValidation, "%s must be a non-negative integer", key)
	}
	return n, nil
}

func (s *Server) mission(c *gin.Context) (mission.Mission, bool) {
	m, err := s.intake.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return m, false
	}
	return m, true
}

func (s *Server) report(c *gin.Context) {
	if m, ok := s.mission(c); ok {
		c.JSON(http.StatusOK, m)
	}
}

func (s *Server) reportStatus(c *gin.Context) {
	m, ok := s.mission(c)
	if !ok {
		return
	}
	resp := gin.H{
		"report_id":     m.ID,
		"task_id":       m.TaskID,
		"status":        m.Status,
		"created_at":    m.CreatedAt,
		"started_at":    m.StartedAt,
		"finished_at":   m.FinishedAt,
		"progress":      m.Progress(),
		"attempts":      m.Attempts,
		"final_summary": m.FinalSummary,
	}
	if m.ErrorDetails != nil {
		resp["error_details"] = m.ErrorDetails
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) reportLogs(c *gin.Context) {
	m, ok := s.mission(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"report_id": m.ID, "status": m.Status, "execution_log": m.ExecutionLog})
}

func (s *Server) queue(c *gin.Context) {
	pending, err := s.intake.QueueStatus(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": len(pending), "mission_ids": pending})
}

func (s *Server) health(c *gin.Context) {
	depth, err := s.intake.Health(c.Request.Context())
	if err != nil {
		s.log.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "store": "unreachable", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "ok", "queue_depth": depth})
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.intake.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) listWorkers(c *gin.Context) {
	states := []worker.State{}
	if s.workers != nil {
		states = s.workers.States()
	}
	busy := 0
	for _, w := range states {
		if w.MissionID != "" {
			busy++
		}
	}
	c.JSON(http.StatusOK, gin.H{"workers": states, "count": len(states), "busy": busy})
}
