// Package server exposes the orchestrator's HTTP surface: prediction
// serving, prediction-log ingestion, drift reports, manual cycle triggers,
// and registry audit/rollback endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apierr "github.com/modelwatch/modelwatch/pkg/errors"

	"github.com/modelwatch/modelwatch/internal/lifecycle"
	"github.com/modelwatch/modelwatch/internal/registry"
	"github.com/modelwatch/modelwatch/internal/serving"
	"github.com/modelwatch/modelwatch/internal/window"
	"github.com/modelwatch/modelwatch/pkg/metrics"
	"github.com/modelwatch/modelwatch/pkg/models"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// New builds the router and wires all handlers.
func New(
	addr string,
	svc *serving.Service,
	w *window.Window,
	reg *registry.Registry,
	orch *lifecycle.Orchestrator,
	logger *zap.Logger,
) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      newRouter(svc, w, reg, orch, logger),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving; blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func newRouter(
	svc *serving.Service,
	w *window.Window,
	reg *registry.Registry,
	orch *lifecycle.Orchestrator,
	logger *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	h := &handlers{svc: svc, window: w, registry: reg, orch: orch, logger: logger}

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/predict", h.predict)
		v1.POST("/predict/batch", h.predictBatch)
		v1.POST("/predictions", h.ingest)
		v1.POST("/feedback", h.feedback)
		v1.GET("/drift/report", h.driftReport)
		v1.POST("/drift/check", h.driftCheck)
		v1.GET("/models", h.listModels)
		v1.GET("/models/active", h.activeModel)
		v1.POST("/models/:id/rollback", h.rollback)
		v1.GET("/decisions", h.decisions)
	}
	return router
}

// problem writes an RFC 7807 body with the canonical media type.
func problem(c *gin.Context, p *apierr.Problem) {
	c.Header("Content-Type", "application/problem+json")
	c.JSON(p.Status, p.WithInstance(c.Request.URL.Path))
}

type handlers struct {
	svc      *serving.Service
	window   *window.Window
	registry *registry.Registry
	orch     *lifecycle.Orchestrator
	logger   *zap.Logger
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": h.svc.ActiveVersion() != "",
		"state":        h.orch.State().String(),
		"timestamp":    time.Now().UTC(),
	})
}

func (h *handlers) predict(c *gin.Context) {
	var features map[string]models.FeatureValue
	if err := c.ShouldBindJSON(&features); err != nil {
		problem(c, apierr.Validation(err.Error()))
		return
	}

	pred, err := h.svc.Predict(features)
	if err != nil {
		if errors.Is(err, serving.ErrNoActiveModel) {
			problem(c, apierr.NoActiveModel(err.Error()))
			return
		}
		problem(c, apierr.Internal(err.Error()))
		return
	}
	c.JSON(http.StatusOK, pred)
}

func (h *handlers) predictBatch(c *gin.Context) {
	var rows []map[string]models.FeatureValue
	if err := c.ShouldBindJSON(&rows); err != nil {
		problem(c, apierr.Validation(err.Error()))
		return
	}

	preds, errs := h.svc.PredictBatch(rows)
	out := make([]gin.H, len(rows))
	for i := range rows {
		if errs[i] != nil {
			out[i] = gin.H{"error": errs[i].Error()}
			continue
		}
		out[i] = gin.H{"prediction": preds[i]}
	}
	c.JSON(http.StatusOK, gin.H{"predictions": out, "count": len(out)})
}

// ingest accepts an externally produced prediction log record, for serving
// layers that log predictions themselves instead of calling /predict.
func (h *handlers) ingest(c *gin.Context) {
	var rec models.PredictionRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		problem(c, apierr.Validation(err.Error()))
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	h.window.Append(rec)
	metrics.PredictionsIngested.WithLabelValues("http").Inc()
	c.JSON(http.StatusAccepted, gin.H{"buffered": h.window.Len()})
}

type feedbackRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	TrueLabel string `json:"true_label" binding:"required"`
}

func (h *handlers) feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		problem(c, apierr.Validation(err.Error()))
		return
	}
	if !h.window.AttachLabel(req.RequestID, req.TrueLabel) {
		problem(c, apierr.NotFound("prediction not found or already evicted"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"labeled": req.RequestID})
}

func (h *handlers) driftReport(c *gin.Context) {
	report := h.orch.LastReport()
	if report == nil {
		problem(c, apierr.NotFound("no drift cycle has run yet"))
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) driftCheck(c *gin.Context) {
	report, err := h.orch.RunCycle(c.Request.Context())
	switch {
	case errors.Is(err, lifecycle.ErrCycleInFlight):
		problem(c, apierr.CycleInFlight(err.Error()))
	case errors.Is(err, lifecycle.ErrNoBaseline):
		problem(c, apierr.NoBaseline(err.Error()))
	case err != nil:
		problem(c, apierr.Internal(err.Error()))
	default:
		c.JSON(http.StatusOK, report)
	}
}

func (h *handlers) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"versions": h.registry.List()})
}

func (h *handlers) activeModel(c *gin.Context) {
	mv, ok := h.registry.Active()
	if !ok {
		problem(c, apierr.NotFound("no active model"))
		return
	}
	c.JSON(http.StatusOK, mv)
}

func (h *handlers) rollback(c *gin.Context) {
	id := c.Param("id")
	if err := h.orch.Rollback(c.Request.Context(), id); err != nil {
		if errors.Is(err, lifecycle.ErrCycleInFlight) {
			problem(c, apierr.CycleInFlight(err.Error()))
			return
		}
		problem(c, apierr.Unprocessable(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": id})
}

func (h *handlers) decisions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"decisions": h.orch.Decisions()})
}
