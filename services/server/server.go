// Package server exposes backtest runs over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"session-backtest/services/config"
	"session-backtest/services/engine"
	"session-backtest/services/feed"
	"session-backtest/services/monitoring"
	"session-backtest/services/report"
	"session-backtest/services/runner"
	"session-backtest/strategies"
)

const version = "1.0.0"

// DefaultMaxJobs bounds the finished runs kept in memory.
const DefaultMaxJobs = 256

type job struct {
	resp    RunResponse
	records []engine.ClosedTradeRecord
}

// Server runs backtests on request and keeps the latest results in memory.
type Server struct {
	cfg     config.Config
	metrics *monitoring.Metrics
	logger  *zap.Logger
	maxJobs int

	mu    sync.RWMutex
	jobs  map[string]*job
	order []string
}

// New creates a server over cfg. Nil metrics and logger get defaults.
func New(cfg config.Config, metrics *monitoring.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.New()
	}
	return &Server{cfg: cfg, metrics: metrics, logger: logger, maxJobs: DefaultMaxJobs, jobs: map[string]*job{}}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/health", s.handleHealthCheck)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	api := r.Group("/v1")
	{
		api.GET("/variants", s.handleVariants)
		api.POST("/runs", s.handleRunRequest)
		api.GET("/runs/:id", s.handleGetRun)
		api.GET("/runs/:id/trades", s.handleGetTrades)
	}
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   version,
	})
}

func (s *Server) handleVariants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"variants": strategies.Names()})
}

func abort(c *gin.Context, status int, e APIError) {
	c.AbortWithStatusJSON(status, gin.H{"error": e})
}

// resolve applies the request on top of the server configuration.
func (s *Server) resolve(req RunRequest) (config.Config, config.Resolved, error) {
	cfg := s.cfg
	cfg.Feed.Path = req.CSVPath
	if req.Years != "" {
		cfg.Feed.Years = req.Years
	}
	if len(req.Variants) > 0 {
		cfg.Run.Variants = req.Variants
	}
	if req.Intrabar != "" {
		cfg.Run.Intrabar = req.Intrabar
	}
	cfg.Run.Escalation = cfg.Run.Escalation || req.Escalation
	cfg.Run.TrackUsedLevels = cfg.Run.TrackUsedLevels || req.TrackUsedLevels
	cfg.Run.PartialLock = cfg.Run.PartialLock || req.PartialLock
	resolved, err := cfg.Resolve()
	return cfg, resolved, err
}

func (s *Server) handleRunRequest(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, ErrInvalidParams.With(err.Error()))
		return
	}
	cfg, resolved, err := s.resolve(req)
	if err != nil {
		abort(c, http.StatusBadRequest, ErrInvalidParams.With(err.Error()))
		return
	}
	if _, err := os.Stat(cfg.Feed.Path); err != nil {
		abort(c, http.StatusNotFound, ErrDataNotFound.With(cfg.Feed.Path))
		return
	}

	resp := RunResponse{JobID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	log := s.logger.With(zap.String("job_id", resp.JobID))
	r := runner.New(runner.Options{
		Params:     resolved.Params,
		Path:       resolved.Path,
		Parallel:   cfg.Run.Parallel,
		ConfigHash: cfg.Hash(),
		Logger:     log,
		Metrics:    s.metrics,
	})
	src := feed.NewCSVSource(cfg.Feed.Path, resolved.Feed, log)
	man, results, err := r.Run(c.Request.Context(), src, resolved.Variants)
	if err != nil {
		log.Error("Backtest request failed", zap.Error(err))
		status, apiErr := http.StatusInternalServerError, ErrExecutionFailed.With(err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			status, apiErr = http.StatusGatewayTimeout, ErrTimeout
		}
		resp.Status = StatusFailed
		resp.Error = &apiErr
		s.store(&job{resp: resp})
		c.JSON(status, resp)
		return
	}

	resp.Status = StatusCompleted
	resp.Manifest = &man
	for _, res := range results {
		sum := report.Summarize(res.Variant.Name, res.Records)
		resp.Summaries = append(resp.Summaries, sum)
		resp.Results = append(resp.Results, VariantResult{
			Variant:       res.Variant.Name,
			Bars:          res.Bars,
			Trades:        len(res.Records),
			Net:           sum.Total.Net.StringFixed(1),
			WinRate:       sum.Total.WinRate().StringFixed(2),
			ElapsedMs:     res.Elapsed.Milliseconds(),
			BarsPerSecond: res.BarsPerSecond,
		})
	}
	s.store(&job{resp: resp, records: runner.Records(results)})
	c.JSON(http.StatusCreated, resp)
}

// store keeps j and evicts the oldest jobs beyond maxJobs.
func (s *Server) store(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.resp.JobID] = j
	s.order = append(s.order, j.resp.JobID)
	for len(s.order) > s.maxJobs {
		delete(s.jobs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Server) lookup(c *gin.Context) (*job, bool) {
	id := c.Param("id")
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		abort(c, http.StatusNotFound, ErrRunNotFound.With(id))
	}
	return j, ok
}

func (s *Server) handleGetRun(c *gin.Context) {
	if j, ok := s.lookup(c); ok {
		c.JSON(http.StatusOK, j.resp)
	}
}

// handleGetTrades serves the ledger as JSON, or CSV with ?format=csv.
func (s *Server) handleGetTrades(c *gin.Context) {
	j, ok := s.lookup(c)
	if !ok {
		return
	}
	switch c.DefaultQuery("format", "json") {
	case "json":
		records := j.records
		if records == nil {
			records = []engine.ClosedTradeRecord{}
		}
		c.JSON(http.StatusOK, records)
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", j.resp.JobID+"-trades.csv"))
		c.Status(http.StatusOK)
		if err := report.WriteTradesCSV(c.Writer, j.records); err != nil {
			s.logger.Error("write trades csv", zap.Error(err))
		}
	default:
		abort(c, http.StatusBadRequest, ErrInvalidParams.With("format must be json or csv"))
	}
}
