package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tickscope/internal/ibkr/collector"
	"tickscope/internal/ibkr/memorystore"
	"tickscope/internal/ibkr/resolver"
	"tickscope/internal/ibkr/session"
	"tickscope/pkg/ibkr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Feed is the read side of the stream plus the disconnect trigger.
// *collector.Manager satisfies it.
type Feed interface {
	Status() collector.StatusInfo
	Snapshot() memorystore.Snapshot
	Disconnect()
}

// Watcher starts watching new tickers. *collector.Collector satisfies it.
type Watcher interface {
	Watch(ctx context.Context, stock, option string) ([]ibkr.ConID, error)
}

// Server exposes the series and connection status over HTTP for chart clients.
type Server struct {
	feed    Feed
	watcher Watcher
	logger  *zap.Logger
	engine  *gin.Engine
	srv     *http.Server
}

func NewServer(addr string, feed Feed, watcher Watcher, logger *zap.Logger) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		feed:    feed,
		watcher: watcher,
		logger:  logger,
		engine:  engine,
		srv: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/status", s.getStatus)
	api.GET("/series", s.getSeries)
	api.POST("/watch", s.postWatch)
	api.POST("/disconnect", s.postDisconnect)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting api server", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type statusResponse struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

func toStatusResponse(info collector.StatusInfo) statusResponse {
	resp := statusResponse{Status: string(info.Status), State: info.State.String()}
	if info.LastErr != nil {
		resp.LastError = info.LastErr.Error()
	}
	return resp
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, toStatusResponse(s.feed.Status()))
}

// getSeries returns every series, or one contract's with ?conid=.
func (s *Server) getSeries(c *gin.Context) {
	snap := s.feed.Snapshot()

	if raw := c.Query("conid"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conid must be a positive integer"})
			return
		}
		snap = snap.ForContract(ibkr.ConID(n))
	}
	c.JSON(http.StatusOK, snap)
}

type watchRequest struct {
	Stock  string `json:"stock"`
	Option string `json:"option"`
}

func (s *Server) postWatch(c *gin.Context) {
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, err := s.watcher.Watch(c.Request.Context(), req.Stock, req.Option)
	if err != nil {
		c.JSON(watchErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conids": ids, "status": toStatusResponse(s.feed.Status())})
}

func (s *Server) postDisconnect(c *gin.Context) {
	s.feed.Disconnect()
	c.JSON(http.StatusOK, toStatusResponse(s.feed.Status()))
}

func watchErrorStatus(err error) int {
	var (
		invalid   *resolver.InvalidTickerError
		server    *resolver.ServerError
		transport *session.TransportError
	)
	switch {
	case errors.Is(err, collector.ErrNothingToWatch), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, resolver.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &server), errors.As(err, &transport):
		return http.StatusBadGateway
	case errors.Is(err, collector.ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
