package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/mailsync"
)

// Pipeline is the set of operations exposed over HTTP
type Pipeline interface {
	Status(ctx context.Context) (mailsync.Status, error)
	SyncAll(ctx context.Context) (int, error)
	ForceResync(ctx context.Context) error
	Reindex(ctx context.Context) (int, error)
	Activate(ctx context.Context, accountID string) error
	Deactivate(ctx context.Context, accountID string) error
	Reclassify(ctx context.Context, canonicalID string) (*core.Classification, error)
}

// StatusServer serves health, status and maintenance endpoints
type StatusServer struct {
	pipeline Pipeline
	logger   *zap.Logger
	addr     string
	router   *gin.Engine
	server   *http.Server
}

// NewStatusServer creates the status server
func NewStatusServer(pipeline Pipeline, addr string, logger *zap.Logger) *StatusServer {
	gin.SetMode(gin.ReleaseMode)
	s := &StatusServer{
		pipeline: pipeline,
		logger:   logger,
		addr:     addr,
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler
func (s *StatusServer) Handler() http.Handler {
	return s.router
}

func (s *StatusServer) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", s.getStatus)
	router.POST("/sync", s.syncAll)
	router.POST("/resync", s.forceResync)
	router.POST("/reindex", s.reindex)

	accounts := router.Group("/accounts/:id")
	{
		accounts.POST("/activate", s.activate)
		accounts.POST("/deactivate", s.deactivate)
	}
	router.POST("/messages/:id/reclassify", s.reclassify)

	return router
}

// Start listens in the background
func (s *StatusServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server error", zap.Error(err))
		}
	}()

	s.logger.Info("Status server listening", zap.String("address", ln.Addr().String()))
	return nil
}

// Stop shuts the server down
func (s *StatusServer) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) getStatus(c *gin.Context) {
	st, err := s.pipeline.Status(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, st)
}

func (s *StatusServer) syncAll(c *gin.Context) {
	started, err := s.pipeline.SyncAll(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"sessions_started": started})
}

func (s *StatusServer) forceResync(c *gin.Context) {
	if err := s.pipeline.ForceResync(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"resync": "started"})
}

func (s *StatusServer) reindex(c *gin.Context) {
	n, err := s.pipeline.Reindex(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"documents": n})
}

func (s *StatusServer) activate(c *gin.Context) {
	if err := s.pipeline.Activate(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"account_id": c.Param("id"), "active": true})
}

func (s *StatusServer) deactivate(c *gin.Context) {
	if err := s.pipeline.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"account_id": c.Param("id"), "active": false})
}

func (s *StatusServer) reclassify(c *gin.Context) {
	cls, err := s.pipeline.Reclassify(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, cls)
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	if errors.Is(err, core.ErrNotFound) {
		status, code = http.StatusNotFound, "NOT_FOUND"
	}
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": err.Error(),
		},
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
