package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"censcope/internal/batch"
	"censcope/internal/logger"

	"github.com/gin-gonic/gin"
)

// Server 提供最小化的批次 HTTP 服务：提交批次、取回压缩包。
// 批次不持久化，压缩包只在内存里保留最近若干个。
type Server struct {
	addr    string
	router  *gin.Engine
	batches *batchHandler
}

// ServerConfig 描述批次 HTTP 服务依赖。
type ServerConfig struct {
	Addr   string
	Runner *batch.Runner
}

// NewServer 构建批次 HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("batch http server requires runner")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9982"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h, err := newBatchHandler(cfg.Runner)
	if err != nil {
		return nil, err
	}
	api := router.Group("/api")
	api.POST("/batches", h.handleCreate)
	api.GET("/batches/:id/archive", h.handleArchive)

	return &Server{addr: cfg.Addr, router: router, batches: h}, nil
}

// Router 暴露底层路由（测试用）。
func (s *Server) Router() http.Handler {
	return s.router
}

// Start 启动服务并在 ctx 取消时优雅退出。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
