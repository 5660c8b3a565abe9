package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"ImpactRadar/pkg/config"
)

// Server API服务器
type Server struct {
	router *gin.Engine
	srv    *http.Server
}

// NewServer 创建新的API服务器
func NewServer(cfg *config.Config) *Server {
	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// 设置中间件
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	if cfg.API.RateLimit > 0 {
		router.Use(rateLimit(rate.NewLimiter(rate.Limit(cfg.API.RateLimit), max(cfg.API.RateBurst, 1))))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	return &Server{
		router: router,
		srv:    srv,
	}
}

// Router 返回路由，测试中直接驱动
func (s *Server) Router() http.Handler {
	return s.router
}

// SetupRoutes 设置路由
func (s *Server) SetupRoutes(h *Handlers) {
	// 健康检查
	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/ready", h.ReadinessCheck)
	s.router.GET("/status", h.Status)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/articles", h.IngestArticle)
		v1.GET("/articles/:id", h.GetArticle)
		v1.GET("/articles/:id/signal", h.GetSignal)

		v1.POST("/impacts/recalculate", h.RecalculateAll)

		v1.POST("/users", h.CreateUser)
		users := v1.Group("/users/:user_id")
		{
			users.GET("", h.GetUser)
			users.GET("/holdings", h.ListHoldings)
			users.POST("/holdings", h.CreateHolding)
			users.PUT("/holdings/:holding_id", h.UpdateHolding)
			users.DELETE("/holdings/:holding_id", h.DeleteHolding)

			users.GET("/impacts", h.ListImpacts)
			users.POST("/impacts/recalculate", h.RecalculateUser)
			users.GET("/recommendations", h.Recommendations)
			users.GET("/alerts", h.ListAlerts)
		}
	}
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("API服务器启动")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("服务器已关闭")
	return nil
}

// requestLogger 结构化访问日志
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.Info()
		switch {
		case status >= 500:
			entry = log.Error()
		case status >= 400:
			entry = log.Warn()
		}
		entry.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP请求")
	}
}

// rateLimit 全局令牌桶限流
func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁"})
			return
		}
		c.Next()
	}
}
