package handlers

import (
	"context"
	"net/http"
	"time"

	"PostcardAgent/internal/models"
	"PostcardAgent/pkg/metrics"
	"PostcardAgent/pkg/scheduler"

	"github.com/gin-gonic/gin"
)

// Backend 监控接口需要的存储能力
type Backend interface {
	Ping(ctx context.Context) error
	ListPostcards(ctx context.Context, conversationID string) ([]models.Postcard, error)
}

type Handlers struct {
	backend Backend
	metrics *metrics.Metrics
	probes  []*scheduler.Probe
}

func NewHandlers(backend Backend, m *metrics.Metrics, probes ...*scheduler.Probe) *Handlers {
	return &Handlers{backend: backend, metrics: m, probes: probes}
}

// NewEngine 创建带监控中间件的 gin 引擎并注册路由
func (h *Handlers) NewEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	if h.metrics != nil {
		engine.Use(metrics.MonitorMiddleware(h.metrics))
	}
	h.Register(engine)
	return engine
}

func (h *Handlers) Register(engine *gin.Engine) {
	// System Module Routes
	engine.GET("/healthz", h.HealthCheck)
	if h.metrics != nil {
		engine.GET("/metrics", metrics.Handler(h.metrics))
	}

	api := engine.Group("/api")
	{
		api.GET("/conversations/:id/postcards", h.ListPostcards)
	}
}

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	// 检查数据库连接
	if err := h.backend.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}

	status := http.StatusOK
	checks := gin.H{}
	for _, p := range h.probes {
		last := p.Last()
		checks[p.Name()] = last
		// 尚未执行过的探测不影响健康状态
		if !last.CheckAt.IsZero() && !last.OK {
			status = http.StatusServiceUnavailable
		}
	}
	if status != http.StatusOK {
		c.JSON(status, gin.H{"status": "unhealthy", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "checks": checks})
}

// ListPostcards 查看会话下的明信片
func (h *Handlers) ListPostcards(c *gin.Context) {
	cards, err := h.backend.ListPostcards(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": c.Param("id"), "postcards": cards})
}
