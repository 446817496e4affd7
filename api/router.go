package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/transcript-qa/api/handler"
	"github.com/fyerfyer/transcript-qa/api/middleware"
	"github.com/fyerfyer/transcript-qa/internal/metrics"
)

// SetupRouter 设置API路由
// m为nil时不注册指标中间件和 /metrics 端点
func SetupRouter(qaHandler *handler.QAHandler, m *metrics.Metrics) *gin.Engine {
	router := gin.New()

	// 应用全局中间件
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(Cors())
	if m != nil {
		router.Use(middleware.Metrics(m))
	}

	// 在调试模式下记录请求体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	api := router.Group("/api")
	{
		// 问答 - POST /api/ask
		api.POST("/ask", qaHandler.Ask)

		// 健康检查 - GET /api/health
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		middleware.HandleError(c, middleware.NewNotFoundError("route not found"))
	})

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
