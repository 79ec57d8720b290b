package api

import (
	_ "aiwriter/api/docs"
	"aiwriter/internal/metrics"
	middlewarepkg "aiwriter/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRouter 创建 Gin 路由并挂载全局中间件与系统端点
func SetupRouter(container *AppContainer) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middlewarepkg.RequestIDMiddleware(),
		metrics.PrometheusMiddleware(),
		RequestLogger(),
		CORS(),
	)

	router.GET("/healthz", HealthCheck())
	router.GET("/readyz", ReadinessCheck(container.DB, container.RedisClient))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if gin.Mode() != gin.ReleaseMode {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	RegisterRoutes(router, container, container.InitHandlers())
	return router
}
