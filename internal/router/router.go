package router

import (
	"lm-bench/internal/handler"
	"lm-bench/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(svc *service.ServiceContext) *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	experimentHandler := handler.NewExperimentHandler(svc)
	metricsHandler := handler.NewMetricsHandler(svc)

	api := r.Group("/api")
	{
		experiments := api.Group("/experiments")
		{
			experiments.GET("", experimentHandler.ListExperiments)
			experiments.POST("/run", experimentHandler.RunExperiment)
			experiments.GET("/:id", experimentHandler.GetExperiment)
			experiments.GET("/:id/runs", experimentHandler.ListRuns)
			experiments.GET("/:id/report", experimentHandler.GetReport)
			experiments.POST("/:id/parse", experimentHandler.ParseExperiment)
		}

		api.GET("/runs/:run_id", experimentHandler.GetRun)

		api.GET("/configs", metricsHandler.ListConfigs)
		api.POST("/metrics/extract", metricsHandler.Extract)
	}

	return r
}
