package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payflow/payment-core/internal/handlers"
	"github.com/payflow/payment-core/internal/service"
	"github.com/payflow/payment-core/internal/telemetry"
)

func NewRouter(orchestrator *service.Orchestrator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-core"})
	})

	// Payment routes
	paymentHandler := handlers.NewPaymentHandler(orchestrator)
	r.POST("/payments", paymentHandler.StartPayment)
	r.GET("/payments/runs/:id", paymentHandler.GetResult)

	return r
}
