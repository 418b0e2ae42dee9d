package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/payment-statemachine/internal/handlers"
	"github.com/akylbek/payment-system/payment-statemachine/internal/service"
	"github.com/akylbek/payment-system/payment-statemachine/internal/telemetry"
)

func NewRouter(payments *service.PaymentService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": telemetry.ServiceName})
	})

	paymentHandler := handlers.NewPaymentHandler(payments)
	r.POST("/payments", paymentHandler.CreatePayment)
	r.GET("/payments", paymentHandler.ListPayments)
	r.GET("/payments/:id", paymentHandler.GetPayment)
	r.PUT("/payments/:id/process", paymentHandler.ProcessPayment)
	r.GET("/account", paymentHandler.GetAccount)

	return r
}
