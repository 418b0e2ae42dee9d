package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
	"github.com/akylbek/payment-system/payment-statemachine/internal/service"
	"github.com/akylbek/payment-system/payment-statemachine/internal/telemetry"
)

type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Logger.Warn("Error decoding payment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	payment, err := h.payments.CreatePayment(c.Request.Context(), *req.Amount)
	if err != nil {
		h.respondError(c, payment, err)
		return
	}

	c.JSON(http.StatusCreated, payment)
}

func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	payment, err := h.payments.ProcessPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, payment, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.payments.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, nil, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) ListPayments(c *gin.Context) {
	payments, err := h.payments.ListPayments(c.Request.Context())
	if err != nil {
		h.respondError(c, nil, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}

func (h *PaymentHandler) GetAccount(c *gin.Context) {
	c.JSON(http.StatusOK, h.payments.Account())
}

// respondError maps service errors onto HTTP statuses. A declined payment is
// still returned to the caller.
func (h *PaymentHandler) respondError(c *gin.Context, payment *models.Payment, err error) {
	switch {
	case errors.Is(err, models.ErrInsufficientFunds):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   err.Error(),
			"status":  "declined",
			"payment": payment,
		})
	case errors.Is(err, models.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, gin.H{
			"error":   err.Error(),
			"payment": payment,
		})
	default:
		telemetry.Logger.Error("Error handling payment request",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment"})
	}
}
