package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/payflow/payment-core/internal/models"
	"github.com/payflow/payment-core/internal/service"
	"github.com/payflow/payment-core/internal/telemetry"
)

type PaymentHandler struct {
	orchestrator *service.Orchestrator
}

func NewPaymentHandler(orchestrator *service.Orchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator}
}

// StartPayment accepts a payment request and answers 202 with the run id
// before the state machine produces a result.
func (h *PaymentHandler) StartPayment(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Logger.Error("Error decoding payment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	receipt, err := h.orchestrator.StartPayment(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrMissingFromAccount) ||
			errors.Is(err, service.ErrMissingToAccount) ||
			errors.Is(err, service.ErrNonPositiveAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		telemetry.Logger.Error("Error starting payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start payment"})
		return
	}

	c.JSON(http.StatusAccepted, receipt)
}

// GetResult answers the terminal result of a run, 202 while the run is
// still advancing, 404 for an unknown run id.
func (h *PaymentHandler) GetResult(c *gin.Context) {
	runID := c.Param("id")

	result, running, err := h.orchestrator.GetResult(c.Request.Context(), runID)
	if errors.Is(err, service.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		telemetry.Logger.Error("Error fetching run result",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run result"})
		return
	}
	if running {
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "running"})
		return
	}

	c.JSON(http.StatusOK, result)
}
