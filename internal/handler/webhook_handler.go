package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mail-webhook-renewal/internal/dto"
	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	appErrors "github.com/noah-isme/mail-webhook-renewal/pkg/errors"
	"github.com/noah-isme/mail-webhook-renewal/pkg/response"
)

type notificationAcceptor interface {
	Accept(ctx context.Context, batch *models.NotificationBatch) (*models.NotificationIntake, error)
}

// WebhookHandler receives provider callbacks.
type WebhookHandler struct {
	service   notificationAcceptor
	readiness dto.WebhookReadiness
}

// NewWebhookHandler constructs the handler. readiness is echoed on a bare GET.
func NewWebhookHandler(svc notificationAcceptor, readiness dto.WebhookReadiness) *WebhookHandler {
	if readiness.Status == "" {
		readiness.Status = "ready"
	}
	return &WebhookHandler{service: svc, readiness: readiness}
}

// Handle godoc
// @Summary Webhook endpoint
// @Description Echoes validationToken as text/plain, otherwise accepts change notifications
// @Tags Webhook
// @Accept json
// @Produce plain
// @Param validationToken query string false "Provider validation token"
// @Success 200 {string} string
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /webhook [post]
func (h *WebhookHandler) Handle(c *gin.Context) {
	if token := c.Query("validationToken"); token != "" {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(token))
		return
	}

	if c.Request.Method == http.MethodGet {
		response.JSON(c, http.StatusOK, h.readiness)
		return
	}

	var batch models.NotificationBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notification payload"))
		return
	}

	intake, err := h.service.Accept(c.Request.Context(), &batch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, intake)
}
