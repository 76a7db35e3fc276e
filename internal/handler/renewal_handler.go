package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	"github.com/noah-isme/mail-webhook-renewal/pkg/response"
)

type renewalEngine interface {
	ManualCheck(ctx context.Context) (*models.RenewalReport, error)
	Status() models.EngineStatus
}

// RenewalHandler exposes the renewal engine to operators.
type RenewalHandler struct {
	engine renewalEngine
}

// NewRenewalHandler constructs the handler.
func NewRenewalHandler(engine renewalEngine) *RenewalHandler {
	return &RenewalHandler{engine: engine}
}

// Run godoc
// @Summary Run a renewal pass now
// @Tags Renewal
// @Security SessionAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /internal/renewal/run [post]
func (h *RenewalHandler) Run(c *gin.Context) {
	report, err := h.engine.ManualCheck(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// Status godoc
// @Summary Renewal engine status
// @Tags Renewal
// @Security SessionAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /internal/renewal/status [get]
func (h *RenewalHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.engine.Status())
}
