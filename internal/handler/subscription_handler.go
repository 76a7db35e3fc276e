package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mail-webhook-renewal/internal/dto"
	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	"github.com/noah-isme/mail-webhook-renewal/pkg/response"
)

type subscriptionService interface {
	EnsureSubscription(ctx context.Context, userID string) (*dto.EnsureSubscriptionResponse, error)
	Status(ctx context.Context, userID string) (*dto.SubscriptionResponse, error)
	Unsubscribe(ctx context.Context, userID string) error
}

// SubscriptionHandler exposes the admission controller for the session user.
type SubscriptionHandler struct {
	service subscriptionService
}

// NewSubscriptionHandler constructs the handler.
func NewSubscriptionHandler(svc subscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{service: svc}
}

// Ensure godoc
// @Summary Ensure subscription
// @Description Creates the mailbox subscription or extends the existing one
// @Tags Subscriptions
// @Security SessionAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /api/v1/subscriptions [post]
func (h *SubscriptionHandler) Ensure(c *gin.Context) {
	userID := sessionUser(c)
	if userID == "" {
		return
	}
	res, err := h.service.EnsureSubscription(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Action == models.AdmissionCreated {
		response.Created(c, res)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Get godoc
// @Summary Current subscription
// @Tags Subscriptions
// @Security SessionAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /api/v1/subscriptions [get]
func (h *SubscriptionHandler) Get(c *gin.Context) {
	userID := sessionUser(c)
	if userID == "" {
		return
	}
	res, err := h.service.Status(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Delete godoc
// @Summary Remove subscription
// @Tags Subscriptions
// @Security SessionAuth
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /api/v1/subscriptions [delete]
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	userID := sessionUser(c)
	if userID == "" {
		return
	}
	if err := h.service.Unsubscribe(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
