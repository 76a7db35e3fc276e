package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mail-webhook-renewal/internal/dto"
	appErrors "github.com/noah-isme/mail-webhook-renewal/pkg/errors"
	"github.com/noah-isme/mail-webhook-renewal/pkg/response"
)

type mailService interface {
	RecentMessages(ctx context.Context, userID string, top int) ([]dto.MessageSummary, error)
}

// MessageHandler lists the session user's newest messages.
type MessageHandler struct {
	service mailService
}

// NewMessageHandler constructs the handler.
func NewMessageHandler(svc mailService) *MessageHandler {
	return &MessageHandler{service: svc}
}

// List godoc
// @Summary Recent messages
// @Description Lists the newest messages of the signed-in mailbox
// @Tags Messages
// @Security SessionAuth
// @Produce json
// @Param top query int false "Number of messages (1-50, default 10)"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /api/v1/messages [get]
func (h *MessageHandler) List(c *gin.Context) {
	userID := sessionUser(c)
	if userID == "" {
		return
	}
	var query dto.RecentMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "top must be between 1 and 50"))
		return
	}
	msgs, err := h.service.RecentMessages(c.Request.Context(), userID, query.Top)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msgs)
}
