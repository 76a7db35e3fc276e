package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mail-webhook-renewal/internal/middleware"
	"github.com/noah-isme/mail-webhook-renewal/internal/models"
	appErrors "github.com/noah-isme/mail-webhook-renewal/pkg/errors"
	"github.com/noah-isme/mail-webhook-renewal/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.SessionClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

// sessionUser returns the session user id or writes a 401 and returns "".
func sessionUser(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "login required"))
		return ""
	}
	return claims.UserID
}
