package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/utils"
)

// RequireBartender -> 401 unless the request carries a session or the bartender key.
// Must run after CredentialMiddleware.
func RequireBartender(auth services.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.Authorize(CredentialFrom(c)) {
			utils.RespondMessage(c, http.StatusUnauthorized, services.ErrUnauthorized.Error())
			c.Abort()
			return
		}
		c.Set(roleKey, RoleBartender)
		c.Next()
	}
}
