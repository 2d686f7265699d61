package middlewares

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/bar-order-app/utils"
)

// Recovery turns a handler panic into a 500 and reports it to Sentry when configured.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				utils.ErrorLogger.WithField("path", c.Request.URL.Path).Errorf("Panic recovered: %v", rec)
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(c.Request)
				hub.Recover(rec)

				if !c.Writer.Written() {
					utils.RespondMessage(c, http.StatusInternalServerError, "internal server error")
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
