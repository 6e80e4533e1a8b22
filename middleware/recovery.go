// Package middleware gin middlewares shared by the admin surface
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/errcode"
	"github.com/KOMKZ/go-yogan-guard/httpx"
	"github.com/KOMKZ/go-yogan-guard/logger"
)

// Recovery turns a handler panic into a 500 envelope; the stack goes to the log only
func Recovery() gin.HandlerFunc {
	log := logger.GetLogger("http")
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.ErrorCtx(c.Request.Context(), "panic recovered",
					zap.Any("panic", rec),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("stack", string(debug.Stack())))
				c.AbortWithStatusJSON(http.StatusInternalServerError, httpx.Response{
					Code: errcode.ErrInternal.Code(),
					Msg:  errcode.ErrInternal.Message(),
				})
			}
		}()
		c.Next()
	}
}
