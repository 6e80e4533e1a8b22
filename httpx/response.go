// Package httpx unified JSON envelope and error mapping for gin handlers
package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/errcode"
	"github.com/KOMKZ/go-yogan-guard/logger"
	"github.com/KOMKZ/go-yogan-guard/store"
	"github.com/KOMKZ/go-yogan-guard/validator"
)

// Response envelope of every admin reply
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// OkJson 200 with code 0
func OkJson(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Msg: "success", Data: data})
}

// StatusJson arbitrary status with code 0, e.g. 503 health bodies
func StatusJson(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Code: 0, Msg: http.StatusText(status), Data: data})
}

// NoRouteHandler JSON 404 for engine.NoRoute
func NoRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{
			Code: errcode.ErrNotFound.Code(),
			Msg:  "route not found: " + c.Request.Method + " " + c.Request.URL.Path,
		})
	}
}

// NoMethodHandler JSON 405 for engine.NoMethod
func NoMethodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, Response{
			Code: http.StatusMethodNotAllowed,
			Msg:  "method not allowed: " + c.Request.Method + " " + c.Request.URL.Path,
		})
	}
}

// HandleError maps err onto the envelope.
// LayeredErrors keep their status, code and data; field errors are listed
// under data.fields; store.ErrNotFound becomes 404; anything else is a 500
// whose detail stays in the log.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	ctx := c.Request.Context()
	cfg := errorLoggingFrom(c)

	if le, ok := errcode.From(err); ok {
		data := le.Data()
		if fields := validator.Fields(err); len(fields) > 0 {
			merged := make(map[string]interface{}, len(data)+1)
			for k, v := range data {
				merged[k] = v
			}
			merged["fields"] = fields
			data = merged
		}
		if cfg.shouldLog(le.HTTPStatus()) {
			fields := []zap.Field{zap.Int("error_code", le.Code()), zap.String("error_msg", le.Message())}
			if cfg.FullErrorChain {
				fields = append(fields, zap.Error(err))
			}
			cfg.log(ctx, "request failed", fields...)
		}
		c.JSON(le.HTTPStatus(), Response{Code: le.Code(), Msg: le.Message(), Data: data})
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, Response{Code: errcode.ErrNotFound.Code(), Msg: err.Error()})
		return
	}

	logger.GetLogger("httpx").ErrorCtx(ctx, "unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, Response{
		Code: errcode.ErrInternal.Code(),
		Msg:  errcode.ErrInternal.Message(),
	})
}
