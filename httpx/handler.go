package httpx

import (
	"github.com/gin-gonic/gin"

	"github.com/KOMKZ/go-yogan-guard/errcode"
	"github.com/KOMKZ/go-yogan-guard/validator"
)

// HandlerFunc typed handler; Req is bound from uri, query and JSON body
type HandlerFunc[Req any, Resp any] func(c *gin.Context, req *Req) (Resp, error)

// Wrap binds and validates Req, calls handler and writes the envelope
func Wrap[Req any, Resp any](handler HandlerFunc[Req, Resp]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if err := Parse(c, &req); err != nil {
			HandleError(c, errcode.ErrBadRequest.WithMsgf("malformed request: %v", err))
			return
		}
		if v, ok := any(&req).(validator.Validatable); ok {
			if err := validator.ValidateRequest(v); err != nil {
				HandleError(c, err)
				return
			}
		}

		resp, err := handler(c, &req)
		if err != nil {
			HandleError(c, err)
			return
		}
		OkJson(c, resp)
	}
}
