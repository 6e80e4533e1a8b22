package httpx

import (
	"github.com/gin-gonic/gin"
)

// Parse binds path params (uri tags), then query (form tags), then a JSON body when present.
// Uri and query binding errors are ignored: a struct without those tags simply stays zero.
func Parse(c *gin.Context, req interface{}) error {
	_ = c.ShouldBindUri(req)
	_ = c.ShouldBindQuery(req)
	if c.Request.ContentLength > 0 {
		return c.ShouldBindJSON(req)
	}
	return nil
}
