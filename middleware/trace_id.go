package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/KOMKZ/go-yogan-guard/logger"
)

const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-ID"
)

// TraceID resolves the request trace id and echoes it in X-Trace-ID.
// An active OTel span wins; otherwise the incoming header is kept or a uuid generated,
// and stored in the request context for CtxZapLogger.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		var id string
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
			id = sc.TraceID().String()
		} else {
			id = c.GetHeader(TraceIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), id))
		}
		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)
		c.Next()
	}
}

// GetTraceID trace id set by TraceID, empty if the middleware did not run
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
