package httpx

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/logger"
)

// ErrorLoggingConfig which handled errors HandleError logs
type ErrorLoggingConfig struct {
	Enable           bool   `mapstructure:"enable" json:"enable"`
	IgnoreHTTPStatus []int  `mapstructure:"ignore_http_status" json:"ignore_http_status"`
	FullErrorChain   bool   `mapstructure:"full_error_chain" json:"full_error_chain"`
	LogLevel         string `mapstructure:"log_level" json:"log_level"` // error, warn or info
}

// DefaultErrorLoggingConfig logs everything but 404 at warn
func DefaultErrorLoggingConfig() ErrorLoggingConfig {
	return ErrorLoggingConfig{
		Enable:           true,
		IgnoreHTTPStatus: []int{404},
		FullErrorChain:   true,
		LogLevel:         "warn",
	}
}

const errorLoggingKey = "httpx:error_logging"

type errorLogging struct {
	ErrorLoggingConfig
	ignore map[int]bool
	logger *logger.CtxZapLogger
}

// ErrorLoggingMiddleware makes cfg visible to HandleError
func ErrorLoggingMiddleware(cfg ErrorLoggingConfig) gin.HandlerFunc {
	el := &errorLogging{
		ErrorLoggingConfig: cfg,
		ignore:             make(map[int]bool, len(cfg.IgnoreHTTPStatus)),
		logger:             logger.GetLogger("httpx"),
	}
	for _, s := range cfg.IgnoreHTTPStatus {
		el.ignore[s] = true
	}
	return func(c *gin.Context) {
		c.Set(errorLoggingKey, el)
		c.Next()
	}
}

func errorLoggingFrom(c *gin.Context) *errorLogging {
	if v, ok := c.Get(errorLoggingKey); ok {
		if el, ok := v.(*errorLogging); ok {
			return el
		}
	}
	return &errorLogging{}
}

func (el *errorLogging) shouldLog(status int) bool {
	return el.Enable && !el.ignore[status]
}

func (el *errorLogging) log(ctx context.Context, msg string, fields ...zap.Field) {
	switch el.LogLevel {
	case "info":
		el.logger.InfoCtx(ctx, msg, fields...)
	case "warn":
		el.logger.WarnCtx(ctx, msg, fields...)
	default:
		el.logger.ErrorCtx(ctx, msg, fields...)
	}
}
