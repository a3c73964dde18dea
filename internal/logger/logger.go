package logger

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Setup builds the process logger. Unknown levels fall back to info.
func Setup(level string, dev bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if dev && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(lvl).With().Stack().Logger()
	}

	return logger
}

var skipPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// Gin attaches a request scoped logger to the request context and logs one
// line per completed request.
func Gin(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		path := c.Request.URL.Path
		reqLog := logger.With().
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		c.Next()

		if skipPaths[path] {
			return
		}

		status := c.Writer.Status()
		evt := reqLog.Info()
		switch {
		case status >= 500:
			evt = reqLog.Error()
		case status >= 400:
			evt = reqLog.Warn()
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Int("status", status).
			Str("client_ip", c.ClientIP()).
			Dur("duration", time.Since(started)).
			Msg("http request")
	}
}
