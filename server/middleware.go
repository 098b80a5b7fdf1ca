package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "requestID"
)

// requestID gives each request an id, taken from the X-Request-Id header
// when the client sends a valid one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger logs each request once it is served.  A request whose
// handler panicked, including one aborted with http.ErrAbortHandler, is
// logged as aborted before the panic goes on.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		aborted := true
		defer func() {
			fields := []zap.Field{
				zap.String("request_id", c.GetString(requestIDKey)),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("query", c.Request.URL.RawQuery),
				zap.Int("status", c.Writer.Status()),
				zap.Int("size", c.Writer.Size()),
				zap.Duration("latency", time.Since(start)),
			}
			if len(c.Errors) > 0 {
				fields = append(fields, zap.String("errors", c.Errors.String()))
			}
			switch {
			case aborted:
				logger.Error("Request aborted", fields...)
			case c.Writer.Status() >= http.StatusInternalServerError:
				logger.Error("Request failed", fields...)
			default:
				logger.Info("Request served", fields...)
			}
		}()
		c.Next()
		aborted = false
	}
}

// recovery turns panics into 500 responses.  Once the response has started
// the connection is aborted instead, with http.ErrAbortHandler, so the client
// does not take a truncated response for a complete one.
func recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			logger.Error("Panic serving request",
				zap.String("request_id", c.GetString(requestIDKey)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			if c.Writer.Written() {
				panic(http.ErrAbortHandler)
			}
			abortWithError(c, http.StatusInternalServerError, "internal error")
		}()
		c.Next()
	}
}

type errorBody struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
	RequestID   string `json:"requestId,omitempty"`
}

// abortWithError writes a JSON error body.  The response must not have been
// started.
func abortWithError(c *gin.Context, status int, description string) {
	c.Writer.Header().Del("Content-Type")
	c.AbortWithStatusJSON(status, errorBody{
		Code:        status,
		Description: description,
		RequestID:   c.GetString(requestIDKey),
	})
}
