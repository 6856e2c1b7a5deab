package middleware

import (
	"rillconf/pkg/errors"
	applog "rillconf/pkg/logger"
	"rillconf/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// TracingMiddleware opens a server span per inspection request and tags it
// with a request id, reusing the caller's X-Request-ID when present.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, route)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.request_id", requestID),
			attribute.String("http.client_ip", c.ClientIP()),
		)
		traceID := requestID
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		c.Request = c.Request.WithContext(applog.WithTraceID(ctx, traceID))

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			span.RecordError(err)
			if appErr := errors.GetAppError(err); appErr != nil {
				span.SetAttributes(tracing.ErrorKey.String(string(appErr.Code)))
			}
		}
		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}
