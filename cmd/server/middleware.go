package main

import (
	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cidpkg "chatrelay/internal/cid"
)

// cidMiddleware attaches a correlation id to every request: incoming CIDs
// are preserved, otherwise a fresh KSUID is generated. The CID travels on
// the request context and is echoed in the response header.
func (s *Server) cidMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(cidpkg.HeaderName)
		if cid == "" {
			cid = ksuid.New().String()
		}
		c.Request = c.Request.WithContext(cidpkg.WithCID(c.Request.Context(), cid))
		c.Writer.Header().Set(cidpkg.HeaderName, cid)
		c.Next()
	}
}

// otelMiddleware starts a span per request and tags it with basic HTTP
// attributes plus the correlation id when present.
func (s *Server) otelMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tracer := otel.Tracer("chatrelay/server")
		ctx, span := tracer.Start(c.Request.Context(), "http.request",
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.target", c.Request.URL.Path),
			))
		if cid := cidpkg.CIDFromContext(ctx); cid != "" {
			span.SetAttributes(attribute.String(cidpkg.AttributeName, cid))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		span.End()
	}
}
