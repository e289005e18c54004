package main

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	cidpkg "chatrelay/internal/cid"
)

func TestOtelMiddlewareStartsSpan(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)

	s := &Server{}
	router := gin.New()
	router.Use(s.otelMiddleware())
	router.GET("/test", func(c *gin.Context) { c.String(200, "ok") })

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatalf("expected spans to be recorded, got 0")
	}
	foundMethod := false
	foundTarget := false
	for _, sp := range spans {
		for _, attr := range sp.Attributes {
			if attr.Key == "http.method" && attr.Value.AsString() == "GET" {
				foundMethod = true
			}
			if attr.Key == "http.target" && attr.Value.AsString() == "/test" {
				foundTarget = true
			}
		}
	}
	if !foundMethod || !foundTarget {
		t.Fatalf("expected http.method and http.target attributes on spans; got method=%v target=%v", foundMethod, foundTarget)
	}
}

func TestOtelMiddlewareSetsCIDAttribute(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)

	s := &Server{}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(cidpkg.WithCID(context.Background(), "test-cid-123"))
		c.Next()
	})
	router.Use(s.otelMiddleware())
	router.GET("/testcid", func(c *gin.Context) { c.String(200, "ok") })

	req := httptest.NewRequest("GET", "/testcid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatalf("expected spans to be recorded, got 0")
	}
	foundCID := false
	for _, sp := range spans {
		for _, attr := range sp.Attributes {
			if attr.Key == cidpkg.AttributeName && attr.Value.AsString() == "test-cid-123" {
				foundCID = true
				break
			}
		}
		if foundCID {
			break
		}
	}
	if !foundCID {
		t.Fatalf("expected %s attribute on spans; not found", cidpkg.AttributeName)
	}
}
