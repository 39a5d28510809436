package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	r := gin.New()
	r.Use(Tracing())
	r.GET("/trace", func(c *gin.Context) {
		c.String(http.StatusOK, traceID(c))
	})

	w := get(r, "/trace", map[string]string{
		"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Body.String())
}

func TestTracing_NoIncomingTrace(t *testing.T) {
	r := gin.New()
	r.Use(Tracing())
	r.GET("/trace", func(c *gin.Context) {
		c.String(http.StatusOK, traceID(c))
	})

	w := get(r, "/trace", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}
