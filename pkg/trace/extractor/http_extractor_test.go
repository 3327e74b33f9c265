package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracescope/tracescope/pkg/trace/model"
)

func TestExtractHTTPPath(t *testing.T) {
	t.Run("Prefers http.url over http.target", func(t *testing.T) {
		span := &model.Span{Attributes: map[string]model.AttributeValue{
			"http.url":    model.StringAttribute("https://svc/api/a"),
			"http.target": model.StringAttribute("/api/b"),
		}}
		assert.Equal(t, "https://svc/api/a", ExtractHTTPPath(span))
	})

	t.Run("Falls back through target and path", func(t *testing.T) {
		span := &model.Span{Attributes: map[string]model.AttributeValue{
			"http.path": model.StringAttribute("/api/c"),
		}}
		assert.Equal(t, "/api/c", ExtractHTTPPath(span))
	})

	t.Run("Returns empty for non-HTTP spans", func(t *testing.T) {
		span := &model.Span{Name: "kafka send"}
		assert.Equal(t, "", ExtractHTTPPath(span))
	})
}

func TestMethodFromSpanName(t *testing.T) {
	t.Run("Recognizes a bare verb", func(t *testing.T) {
		assert.Equal(t, "DELETE", MethodFromSpanName("DELETE"))
	})

	t.Run("Recognizes a verb with a path", func(t *testing.T) {
		assert.Equal(t, "GET", MethodFromSpanName("GET /api/orders"))
	})

	t.Run("Rejects verbs embedded in words", func(t *testing.T) {
		assert.Equal(t, "", MethodFromSpanName("GETTING_STARTED"))
	})
}

func TestExtractTargetServiceFromURL(t *testing.T) {
	t.Run("Takes the first hostname label", func(t *testing.T) {
		assert.Equal(t, "orders", ExtractTargetServiceFromURL("https://orders.svc.cluster.local:8080/api"))
	})

	t.Run("Returns the sentinel for relative paths", func(t *testing.T) {
		assert.Equal(t, "unknown-service", ExtractTargetServiceFromURL("/api/orders"))
	})
}
