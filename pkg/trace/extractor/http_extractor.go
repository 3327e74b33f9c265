package extractor

import (
	"net/url"
	"strings"

	"github.com/tracescope/tracescope/pkg/trace/model"
)

// httpPathKeys are consulted in order when looking for the request path.
var httpPathKeys = []string{"http.url", "http.target", "http.path"}

var httpMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// ExtractHTTPPath returns the span's HTTP path or URL, or an empty string for
// non-HTTP spans.
func ExtractHTTPPath(span *model.Span) string {
	for _, key := range httpPathKeys {
		if v, ok := span.Attribute(key); ok {
			return v.AsString()
		}
	}
	return ""
}

// ExtractHTTPMethod returns the span's HTTP method attribute, if any.
func ExtractHTTPMethod(span *model.Span) string {
	if v, ok := span.Attribute("http.method"); ok {
		return v.AsString()
	}
	return ""
}

// MethodFromSpanName recovers the HTTP verb from span names like
// "GET /api/users" or a bare "POST".
func MethodFromSpanName(name string) string {
	for _, method := range httpMethods {
		if name == method || strings.HasPrefix(name, method+" ") {
			return method
		}
	}
	return ""
}

// ExtractTargetServiceFromURL derives the callee service name from a full
// URL: the first label of the hostname.
func ExtractTargetServiceFromURL(rawURL string) string {
	if strings.Contains(rawURL, "://") {
		if parsed, err := url.Parse(rawURL); err == nil {
			if host := parsed.Hostname(); host != "" {
				return strings.SplitN(host, ".", 2)[0]
			}
		}
	}
	return "unknown-service"
}
