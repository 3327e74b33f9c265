package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tracescope/tracescope/pkg/trace/model"
)

// httpStatusMessages maps common 4xx/5xx codes to their reason phrases.
var httpStatusMessages = map[int]string{
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	429: "Too Many Requests",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
	507: "Insufficient Storage",
	508: "Loop Detected",
	511: "Network Authentication Required",
}

var urlPathPattern = regexp.MustCompile(`https?://[^/]+(/[^?]*)`)

// errorAttributeKeys are checked in priority order when the status message is
// empty and no HTTP status code is present.
var errorAttributeKeys = []string{"exception.message", "exception.type", "error.message"}

// ExtractErrorDetails reports whether the span failed and resolves the most
// descriptive error message available. The HTTP status code, when
// extractable, is returned even if a higher-priority message source won.
//
// Message priority: status message, HTTP status text, exception.message,
// exception.type, error.message, a message synthesized from the span name,
// and finally "Unknown Error".
func ExtractErrorDetails(span *model.Span) (isError bool, message string, httpStatus int) {
	if !span.Status.IsError() {
		return false, "", 0
	}

	httpStatus = extractHTTPStatusCode(span)

	if msg := strings.TrimSpace(span.Status.Message); msg != "" {
		return true, msg, httpStatus
	}

	if httpStatus != 0 {
		return true, formatHTTPStatusMessage(httpStatus), httpStatus
	}

	for _, key := range errorAttributeKeys {
		if v, ok := span.Attribute(key); ok {
			if s := strings.TrimSpace(v.AsString()); s != "" {
				return true, s, httpStatus
			}
		}
	}

	spanName := strings.TrimSpace(span.Name)
	method := ExtractHTTPMethod(span)
	rawURL := ""
	if v, ok := span.Attribute("http.url"); ok {
		rawURL = v.AsString()
	}

	// A span named after its bare verb says nothing; rebuild from the URL.
	if method != "" && rawURL != "" &&
		(spanName == method || spanName == "HTTP "+method || spanName == "HTTP") {
		if m := urlPathPattern.FindStringSubmatch(rawURL); m != nil {
			path := m[1]
			if len(path) > 80 {
				path = path[:77] + "..."
			}
			return true, fmt.Sprintf("Error in %s %s", method, path), httpStatus
		}
	}

	if spanName != "" {
		return true, "Error in " + spanName, httpStatus
	}

	return true, "Unknown Error", httpStatus
}

func extractHTTPStatusCode(span *model.Span) int {
	if v, ok := span.Attribute("http.status_code"); ok {
		if code, ok := v.AsInt(); ok && code != 0 {
			return int(code)
		}
	}
	return 0
}

func formatHTTPStatusMessage(statusCode int) string {
	description, ok := httpStatusMessages[statusCode]
	if !ok {
		if statusCode >= 400 {
			description = "Error"
		} else {
			description = "Unknown Status"
		}
	}
	return fmt.Sprintf("HTTP %d: %s", statusCode, description)
}
