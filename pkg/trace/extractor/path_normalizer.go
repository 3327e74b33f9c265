// Package extractor contains the pure readers that turn raw span data into
// typed facts: URL templates, HTTP verbs, messaging operations, and error
// details.
package extractor

import (
	"net/url"
	"regexp"
	"strings"
)

// PathNormalizer replaces dynamic URL path segments with placeholders and
// extracts the replaced values as parameters. UUIDs are normalized but never
// recorded; they carry no discriminating business value.
type PathNormalizer struct {
	uuidPattern        *regexp.Regexp
	ruleSegment        *regexp.Regexp
	longEncodedSegment *regexp.Regexp
	semverSegment      *regexp.Regexp
	numericSegment     *regexp.Regexp
}

func NewPathNormalizer() *PathNormalizer {
	return &PathNormalizer{
		uuidPattern: regexp.MustCompile(
			`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`,
		),
		ruleSegment:        regexp.MustCompile(`^[A-Z][A-Za-z0-9-]*__[A-Za-z0-9_]+$`),
		longEncodedSegment: regexp.MustCompile(`^[A-Za-z0-9_-]{30,}$`),
		semverSegment:      regexp.MustCompile(`^\d+\.\d+\.\d+(?:\.\d+)?$`),
		numericSegment:     regexp.MustCompile(`^\d+$`),
	}
}

// segmentMatch is one matched path segment, including its leading slash.
// Spans refer to the pre-substitution path, since replacement shifts offsets.
type segmentMatch struct {
	start int
	end   int
	text  string
}

// Normalize rewrites a path (or full URL) into its template form and returns
// the extracted parameter values. The substitution order is significant:
// UUIDs, then rule identifiers, then long encoded segments, then semantic
// versions, then plain numeric ids.
func (p *PathNormalizer) Normalize(path string, stripQueryParams bool) (string, []string) {
	if path == "" {
		return path, nil
	}

	if strings.Contains(path, "://") {
		if parsed, err := url.Parse(path); err == nil {
			path = parsed.Path
		}
	}

	if stripQueryParams {
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
	}

	var params []string
	normalized := path

	uuidMatches := p.uuidPattern.FindAllStringIndex(path, -1)
	for _, m := range uuidMatches {
		normalized = strings.Replace(normalized, path[m[0]:m[1]], "{uuid}", 1)
	}

	ruleMatches := findSegmentMatches(path, p.ruleSegment)
	for _, m := range ruleMatches {
		params = appendParam(params, m.text[1:])
		normalized = strings.Replace(normalized, m.text, "/{rule_id}", 1)
	}

	for _, m := range findSegmentMatches(path, p.longEncodedSegment) {
		if overlapsIndex(m, uuidMatches) || overlapsSegment(m, ruleMatches) {
			continue
		}
		params = appendParam(params, m.text[1:])
		normalized = strings.Replace(normalized, m.text, "/{encoded_id}", 1)
	}

	for _, m := range findSegmentMatches(path, p.semverSegment) {
		if containsParam(params, m.text[1:]) {
			continue
		}
		params = append(params, m.text[1:])
		normalized = strings.Replace(normalized, m.text, "/{version}", 1)
	}

	for _, m := range findSegmentMatches(path, p.numericSegment) {
		if containsParam(params, m.text[1:]) {
			continue
		}
		params = append(params, m.text[1:])
		normalized = strings.Replace(normalized, m.text, "/{id}", 1)
	}

	return normalized, params
}

// findSegmentMatches yields every path segment whose body fully matches re.
// A segment runs from a '/' to the next '/', '?', or end of string; the
// match span includes the leading slash.
func findSegmentMatches(path string, re *regexp.Regexp) []segmentMatch {
	var matches []segmentMatch
	for i := 0; i < len(path); i++ {
		if path[i] != '/' {
			continue
		}
		j := i + 1
		for j < len(path) && path[j] != '/' && path[j] != '?' {
			j++
		}
		if j > i+1 && re.MatchString(path[i+1:j]) {
			matches = append(matches, segmentMatch{start: i, end: j, text: path[i:j]})
		}
	}
	return matches
}

func overlapsIndex(m segmentMatch, indexes [][]int) bool {
	for _, idx := range indexes {
		if m.start <= idx[0] && idx[0] < m.end || idx[0] <= m.start && m.start < idx[1] {
			return true
		}
	}
	return false
}

func overlapsSegment(m segmentMatch, others []segmentMatch) bool {
	for _, o := range others {
		if m.start <= o.start && o.start < m.end || o.start <= m.start && m.start < o.end {
			return true
		}
	}
	return false
}

func containsParam(params []string, value string) bool {
	for _, p := range params {
		if p == value {
			return true
		}
	}
	return false
}

func appendParam(params []string, value string) []string {
	if containsParam(params, value) {
		return params
	}
	return append(params, value)
}
