package route

import "regexp"

// segmentRefPattern matches an upstream segment suffix and an optional query
// string that runs until a quote or whitespace.
var segmentRefPattern = regexp.MustCompile(`\.jpeg(\?[^"'\s]*)?`)

// RewriteManifest replaces every upstream segment suffix in a playlist body
// with the public alias, keeping any query string attached to it.
func RewriteManifest(body string) string {
	return segmentRefPattern.ReplaceAllString(body, SegmentAliasSuffix+"${1}")
}
