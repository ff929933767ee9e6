// Package route classifies inbound paths and translates them between the
// public form and the upstream form.
package route

import (
	"errors"
	"strings"

	"hls-signed-proxy/internal/model"
)

const (
	// Prefix is the public path prefix every proxied request must carry.
	Prefix = "/v/"

	ManifestSuffix     = ".m3u8"
	SegmentAliasSuffix = ".log"
	SegmentSuffix      = ".jpeg"
)

// ErrOutsidePrefix is returned for paths that are not under Prefix.
var ErrOutsidePrefix = errors.New("path outside managed prefix")

// Route is the result of classifying an inbound path.
type Route struct {
	Mode model.Mode
	// LogicalPath is the inbound path with Prefix replaced by "/".
	LogicalPath string
	// UpstreamPath is LogicalPath after segment suffix translation.
	UpstreamPath string
}

// Classify decides how path is handled. path must be the escaped (wire) form
// of the request path, so an encoded slash such as /v%2Fa never counts as
// being under Prefix, and the returned paths keep the inbound encoding.
func Classify(path string) (Route, error) {
	if !strings.HasPrefix(path, Prefix) {
		return Route{}, ErrOutsidePrefix
	}
	logical := strings.Replace(path, Prefix, "/", 1)

	r := Route{LogicalPath: logical, UpstreamPath: logical}
	switch {
	case strings.HasSuffix(logical, ManifestSuffix):
		r.Mode = model.ModeManifest
	case strings.HasSuffix(logical, SegmentAliasSuffix):
		r.Mode = model.ModeSegment
		r.UpstreamPath = ToUpstream(logical)
	default:
		r.Mode = model.ModePassthrough
	}
	return r, nil
}

// ToUpstream maps a public segment path to the path the upstream serves.
// Paths without the alias suffix are returned unchanged.
func ToUpstream(path string) string {
	if base, ok := strings.CutSuffix(path, SegmentAliasSuffix); ok {
		return base + SegmentSuffix
	}
	return path
}

// ToPublic is the inverse of ToUpstream.
func ToPublic(path string) string {
	if base, ok := strings.CutSuffix(path, SegmentSuffix); ok {
		return base + SegmentAliasSuffix
	}
	return path
}
