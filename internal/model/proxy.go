// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Mode is the handling mode chosen for an inbound request.
type Mode string

const (
	ModeManifest    Mode = "manifest"
	ModeSegment     Mode = "segment"
	ModePassthrough Mode = "passthrough"
)

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	// Path is the decoded request path, used for logging only. EscapedPath is
	// the wire form; routing, signing and the upstream URL all use it.
	Path        string
	EscapedPath string
	// Origin is the normalized scheme://host[:port] as seen by the client.
	Origin string
	Query  url.Values
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	Mode       Mode
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
