// Package service implements the request pipeline: routing, signature
// verification, upstream forwarding and response shaping.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"hls-signed-proxy/internal/client"
	"hls-signed-proxy/internal/config"
	"hls-signed-proxy/internal/metrics"
	"hls-signed-proxy/internal/model"
	"hls-signed-proxy/internal/route"
	"hls-signed-proxy/internal/signing"
)

// ErrManifestTooLarge is returned when an upstream playlist exceeds
// upstream.manifest_max_bytes.
var ErrManifestTooLarge = errors.New("upstream manifest exceeds size limit")

const (
	manifestContentType = "application/vnd.apple.mpegurl"
	fallbackContentType = "application/octet-stream"
	segmentCacheControl = "public, max-age=2592000"
)

// hopByHopHeaders are headers that should not be forwarded by proxies.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client   *client.UpstreamClient
	verifier *signing.Verifier
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	baseURL  *url.URL
}

// NewProxyService creates a ProxyService. The metrics parameter may be nil.
func NewProxyService(c *client.UpstreamClient, v *signing.Verifier, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream base_url %q must be absolute", cfg.Upstream.BaseURL)
	}

	return &ProxyService{
		client:   c,
		verifier: v,
		cfg:      cfg,
		logger:   logger.With("component", "proxy_service"),
		metrics:  m,
		baseURL:  u,
	}, nil
}

// Forward runs a ProxyRequest through the pipeline and returns the response
// to send back. The caller is responsible for closing the response body.
//
// Errors from routing and signature checks are returned unwrapped so callers
// can match them with errors.Is against route and signing sentinels.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	rt, err := route.Classify(pr.EscapedPath)
	if err != nil {
		return nil, err
	}
	s.countMode(rt.Mode)

	if rt.Mode == model.ModeManifest {
		if err := s.verify(pr); err != nil {
			return nil, err
		}
	}

	upstreamURL, err := s.buildUpstreamURL(rt.UpstreamPath)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
		"mode", rt.Mode,
	)

	resp, err := s.client.Fetch(pr.Ctx, pr.Method, upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	resp.Mode = rt.Mode

	switch rt.Mode {
	case model.ModeManifest:
		return s.shapeManifest(resp)
	case model.ModeSegment:
		return s.shapeSegment(resp), nil
	default:
		return s.shapePassthrough(resp), nil
	}
}

// verify checks the signed query parameters of a manifest request.
func (s *ProxyService) verify(pr *model.ProxyRequest) error {
	origin := pr.Origin
	if s.cfg.Signing.PublicOrigin != "" {
		origin = s.cfg.Signing.PublicOrigin
	}

	err := s.verifier.VerifyQuery(origin+pr.EscapedPath, pr.Query)
	if err == nil {
		return nil
	}

	reason := "other"
	switch {
	case errors.Is(err, signing.ErrMissingSignature):
		reason = "missing"
	case errors.Is(err, signing.ErrExpired):
		reason = "expired"
	case errors.Is(err, signing.ErrSignatureMismatch):
		reason = "mismatch"
	}
	if s.metrics != nil {
		s.metrics.SignatureRejections.WithLabelValues(reason).Inc()
	}
	s.logger.Debug("signature rejected",
		"path", pr.Path,
		"reason", reason,
	)
	return err
}

// buildUpstreamURL joins the escaped upstream path onto the base URL. RawPath
// carries the inbound encoding so that e.g. %2F reaches the upstream as sent.
func (s *ProxyService) buildUpstreamURL(escapedPath string) (string, error) {
	rawPath := strings.TrimSuffix(s.baseURL.EscapedPath(), "/") + escapedPath
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", fmt.Errorf("unescape upstream path: %w", err)
	}

	u := *s.baseURL
	u.Path = path
	u.RawPath = rawPath
	u.RawQuery = ""
	return u.String(), nil
}

// shapeManifest buffers the playlist, rewrites segment references to the
// public alias and replaces the body.
func (s *ProxyService) shapeManifest(resp *model.ProxyResponse) (*model.ProxyResponse, error) {
	defer func() { _ = resp.Body.Close() }()

	var r io.Reader = resp.Body
	limit := s.cfg.Upstream.ManifestMaxBytes
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upstream manifest: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrManifestTooLarge, limit)
	}

	body := route.RewriteManifest(string(data))
	if s.metrics != nil {
		s.metrics.ManifestBytes.Observe(float64(len(body)))
	}

	header := make(http.Header)
	header.Set("Content-Type", manifestContentType)
	header.Set("Content-Length", strconv.Itoa(len(body)))

	return &model.ProxyResponse{
		Mode:       resp.Mode,
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

// shapeSegment keeps the upstream headers but pins a long public cache lifetime.
func (s *ProxyService) shapeSegment(resp *model.ProxyResponse) *model.ProxyResponse {
	resp.Header = filterResponseHeaders(resp.Header)
	resp.Header.Set("Cache-Control", segmentCacheControl)
	return resp
}

// shapePassthrough forwards only the content type.
func (s *ProxyService) shapePassthrough(resp *model.ProxyResponse) *model.ProxyResponse {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = fallbackContentType
	}
	header := make(http.Header)
	header.Set("Content-Type", ct)
	resp.Header = header
	return resp
}

func (s *ProxyService) countMode(mode model.Mode) {
	if s.metrics != nil {
		s.metrics.ProxyRequests.WithLabelValues(string(mode)).Inc()
	}
}

// filterResponseHeaders drops hop-by-hop headers and upstream CORS headers,
// which are always set by the proxy itself.
func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		ck := http.CanonicalHeaderKey(key)
		if hopByHopHeaders[ck] || strings.HasPrefix(ck, "Access-Control-") {
			continue
		}
		dst[ck] = vals
	}
	return dst
}
