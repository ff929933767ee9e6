package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"hls-signed-proxy/internal/model"
	"hls-signed-proxy/internal/route"
	"hls-signed-proxy/internal/service"
	"hls-signed-proxy/internal/signing"
)

// Response bodies for rejected requests.
const (
	msgAccessDenied      = "access denied"
	msgMissingSignature  = "missing signature or expiry"
	msgExpired           = "URL expired"
	msgSignatureMismatch = "signature mismatch"
)

// signaturePattern matches signature query values in URLs embedded in error messages.
var signaturePattern = regexp.MustCompile(`(?i)(signature=)[^&\s"]+`)

// ProxyHandler forwards media requests to the upstream origin.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle runs the request through the proxy pipeline and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:         req.Context(),
		Method:      req.Method,
		Path:        req.URL.Path,
		EscapedPath: req.URL.EscapedPath(),
		Origin:      requestOrigin(c.Scheme(), req.Host),
		Query:       req.URL.Query(),
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the body. A mid-stream failure cannot change the status that
	// was already sent, so it is only logged.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
			"mode", resp.Mode,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	switch {
	case errors.Is(err, route.ErrOutsidePrefix):
		h.logger.Debug("path rejected", "path", path)
		return c.String(http.StatusGone, msgAccessDenied)
	case errors.Is(err, signing.ErrMissingSignature):
		return c.String(http.StatusForbidden, msgMissingSignature)
	case errors.Is(err, signing.ErrExpired):
		return c.String(http.StatusForbidden, msgExpired)
	case errors.Is(err, signing.ErrSignatureMismatch):
		return c.String(http.StatusForbidden, msgSignatureMismatch)
	}

	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"path", path,
	)

	if errors.Is(err, service.ErrManifestTooLarge) {
		return c.String(http.StatusBadGateway, "upstream manifest too large")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.String(http.StatusGatewayTimeout, "upstream request timed out")
	}

	if errors.Is(err, context.Canceled) {
		return c.String(http.StatusBadGateway, "client disconnected")
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.String(http.StatusBadGateway, "upstream host unreachable")
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return c.String(http.StatusGatewayTimeout, "upstream request timed out")
		}
		return c.String(http.StatusBadGateway, "upstream connection failed")
	}

	return c.String(http.StatusBadGateway, "upstream request failed")
}

// requestOrigin builds scheme://host the way browsers serialize an origin:
// the host is lowercased and a port equal to the scheme default is dropped.
func requestOrigin(scheme, host string) string {
	scheme = strings.ToLower(scheme)
	host = strings.ToLower(host)
	switch scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}
	return scheme + "://" + host
}

// sanitizeError redacts signatures from error messages that may contain URLs.
func sanitizeError(err error) string {
	return signaturePattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
