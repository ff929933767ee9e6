// Package handler contains the HTTP handlers and route wiring.
package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"hls-signed-proxy/internal/config"
	"hls-signed-proxy/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information. The signing secret is never included.
// operational_paths lists the paths served locally instead of being answered
// with 410 like everything else outside route_prefix.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":            "ok",
		"version":           string(h.version),
		"upstream_url":      h.cfg.Upstream.BaseURL,
		"route_prefix":      route.Prefix,
		"operational_paths": strings.Join(h.operationalPaths(), ","),
	})
}

func (h *HealthHandler) operationalPaths() []string {
	paths := []string{"/healthz", "/proxy/status"}
	if h.cfg.Metrics.Enabled {
		paths = append(paths, h.cfg.Metrics.Path)
	}
	return paths
}
