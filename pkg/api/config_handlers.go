package api

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"

	"github.com/open-teleop/mapbridge/pkg/config"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
)

// ConfigHandler serves the effective bootstrap configuration.
type ConfigHandler struct {
	cfg    *config.BootstrapConfig
	logger customlog.Logger
}

// NewConfigHandler creates a new handler for configuration endpoints.
func NewConfigHandler(cfg *config.BootstrapConfig, logger customlog.Logger) *ConfigHandler {
	if cfg == nil {
		panic("BootstrapConfig cannot be nil in NewConfigHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{cfg: cfg, logger: logger}
}

// RegisterConfigRoutes registers the configuration API endpoint with the Fiber app.
// The configuration is read-only: the router address and realm stay fixed for
// the life of the process.
func RegisterConfigRoutes(app *fiber.App, cfg *config.BootstrapConfig, logger customlog.Logger) {
	h := NewConfigHandler(cfg, logger)
	app.Get("/api/v1/config", h.handleGetConfig)
	logger.Infof("Registered configuration API endpoint /api/v1/config")
}

// handleGetConfig returns the configuration in effect, defaults included, as YAML.
func (h *ConfigHandler) handleGetConfig(c *fiber.Ctx) error {
	h.logger.Debugf("Handling GET request for /api/v1/config")
	yamlData, err := yaml.Marshal(h.cfg)
	if err != nil {
		h.logger.Errorf("Failed to marshal bootstrap config: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to retrieve configuration: %v", err),
		})
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}
