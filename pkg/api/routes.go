package api

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sugawarayuuta/sonnet"

	"github.com/open-teleop/mapbridge/domain/command"
	"github.com/open-teleop/mapbridge/domain/console"
	"github.com/open-teleop/mapbridge/domain/diagnostic"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
)

// NewServer creates the Fiber app used for the console API
func NewServer(appName string, requestLogging bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               appName,
		ErrorHandler:          customErrorHandler,
		JSONEncoder:           sonnet.Marshal,
		JSONDecoder:           sonnet.Unmarshal,
		DisableStartupMessage: true,
	})

	if requestLogging {
		app.Use(logger.New())
	}
	app.Use(recover.New())
	return app
}

// Custom error handler
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// MapHandler holds dependencies for the map console endpoints.
type MapHandler struct {
	console *console.Console
	diag    *diagnostic.DiagnosticService
	logger  customlog.Logger
}

// NewMapHandler creates a new handler for the map console endpoints.
func NewMapHandler(c *console.Console, diag *diagnostic.DiagnosticService, logger customlog.Logger) *MapHandler {
	if c == nil {
		panic("Console cannot be nil in NewMapHandler")
	}
	if diag == nil {
		panic("DiagnosticService cannot be nil in NewMapHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewMapHandler")
	}
	return &MapHandler{console: c, diag: diag, logger: logger}
}

// RegisterMapRoutes registers the health, telemetry, command, diagnostics
// and WebSocket endpoints with the Fiber app.
func RegisterMapRoutes(app *fiber.App, c *console.Console, diag *diagnostic.DiagnosticService, logger customlog.Logger) {
	h := NewMapHandler(c, diag, logger)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	apiGroup := app.Group("/api/v1")
	apiGroup.Get("/telemetry", h.handleGetTelemetry)
	apiGroup.Post("/commands", h.handleSendCommand)
	apiGroup.Post("/commands/pid", h.handleForcePID)
	apiGroup.Post("/commands/location", h.handleForceLocation)
	apiGroup.Get("/diagnostics", diag.GetMetricsHandler)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/map", websocket.New(func(conn *websocket.Conn) {
		MapWebSocketHandler(conn, h.console, h.logger)
	}))

	logger.Infof("Registered map console endpoints under /api/v1 and /ws/map")
}

// handleGetTelemetry takes the pending sample. 204 when none arrived since
// the last poll.
func (h *MapHandler) handleGetTelemetry(c *fiber.Ctx) error {
	sample, ok := h.console.LatestTelemetry()
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(sample)
}

func (h *MapHandler) handleSendCommand(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnf("Malformed command request: %v", err)
		return fiber.NewError(fiber.StatusBadRequest, "invalid command body")
	}
	return h.queue(c, command.Command{Kind: command.Kind(req.Kind), Args: req.Args})
}

func (h *MapHandler) handleForcePID(c *fiber.Ctx) error {
	var req PIDRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnf("Malformed PID request: %v", err)
		return fiber.NewError(fiber.StatusBadRequest, "invalid PID body")
	}
	if req.Kp == nil || req.Ki == nil || req.Kd == nil {
		return fiber.NewError(fiber.StatusBadRequest, "kp, ki and kd are required")
	}
	return h.queue(c, command.PID(*req.Kp, *req.Ki, *req.Kd))
}

func (h *MapHandler) handleForceLocation(c *fiber.Ctx) error {
	var req LocationRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnf("Malformed location request: %v", err)
		return fiber.NewError(fiber.StatusBadRequest, "invalid location body")
	}
	if req.Lat == nil || req.Lng == nil {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lng are required")
	}
	return h.queue(c, command.Location(*req.Lat, *req.Lng))
}

func (h *MapHandler) queue(c *fiber.Ctx, cmd command.Command) error {
	if err := h.console.SendCommand(cmd); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "queued",
		"kind":   cmd.Kind,
	})
}
