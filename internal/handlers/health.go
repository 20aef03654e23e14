package handlers

import "github.com/gofiber/fiber/v2"

// healthSource reports runtime state for monitoring
type healthSource interface {
	ActiveSessions() (int, error)
	PendingSettlements() int
}

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	Storage string
	source  healthSource
	ping    func() error
}

// NewHealthHandler creates a new health handler. ping may be nil when the
// storage backend has nothing to probe.
func NewHealthHandler(version, storage string, source healthSource, ping func() error) *HealthHandler {
	return &HealthHandler{
		Version: version,
		Storage: storage,
		source:  source,
		ping:    ping,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "healthy"
	statusCode := fiber.StatusOK

	if h.ping != nil {
		if err := h.ping(); err != nil {
			status = "unhealthy"
			statusCode = fiber.StatusServiceUnavailable
		}
	}

	sessions, err := h.source.ActiveSessions()
	if err != nil {
		status = "unhealthy"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":  status,
		"service": "rampa WhatsApp transfers",
		"version": h.Version,
		"storage": h.Storage,
		"services": fiber.Map{
			"active_sessions":     sessions,
			"pending_settlements": h.source.PendingSettlements(),
		},
	})
}
