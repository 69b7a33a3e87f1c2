package controller

import (
	"context"
	"time"

	"llamatalks-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
	Health(ctx *fiber.Ctx) error
}

type healthController struct {
	checks map[string]HealthCheck
}

func NewHealthController(checks map[string]HealthCheck) IHealthController {
	return &healthController{checks: checks}
}

func (c *healthController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Health)
}

func (c *healthController) Health(ctx *fiber.Ctx) error {
	checkCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	status := "UP"
	components := make(map[string]string, len(c.checks))
	for name, check := range c.checks {
		if err := check(checkCtx); err != nil {
			components[name] = "DOWN"
			status = "DOWN"
			continue
		}
		components[name] = "UP"
	}

	code := fiber.StatusOK
	if status != "UP" {
		code = fiber.StatusServiceUnavailable
	}

	res := serverutils.SuccessResponse("Health check", fiber.Map{
		"status":     status,
		"components": components,
	})
	res.Code = code
	res.Success = code == fiber.StatusOK
	return ctx.Status(code).JSON(res)
}
