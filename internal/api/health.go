package api

import (
	"github.com/hellofresh/health-go/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type HealthChecker interface {
	HealthCheck() echo.HandlerFunc
}

type healthChecker struct {
	health *health.Health
}

// NewHealthChecker reports component in every /health response and runs the
// given storage checks on each request.
func NewHealthChecker(component health.Component, checks ...health.Config) (HealthChecker, error) {
	if component.Name == "" {
		return nil, errors.New("health component name is empty")
	}

	h, err := health.New(health.WithComponent(component))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create health checker")
	}

	for _, check := range checks {
		if err := h.Register(check); err != nil {
			return nil, errors.Wrapf(err, "failed to register health check %q", check.Name)
		}
	}

	return &healthChecker{
		health: h,
	}, nil
}

func (h *healthChecker) HealthCheck() echo.HandlerFunc {
	return echo.WrapHandler(h.health.Handler())
}
