package api

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/service"
)

// ProcessRequest runs the steps in order and stops at the first error.
func ProcessRequest[T any](e echo.Context, req *T, steps ...func(echo.Context, *T) error) error {
	for _, step := range steps {
		if err := step(e, req); err != nil {
			return err
		}
	}
	return nil
}

func bindStep[T any](e echo.Context, req *T) error {
	if err := e.Bind(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid request body")
	}
	return nil
}

func validateStep[T any](e echo.Context, req *T) error {
	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, errors.Wrap(err, "request validation failed").Error())
	}
	return nil
}

// decodeRequest binds and validates the body, then runs any extra steps.
func decodeRequest[T any](e echo.Context, req *T, extra ...func(echo.Context, *T) error) *service.Error {
	steps := append([]func(echo.Context, *T) error{bindStep[T], validateStep[T]}, extra...)
	if err := ProcessRequest(e, req, steps...); err != nil {
		var serr *service.Error
		if errors.As(err, &serr) {
			return serr
		}
		return service.NewError(service.ErrorCodeInvalidBody, err.Error())
	}
	return nil
}
