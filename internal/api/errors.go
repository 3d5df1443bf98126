package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"wheresmybus/internal/gtfs"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// errorHandler maps the error taxonomy onto HTTP statuses. Store and other
// unexpected failures never leak their message.
func errorHandler(c *fiber.Ctx, err error) error {
	status, body := fiber.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "Internal Server Error"}

	var ferr *fiber.Error
	switch {
	case errors.Is(err, gtfs.ErrNotFound):
		status, body = fiber.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, gtfs.ErrInvalidInput):
		status, body = fiber.StatusBadRequest, errorBody{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.As(err, &ferr) && ferr.Code == fiber.StatusNotFound:
		status, body = fiber.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "Not found"}
	case errors.As(err, &ferr) && ferr.Code < fiber.StatusInternalServerError:
		status, body = ferr.Code, errorBody{Code: "INVALID_INPUT", Message: ferr.Message}
	}
	return c.Status(status).JSON(errorEnvelope{Error: body})
}
