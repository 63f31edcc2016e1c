package api

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/rpbarone/bdn-api-sub001/internal/access"
)

// RegisterRoutes mounts the gated resource CRUD surface.
func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api", middleware...)

	api.Get("/:resource", h.List)
	api.Get("/:resource/:id", h.GetByID)
	api.Post("/:resource", h.Create)
	api.Put("/:resource/:id", h.Update)
	api.Patch("/:resource/:id", h.Update)
	api.Delete("/:resource/:id", h.Delete)
}

// ErrorHandler translates AppError into its JSON shape and status code;
// anything else is an opaque 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *access.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(access.ErrorResponse{Error: appErr})
	}

	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		return c.Status(code).JSON(access.ErrorResponse{
			Error: &access.AppError{Code: "REQUEST_ERROR", Status: code, Message: fiberErr.Message},
		})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(access.ErrorResponse{
		Error: &access.AppError{Code: "INTERNAL_ERROR", Status: code, Message: "Internal server error"},
	})
}
