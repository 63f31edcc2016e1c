package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/rpbarone/bdn-api-sub001/internal/access"
	"github.com/rpbarone/bdn-api-sub001/internal/auth"
	"github.com/rpbarone/bdn-api-sub001/internal/store"
)

// Repo is the persistence surface the handlers consume, satisfied by
// *store.Repository.
type Repo interface {
	List(ctx context.Context, resource string, limit, offset int) ([]map[string]any, error)
	FindByID(ctx context.Context, resource, id string) (map[string]any, error)
	Insert(ctx context.Context, resource string, record map[string]any) (map[string]any, error)
	Update(ctx context.Context, resource, id string, fields map[string]any) (map[string]any, error)
	Delete(ctx context.Context, resource, id string) error
}

// Handler adapts the generic resource CRUD surface to the access pipeline.
// Every request flows through Engine.Authorize before touching storage;
// write payloads arrive at the repository already projected, and read
// responses leave through the decision's read projector.
type Handler struct {
	engine *access.Engine
	repo   Repo
}

func NewHandler(engine *access.Engine, repo Repo) *Handler {
	return &Handler{engine: engine, repo: repo}
}

// List handles GET /api/:resource
func (h *Handler) List(c *fiber.Ctx) error {
	resource := c.Params("resource")
	decision, err := h.authorize(c, resource, nil)
	if err != nil {
		return err
	}

	rows, repoErr := h.repo.List(c.Context(), resource, c.QueryInt("per_page"), c.QueryInt("offset"))
	if repoErr != nil {
		return h.mapRepoError(c, resource, repoErr)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{"data": decision.ReadProject(rows)})
}

// GetByID handles GET /api/:resource/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	resource := c.Params("resource")
	decision, err := h.authorize(c, resource, nil)
	if err != nil {
		return err
	}

	// The pipeline already resolved the target snapshot; absent means the
	// entity does not exist (or was unreachable, which reads the same).
	if decision.Ctx.Target == nil {
		return notFound(c, resource, c.Params("id"))
	}
	return c.JSON(fiber.Map{"data": decision.ReadProject(decision.Ctx.Target)})
}

// Create handles POST /api/:resource
func (h *Handler) Create(c *fiber.Ctx) error {
	resource := c.Params("resource")
	body, err := parseBody(c)
	if err != nil {
		return err
	}

	decision, authErr := h.authorize(c, resource, body)
	if authErr != nil {
		return authErr
	}

	record, repoErr := h.repo.Insert(c.Context(), resource, decision.Ctx.Body)
	if repoErr != nil {
		return h.mapRepoError(c, resource, repoErr)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": record})
}

// Update handles PUT and PATCH /api/:resource/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	resource := c.Params("resource")
	body, err := parseBody(c)
	if err != nil {
		return err
	}

	decision, authErr := h.authorize(c, resource, body)
	if authErr != nil {
		return authErr
	}

	record, repoErr := h.repo.Update(c.Context(), resource, c.Params("id"), decision.Ctx.Body)
	if repoErr != nil {
		if errors.Is(repoErr, store.ErrNotFound) {
			return notFound(c, resource, c.Params("id"))
		}
		return h.mapRepoError(c, resource, repoErr)
	}
	return c.JSON(fiber.Map{"data": record})
}

// Delete handles DELETE /api/:resource/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	resource := c.Params("resource")
	if _, err := h.authorize(c, resource, nil); err != nil {
		return err
	}

	if repoErr := h.repo.Delete(c.Context(), resource, c.Params("id")); repoErr != nil {
		if errors.Is(repoErr, store.ErrNotFound) {
			return notFound(c, resource, c.Params("id"))
		}
		return h.mapRepoError(c, resource, repoErr)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) authorize(c *fiber.Ctx, resource string, body map[string]any) (*access.Decision, error) {
	subject, ok := auth.GetSubject(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
	}

	params := map[string]string{}
	if id := c.Params("id"); id != "" {
		params["id"] = id
	}

	decision, appErr := h.engine.Authorize(c.Context(), subject, resource, c.Method(), params, body)
	if appErr != nil {
		return nil, appErr
	}
	return decision, nil
}

func (h *Handler) mapRepoError(c *fiber.Ctx, resource string, err error) error {
	if errors.Is(err, store.ErrUnknownResource) {
		return c.Status(fiber.StatusNotFound).JSON(access.ErrorResponse{
			Error: &access.AppError{Code: "UNKNOWN_RESOURCE", Status: 404, Message: "Unknown resource: " + resource},
		})
	}
	return err
}

func parseBody(c *fiber.Ctx) (map[string]any, error) {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	return body, nil
}

func notFound(c *fiber.Ctx, resource, id string) error {
	return c.Status(fiber.StatusNotFound).JSON(access.ErrorResponse{
		Error: &access.AppError{Code: "NOT_FOUND", Status: 404, Message: resource + " with id " + id + " not found"},
	})
}
