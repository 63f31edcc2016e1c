package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/rpbarone/bdn-api-sub001/internal/store"
)

// Handler serves login against the users table.
type Handler struct {
	repo   *store.Repository
	secret string
}

func NewHandler(repo *store.Repository, secret string) *Handler {
	return &Handler{repo: repo, secret: secret}
}

// RegisterRoutes mounts the auth endpoints; they run before the auth
// middleware since they are what issues the tokens.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Post("/auth/login", h.Login)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Email and password required")
	}

	user, err := h.repo.FindUserByEmail(c.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
		}
		return err
	}

	hash, _ := user["password_hash"].(string)
	if !CheckPassword(req.Password, hash) {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
	}

	id, _ := user["id"].(string)
	role, _ := user["role"].(string)
	token, err := GenerateAccessToken(id, role, h.secret)
	if err != nil {
		return err
	}

	return c.JSON(TokenPair{
		AccessToken:  token,
		RefreshToken: GenerateRefreshToken(),
	})
}
