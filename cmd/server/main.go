package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/rpbarone/bdn-api-sub001/internal/access"
	"github.com/rpbarone/bdn-api-sub001/internal/api"
	"github.com/rpbarone/bdn-api-sub001/internal/auth"
	"github.com/rpbarone/bdn-api-sub001/internal/config"
	"github.com/rpbarone/bdn-api-sub001/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s)", cfg.Server.Port, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}

	// 4. Load role hierarchy and policies
	roles, registry, err := access.LoadPolicyFile(cfg.Access.PolicyFile)
	if err != nil {
		log.Fatalf("Failed to load policies: %v", err)
	}
	log.Printf("Loaded policies for %d resources (roles: %v)", len(registry.Resources()), roles.Roles())

	// 5. Bind repositories: each registered resource maps to its table,
	// users always included for auth.
	tables := map[string]string{"users": "users"}
	for _, resource := range registry.Resources() {
		tables[resource] = resource
	}
	repo := store.NewRepository(db, tables)

	// 6. Build the access engine
	engine := access.NewEngine(roles, registry, repo, access.Options{
		TargetTTL:    cfg.Access.CacheTTL(),
		FetchTimeout: cfg.Access.FetchTimeout(),
	})

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Auth routes (no auth required — they issue the tokens)
	authHandler := auth.NewHandler(repo, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler)

	// 10. Gated resource routes
	handler := api.NewHandler(engine, repo)
	api.RegisterRoutes(app, handler, auth.Middleware(cfg.JWTSecret))

	// 11. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
