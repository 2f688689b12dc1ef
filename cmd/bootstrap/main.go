// Command bootstrap seeds a fresh warden-core deployment: default
// organization, system roles, the platform permission catalog, and one admin
// API key. The key token prints exactly once; it is not recoverable later.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/internal/storage/postgres"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel)
	logg.Info("warden-core bootstrap starting", "environment", cfg.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := postgres.NewStore(ctx, cfg.Database, logg)
	if err != nil {
		logg.Fatal("Failed to connect to PostgreSQL", "error", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logg.Fatal("Schema migration failed", "error", err)
	}

	bootstrap := services.NewBootstrapService(
		postgres.NewOrganizationRepo(store),
		postgres.NewRoleRepo(store),
		postgres.NewPermissionRepo(store),
		postgres.NewRolePermissionRepo(store),
		postgres.NewAPIKeyRepo(store),
		logg,
	)

	result, err := bootstrap.Run(ctx)
	if err != nil {
		logg.Fatal("Bootstrap failed", "error", err)
	}

	logg.Info("Bootstrap completed", "orgId", result.OrgID, "orgCreated", result.Created)

	if result.AdminToken != "" {
		fmt.Println()
		fmt.Println("Admin API key minted. Store it now; it will not be shown again.")
		fmt.Printf("  X-API-Key: %s\n", result.AdminToken)
		fmt.Printf("  Org:       %s\n", result.OrgID)
		fmt.Println()
	} else {
		fmt.Println("Admin API key already exists; nothing minted.")
	}
}
