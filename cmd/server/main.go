package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"forest-analysis-core/internal/auth"
	"forest-analysis-core/internal/cache"
	"forest-analysis-core/internal/config"
	"forest-analysis-core/internal/database"
	"forest-analysis-core/internal/httpapi"
	"forest-analysis-core/internal/inventory"
	"forest-analysis-core/internal/orchestrator"
	"forest-analysis-core/internal/persistence"
	"forest-analysis-core/internal/species"
)

func main() {
	cfg := config.Load()

	pool := database.NewPool(cfg.DatabaseURL(), cfg.DBMaxConns, cfg.DBMinConns)
	defer pool.Close()

	redisClient := cache.NewRedisClient(cfg.RedisAddr())
	defer redisClient.Close()

	authSvc := auth.NewService(cfg.JWTSecret, cfg.JWTExpiryHours)

	speciesTable, err := species.LoadTableFromCSV(cfg.SpeciesTablePath)
	if err != nil {
		log.Fatalf("Failed to load species table: %v", err)
	}
	fmt.Printf("Loaded %d species records\n", len(speciesTable.All()))

	store := persistence.NewStore(pool, redisClient)
	orch := &orchestrator.Orchestrator{Pool: pool, DistanceM: cfg.ProximityDistanceM}
	proc := &inventory.Processor{Species: speciesTable}

	api := &httpapi.Handler{
		Store:                  store,
		Orchestrator:           orch,
		Species:                speciesTable,
		Inventory:              proc,
		DefaultGridSpacingM:    cfg.DefaultGridSpacingM,
		RequestDeadlineSeconds: cfg.RequestDeadlineSeconds,
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":   "ok",
			"database": "connected",
			"redis":    "connected",
		})
	})

	api.Register(e, authSvc)

	addr := fmt.Sprintf(":%s", cfg.BackendPort)
	fmt.Printf("Analysis core server starting on %s\n", addr)
	e.Logger.Fatal(e.Start(addr))
}
