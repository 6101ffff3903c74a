package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/api"
	"github.com/guttosm/stockpulse/internal/service"
	"github.com/guttosm/stockpulse/internal/storage"
)

// InitializeApp sets up all API dependencies and returns a configured Gin
// router, a cleanup function for graceful shutdown, and any initialization error.
//
// Responsibilities:
//   - Opens and migrates the configured database (OpenDatabase).
//   - Builds the router over a repository on that database (BuildRouter).
func InitializeApp() (*gin.Engine, func(), error) {
	cfg := config.AppConfig

	db, dialect, err := databaseOpener(context.Background(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	router := BuildRouter(storage.NewQuotesRepository(db, dialect), db.Ping)

	cleanup := func() {
		_ = db.Close()
	}

	return router, cleanup, nil
}

// BuildRouter wires service and handler layers over repo and registers the
// health and readiness probes, with dbPing backing /readyz.
func BuildRouter(repo storage.QuotesRepository, dbPing func() error) *gin.Engine {
	svc := service.NewQuoteService(repo)
	handler := api.NewHandler(svc)
	router := api.NewRouter(handler)

	api.NewHealthHandler(dbPing).Register(router)
	return router
}
