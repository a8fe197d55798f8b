// migrate creates the students table and exits. It reads the same
// configuration as the server, so a deploy can run it once before
// starting replicas with DB_SKIP_MIGRATE=true.
//
//	go run ./cmd/migrate --config=config/local.yaml
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/aanand-mishra/students-service/internal/config"
	"github.com/aanand-mishra/students-service/internal/logger"
	"github.com/aanand-mishra/students-service/internal/storage/backend"
)

func main() {
	cfg := config.MustLoad()

	appLogger, err := logger.New(os.Stdout, cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(appLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		appLogger.Error("migration failed", logger.Err(err))
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		appLogger.Error("migration failed", logger.Err(err))
		store.Close()
		os.Exit(1)
	}

	appLogger.Info("migration completed successfully", slog.String("driver", cfg.Driver))
}
