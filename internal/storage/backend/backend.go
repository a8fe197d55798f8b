// Package backend opens the storage implementation named in the config.
// It lives apart from package storage so that the implementations can
// import storage without an import cycle.
package backend

import (
	"context"
	"fmt"

	"github.com/aanand-mishra/students-service/internal/config"
	"github.com/aanand-mishra/students-service/internal/storage"
	"github.com/aanand-mishra/students-service/internal/storage/postgres"
	"github.com/aanand-mishra/students-service/internal/storage/sqlite"
)

// Open connects to the configured store. The caller owns the result and
// must Close it.
func Open(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	// Each branch checks err itself so that a failed open returns a
	// nil interface rather than a typed nil pointer.
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverSQLite:
		db, err := sqlite.New(cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("backend.Open: unknown storage driver %q", cfg.Driver)
	}
}
