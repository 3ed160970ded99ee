package data

import (
	"context"
	"database/sql"

	"github.com/target/intake-pipeline/internal/migrate"
)

// RunMigrations brings the intake schema up to date.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}
