// Package migrations holds the schema, applied with goose at startup.
package migrations

import (
	"database/sql"
	"embed"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var files embed.FS

// Up applies every pending migration.
func Up(db *sql.DB) error {
	goose.SetBaseFS(files)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil {
		slog.Error("migrations failed", "error", err)
		return err
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return err
	}
	slog.Info("database migrated", "version", version)
	return nil
}
