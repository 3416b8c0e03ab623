package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies all pending migrations for the database named by
// databaseURL. It opens and closes its own connection.
func Migrate(databaseURL string) error {
	d, _, err := parseURL(databaseURL)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations, "migrations/"+d.name)
	if err != nil {
		return fmt.Errorf("load %s migrations: %w", d.name, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
