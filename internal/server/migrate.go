package server

import (
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies migrations from dir, e.g. file://migrations. steps 0
// means all. An already current schema is not an error.
func Migrate(dir string, dsn string, direction string, steps int) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("unknown direction: %s", direction)
	}
	if steps < 0 {
		return fmt.Errorf("steps must not be negative: %d", steps)
	}
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}

	m, err := migrate.New(dir, dsn)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	defer m.Close()

	switch {
	case direction == "up" && steps > 0:
		err = m.Steps(steps)
	case direction == "up":
		err = m.Up()
	case steps > 0:
		err = m.Steps(-steps)
	default:
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("[Migrate] Schema already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	version, dirty, _ := m.Version()
	logger.Info("[Migrate] Done", "direction", direction, "version", version, "dirty", dirty)
	return nil
}
