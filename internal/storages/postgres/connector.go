package postgres

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/Krchnk/valutatrade-hub/internal/config"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

func NewStorage(cfg config.DBConfig, logger logrus.FieldLogger) (*Storage, error) {
	connStr := cfg.ConnectionString()
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		logger.WithError(err).Error("failed to open database connection")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		logger.WithError(err).Error("failed to ping database")
		db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		logger.WithError(err).Error("failed to apply database migrations")
		db.Close()
		return nil, err
	}

	logger.Info("database connection established")
	return &Storage{db: db, logger: logger}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
