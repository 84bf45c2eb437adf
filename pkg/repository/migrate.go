package repository

import (
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"study_ledger_back/migrations"
)

// Migrate applies the embedded schema migrations. ErrNoChange is not an error.
func Migrate(db *sqlx.DB, dbName string) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return errors.Wrap(err, "load embedded migrations")
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{DatabaseName: dbName})
	if err != nil {
		return errors.Wrap(err, "migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, driver)
	if err != nil {
		return errors.Wrap(err, "migration instance")
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logrus.Info("schema is up to date")
			return nil
		}

		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return errors.Errorf("database is dirty at version %d, fix it manually", dirty.Version)
		}
		return errors.Wrap(err, "apply migrations")
	}

	version, _, _ := m.Version()
	logrus.WithField("version", version).Info("schema migrated")
	return nil
}
