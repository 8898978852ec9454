package storage

import (
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationsDSN derives the golang-migrate url from a postgres dsn unless an
// explicit one is given.
func MigrationsDSN(dbDsn, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if i := strings.Index(dbDsn, "://"); i >= 0 {
		return "pgx" + dbDsn[i:]
	}
	return dbDsn
}

// Migrate applies every pending up migration from dir.
func Migrate(dir, dsn string) (err error) {
	m, err := migrate.New(dir, dsn)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	if err = m.Up(); errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
