package sqlite

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/modwatch/modqueue/resources"
)

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
}

func NewSQLiteClient(ctx context.Context, dir, name string) (*sqliteClient, error) {
	dbx, err := sqlx.Open("sqlite", filepath.Join(dir, name))
	if err != nil {
		return nil, errors.WithMessage(err, "cant open db")
	}
	dbx.SetMaxOpenConns(42)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	n, err := migrate.ExecContext(ctx, dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		return nil, errors.WithMessage(err, "migrate up failed")
	}
	if n > 0 {
		log.Infof("applied %d migrations!", n)
	}

	return &sqliteClient{db: dbx}, nil
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}
