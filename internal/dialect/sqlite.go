package dialect

import (
	"context"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver

	"github.com/roach88/resquel/internal/config"
)

// SQLiteConnector talks to a SQLite file or in-memory database.
//
// The pool is pinned to a single connection: writes are serialized and an
// in-memory database stays the same database across calls.
type SQLiteConnector struct {
	*conn
}

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

func openSQLite(cfg config.DBConfig) (*SQLiteConnector, error) {
	cfg.Pool.MaxOpenConns = 1
	cfg.Pool.MaxIdleConns = 1
	cfg.Pool.ConnMaxLifetime = 0

	c, err := openDB(cfg, "sqlite3", sqliteDSN(cfg))
	if err != nil {
		return nil, err
	}

	for _, pragma := range sqlitePragmas {
		if _, err := c.db.Exec(pragma); err != nil {
			_ = c.db.Close()
			return nil, &ConnectionError{Driver: cfg.Driver, Err: fmt.Errorf("%s: %w", pragma, err)}
		}
	}
	return &SQLiteConnector{conn: c}, nil
}

func sqliteDSN(cfg config.DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if cfg.Path == "" {
		return ":memory:"
	}
	return cfg.Path
}

// Exec runs a statement and returns the rows of its first result set.
// Statements without a result set return an empty RowSet.
func (c *SQLiteConnector) Exec(ctx context.Context, sqlText string, params []any) (Raw, error) {
	sets, err := c.query(ctx, sqlText, params)
	if err != nil {
		return nil, err
	}
	rows, _ := firstWithColumns(sets)
	if rows == nil {
		return RowSet{}, nil
	}
	return RowSet(rows), nil
}
