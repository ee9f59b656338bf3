package dialect

import (
	"context"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" database/sql driver

	"github.com/roach88/resquel/internal/config"
)

// DuckDBConnector talks to an embedded DuckDB database. An empty path opens
// an in-memory database.
type DuckDBConnector struct {
	*conn
}

func openDuckDB(cfg config.DBConfig) (*DuckDBConnector, error) {
	c, err := openDB(cfg, "duckdb", duckdbDSN(cfg))
	if err != nil {
		return nil, err
	}
	return &DuckDBConnector{conn: c}, nil
}

func duckdbDSN(cfg config.DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if cfg.Path == ":memory:" {
		return ""
	}
	return cfg.Path
}

// Exec runs a statement and returns the rows of its first result set.
func (c *DuckDBConnector) Exec(ctx context.Context, sqlText string, params []any) (Raw, error) {
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
